// Package robotsession owns the single long-lived TCP connection to the
// remote robot runtime, the framed read/write loop, and the run-mode
// state machine. It is the daemon's busiest component, grounded on the
// teacher's tcp_server/tcp_server.go accept-loop shape and base_robot.go's
// single-owner-per-connection discipline, generalized from line-token
// dispatch to the binary opcode/frame protocol in SPEC_FULL.md.
package robotsession

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Nat3z/Daybreak/internal/eventbus"
	"github.com/Nat3z/Daybreak/internal/logging"
	"github.com/Nat3z/Daybreak/internal/logtee"
	"github.com/Nat3z/Daybreak/internal/metrics"
	"github.com/Nat3z/Daybreak/internal/netutil"
	"github.com/Nat3z/Daybreak/internal/telemetry"
	"github.com/Nat3z/Daybreak/internal/wire"
)

// RunState is the Robot Session's authoritative local belief of the
// remote robot's operating mode.
type RunState int

const (
	StateIdle RunState = iota
	StateTeleop
	StateAuto
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTeleop:
		return "TELEOP"
	case StateAuto:
		return "AUTO"
	default:
		return "UNKNOWN"
	}
}

// Peer event bytes read from the robot-side rendezvous socket, the
// Robot Session's public contract per its event table.
const (
	EventStartTeleop byte = 1
	EventStop        byte = 2
	EventStartAuto   byte = 3
	EventGetDevices  byte = 4
	EventForwardIn   byte = 5
)

const (
	identByte        = 0x01
	connectTimeout   = 5 * time.Second
	connectRetries   = 4
	connectRetryWait = 2 * time.Second
	readPollInterval = 5 * time.Millisecond
)

var (
	ErrNoSession  = errors.New("robotsession: no live session")
	ErrConnectAll = errors.New("robotsession: all connect attempts failed")
)

// Session owns one TCP connection to the remote robot runtime plus the
// robot-side rendezvous socket over which the Bridge Router delivers
// events and reads back device snapshots.
type Session struct {
	addr string

	mu       sync.Mutex
	conn     net.Conn
	peerLn   net.Listener
	peer     net.Conn
	leftover []byte
	runState RunState

	cache   *telemetry.Cache
	tee     *logtee.Tee
	bus     *eventbus.Bus
	metrics *metrics.Metrics

	closed   chan struct{}
	closeErr error
	once     sync.Once
}

// Connect dials the remote robot at host:port with the spec's retry
// budget (4 retries, 2s apart, 5s per attempt), sends the identification
// byte on success, and starts the robot-side rendezvous listener that
// the Bridge Router will connect to next. peerSockPath is the local
// filesystem path for that listener.
func Connect(host string, port int, peerSockPath string, cache *telemetry.Cache, tee *logtee.Tee, bus *eventbus.Bus, m *metrics.Metrics) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	var conn net.Conn
	var lastErr error
	for attempt := 0; attempt <= connectRetries; attempt++ {
		m.ConnectAttempt.Inc()
		d := net.Dialer{Timeout: connectTimeout}
		c, err := d.Dial("tcp", addr)
		if err == nil {
			conn = c
			break
		}
		lastErr = err
		m.ConnectFailure.Inc()
		logging.DebugPrint("robotsession: connect attempt %d to %s failed: %v", attempt, addr, err)
		if attempt < connectRetries {
			time.Sleep(connectRetryWait)
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectAll, lastErr)
	}

	if _, err := conn.Write([]byte{identByte}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("robotsession: identification write failed: %w", err)
	}

	ln, err := net.Listen("unix", peerSockPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("robotsession: robot-side rendezvous listen failed: %w", err)
	}

	s := &Session{
		addr:     addr,
		conn:     conn,
		peerLn:   ln,
		runState: StateIdle,
		cache:    cache,
		tee:      tee,
		bus:      bus,
		metrics:  m,
		closed:   make(chan struct{}),
	}

	go s.acceptPeer()
	return s, nil
}

// acceptPeer blocks for the single Bridge Router peer connection, then
// launches the main loop. Only one peer is ever accepted per session.
func (s *Session) acceptPeer() {
	conn, err := s.peerLn.Accept()
	if err != nil {
		select {
		case <-s.closed:
			return
		default:
		}
		logging.DebugError(fmt.Errorf("robotsession: peer accept failed: %w", err))
		return
	}
	s.mu.Lock()
	s.peer = conn
	s.mu.Unlock()
	go s.mainLoop()
}

// mainLoop cooperatively services the peer rendezvous socket (event
// bytes from the Bridge Router) and the TCP stream (framed messages
// from the remote robot), as required by §5: both reads non-blocking
// so neither source can starve the other.
func (s *Session) mainLoop() {
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		progressed := false

		if s.pollPeerEvent() {
			progressed = true
		}

		if s.pollFrame() {
			progressed = true
		}

		if !progressed {
			time.Sleep(readPollInterval)
		}
	}
}

func (s *Session) pollPeerEvent() bool {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer == nil {
		return false
	}

	peer.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 1)
	n, err := peer.Read(buf)
	if err != nil {
		if wire.IsWouldBlock(err) {
			return false
		}
		logging.DebugPrint("robotsession: peer socket closed: %v", err)
		return false
	}
	if n == 0 {
		return false
	}

	s.handleEvent(buf[0], peer)
	return true
}

func (s *Session) pollFrame() bool {
	s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	frame, rest, err := wire.DecodeStream(s.conn, s.leftover)
	s.leftover = rest
	if err != nil {
		if wire.IsWouldBlock(err) {
			return false
		}
		logging.DebugPrint("robotsession: tcp read error: %v", err)
		return false
	}
	if frame == nil {
		return false
	}

	s.metrics.FramesDecoded.Inc()
	s.dispatch(frame)
	return true
}

// handleEvent processes one byte read from the robot-side rendezvous
// socket per the Robot Session public contract (§4.4).
func (s *Session) handleEvent(event byte, peer net.Conn) {
	switch event {
	case EventStartTeleop:
		s.setRunState(StateTeleop)
	case EventStop:
		s.setRunState(StateIdle)
	case EventStartAuto:
		s.setRunState(StateAuto)
	case EventGetDevices:
		s.replyDevices(peer)
	case EventForwardIn:
		s.readAndForwardInputs(peer)
	default:
		logging.DebugPrint("robotsession: unknown peer event byte %d", event)
	}
}

func (s *Session) replyDevices(peer net.Conn) {
	data, ok := s.cache.Snapshot()
	if !ok {
		peer.Write([]byte{0})
		return
	}
	l := len(data)
	header := []byte{1, byte(l & 0xff), byte((l >> 8) & 0xff)}
	peer.Write(header)
	peer.Write(data)
}

func (s *Session) readAndForwardInputs(peer net.Conn) {
	lenBuf := make([]byte, 2)
	if _, err := readFull(peer, lenBuf); err != nil {
		logging.DebugPrint("robotsession: FORWARD_INPUTS length read failed: %v", err)
		return
	}
	bodyLen := int(lenBuf[0]) | int(lenBuf[1])<<8
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := readFull(peer, body); err != nil {
			logging.DebugPrint("robotsession: FORWARD_INPUTS body read failed: %v", err)
			return
		}
	}

	input, err := wire.DecodeInput(body)
	if err != nil {
		logging.DebugPrint("robotsession: malformed forwarded input: %v", err)
		return
	}

	payload := wire.EncodeUserInputs([]wire.Input{input})
	s.writeFrame(wire.TypeInputs, payload)
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		r.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if wire.IsWouldBlock(err) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// setRunState transitions run_state, rotates the Log Tee when leaving
// IDLE, and emits the outbound RunMode frame. log_active is derived
// strictly as run_state != IDLE; the source's parse-time sign inversion
// is not replicated here.
func (s *Session) setRunState(next RunState) {
	s.mu.Lock()
	prev := s.runState
	s.runState = next
	s.mu.Unlock()

	if prev == StateIdle && next != StateIdle {
		s.tee.Rotate()
	}

	s.bus.PublishData(eventbus.RunStateChanged, next.String())
	s.sendRunMode(next)
}

func (s *Session) sendRunMode(state RunState) {
	mode := wire.RunModeIdle
	switch state {
	case StateTeleop:
		mode = wire.RunModeTeleop
	case StateAuto:
		mode = wire.RunModeAuto
	}
	s.writeFrame(wire.TypeRunMode, wire.EncodeRunMode(mode))
}

func (s *Session) writeFrame(frameType byte, payload []byte) {
	frame, err := wire.Encode(frameType, payload)
	if err != nil {
		logging.DebugError(fmt.Errorf("robotsession: encode frame failed: %w", err))
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := s.conn.Write(frame); err != nil {
		logging.DebugError(fmt.Errorf("robotsession: tcp write failed: %w", err))
		return
	}
	s.metrics.FramesEncoded.Inc()
}

// dispatch applies the Robot Session's dispatch rules for a decoded
// inbound frame (§4.4).
func (s *Session) dispatch(frame *wire.Frame) {
	switch frame.Type {
	case wire.TypeRunMode:
		s.onRemoteRunMode(frame.Payload)
	case wire.TypeLog:
		s.onLog(frame.Payload)
	case wire.TypeDeviceData:
		s.onDeviceData(frame.Payload)
	case wire.TypeStartPos, wire.TypeTimeStamps, wire.TypeInputs:
		// ignored per §4.4
	default:
		logging.DebugPrint("robotsession: unknown frame type %d, dropping", frame.Type)
		s.metrics.FrameDropped.Inc()
	}
}

func (s *Session) onRemoteRunMode(payload []byte) {
	rm, err := wire.DecodeRunMode(payload)
	if err != nil {
		logging.DebugPrint("robotsession: malformed RunMode payload: %v", err)
		return
	}
	var next RunState
	switch rm.Mode {
	case wire.RunModeTeleop:
		next = StateTeleop
	case wire.RunModeAuto:
		next = StateAuto
	default:
		next = StateIdle
	}

	s.mu.Lock()
	prev := s.runState
	s.runState = next
	s.mu.Unlock()

	if prev == StateIdle && next != StateIdle {
		s.tee.Rotate()
	}
	s.bus.PublishData(eventbus.RunStateChanged, next.String())
}

func (s *Session) onLog(payload []byte) {
	if !s.logActive() {
		return
	}
	text, err := wire.DecodeText(payload)
	if err != nil {
		logging.DebugPrint("robotsession: malformed Log payload: %v", err)
		return
	}
	n := s.tee.Append(text.Payload)
	s.metrics.LogBytes.Add(n)
	s.bus.PublishData(eventbus.LogAppended, text.Payload)
}

func (s *Session) onDeviceData(payload []byte) {
	s.cache.Store(payload)
	s.bus.PublishData(eventbus.TelemetryUpdated, nil)
}

// RunState returns the Robot Session's current run_state.
func (s *Session) RunState() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState
}

func (s *Session) logActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState != StateIdle
}

// HandleEvent lets the Bridge Router drive the Robot Session directly
// in-process for the rare paths (e.g. tests) that do not go through the
// robot-side socket. Production code always goes through the peer
// socket so that ordering with TCP frame dispatch stays single-threaded
// inside mainLoop.
func (s *Session) HandleEvent(event byte) {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer == nil {
		return
	}
	s.handleEvent(event, peer)
}

// Close tears down the TCP connection and both rendezvous resources.
// Safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		netutil.SafeCloseChannel(s.closed)
		netutil.SafeClose(s.peer)
		netutil.SafeClose(s.peerLn)
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
	})
	return s.closeErr
}
