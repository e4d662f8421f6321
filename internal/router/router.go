// Package router implements the Bridge Router (§4.5): it binds the
// client rendezvous socket, accepts short-lived clients one at a time,
// dispatches them by a 1-byte opcode, and brokers each request against
// the Robot Session. Grounded on the teacher's tcp_server/tcp_server.go
// accept-loop shape, generalized from a context-cancellation-aware
// Accept loop with per-connection goroutines to an opcode dispatch
// table instead of line-token commands, per terminal/commands.go's
// registry pattern.
package router

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Nat3z/Daybreak/internal/config"
	"github.com/Nat3z/Daybreak/internal/eventbus"
	"github.com/Nat3z/Daybreak/internal/logging"
	"github.com/Nat3z/Daybreak/internal/logtee"
	"github.com/Nat3z/Daybreak/internal/metrics"
	"github.com/Nat3z/Daybreak/internal/netutil"
	"github.com/Nat3z/Daybreak/internal/robotsession"
	"github.com/Nat3z/Daybreak/internal/telemetry"
	"github.com/Nat3z/Daybreak/internal/transport"
)

// Opcodes, the first byte every client writes after connecting.
const (
	OpUpload        byte = 1
	OpConnect       byte = 2
	OpRun           byte = 3
	OpQueryDevices  byte = 4
	OpDownload      byte = 5
	OpInputListener byte = 6
	OpKill          byte = 255
)

// Input-listener sub-protocol bytes, written by the client over a RUN
// or INPUT_LISTENER connection.
const (
	inputFrame byte = 5
	inputEnd   byte = 4
)

// Status byte taxonomy, §6/§7.
const (
	StatusAck          byte = 1
	StatusListenerOK   byte = 2
	StatusPrecondition byte = 50
	StatusFailed       byte = 100
	StatusAuthFailure  byte = 101
	StatusTransportErr byte = 102
	StatusLocalIOErr   byte = 103
	StatusSuccess      byte = 200
	StatusKill         byte = 255
)

// Router owns the client rendezvous socket and the single live Robot
// Session, guarded by one mutex per §5's shared-resource policy.
type Router struct {
	cfg *config.Config
	m   *metrics.Metrics

	clientSockPath string
	peerSockPath   string
	ln             net.Listener

	mu        sync.Mutex
	session   *robotsession.Session
	peerConn  net.Conn
	robotKind byte
	remoteIP  string

	cacheRef *telemetry.Cache
	teeRef   *logtee.Tee
	busRef   *eventbus.Bus

	quit chan struct{}
}

// New binds the client rendezvous socket at <baseDir>/daybreak.sock. If
// force is false and the socket file already exists, New refuses to
// start (§5). The Telemetry Cache, Log Tee, and event bus are process
// lifetime singletons the Router hands to each Robot Session it creates
// on CONNECT; bus is shared with the status surface.
func New(cfg *config.Config, m *metrics.Metrics, bus *eventbus.Bus) (*Router, error) {
	clientSockPath := cfg.BaseDir + "/daybreak.sock"
	peerSockPath := cfg.BaseDir + "/daybreak.robot.sock"

	if _, err := os.Stat(clientSockPath); err == nil {
		if !cfg.Force {
			return nil, fmt.Errorf("router: rendezvous socket %s already exists (use --force)", clientSockPath)
		}
		os.Remove(clientSockPath)
	}

	ln, err := net.Listen("unix", clientSockPath)
	if err != nil {
		return nil, fmt.Errorf("router: bind rendezvous socket: %w", err)
	}

	return &Router{
		cfg:            cfg,
		m:              m,
		clientSockPath: clientSockPath,
		peerSockPath:   peerSockPath,
		ln:             ln,
		cacheRef:       telemetry.NewCache(),
		teeRef:         logtee.New(cfg.BaseDir + "/robot.run.txt"),
		busRef:         bus,
		quit:           make(chan struct{}),
	}, nil
}

func (r *Router) cache() *telemetry.Cache { return r.cacheRef }
func (r *Router) tee() *logtee.Tee        { return r.teeRef }
func (r *Router) bus() *eventbus.Bus      { return r.busRef }

// Telemetry exposes the current snapshot for the status surface's
// /telemetry route.
func (r *Router) Telemetry() ([]byte, bool) { return r.cacheRef.Snapshot() }

// RunState reports the live session's run_state, or IDLE with
// connected=false if no session exists, for /healthz.
func (r *Router) RunState() (state string, connected bool) {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()
	if sess == nil {
		return "IDLE", false
	}
	return sess.RunState().String(), true
}

// Serve runs the accept loop until Close is called. Each accepted
// client is read for one opcode and dispatched; RUN and INPUT_LISTENER
// hand the client socket to a background task instead of closing it.
func (r *Router) Serve() error {
	logging.DebugPrint("router: listening on %s", r.clientSockPath)
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.quit:
				return nil
			default:
				logging.DebugPrint("router: accept error: %v", err)
				continue
			}
		}
		r.handleClient(conn)
	}
}

// handleClient reads exactly one opcode and dispatches synchronously,
// except RUN/INPUT_LISTENER which detach a background task and return
// immediately so the accept loop keeps moving.
func (r *Router) handleClient(conn net.Conn) {
	opBuf := make([]byte, 1)
	if _, err := readFull(conn, opBuf); err != nil {
		conn.Close()
		return
	}
	op := opBuf[0]
	r.m.OpcodesTotal.Inc()

	switch op {
	case OpUpload:
		defer conn.Close()
		r.handleUpload(conn)
	case OpConnect:
		defer conn.Close()
		r.handleConnect(conn)
	case OpRun:
		r.handleRun(conn) // owns conn lifetime itself
	case OpQueryDevices:
		defer conn.Close()
		r.handleQueryDevices(conn)
	case OpDownload:
		defer conn.Close()
		r.handleDownload(conn)
	case OpInputListener:
		r.handleInputListener(conn) // owns conn lifetime itself
	case OpKill:
		defer conn.Close()
		r.handleKill(conn)
	default:
		conn.Write([]byte{StatusPrecondition})
		conn.Close()
	}
}

// handleConnect implements §4.5's CONNECT semantics: ack, delegate to
// Robot Session connect, then dial the robot-side rendezvous socket
// Robot Session just opened, retrying up to 5 times at 1s intervals.
func (r *Router) handleConnect(conn net.Conn) {
	body := make([]byte, 1+15)
	if _, err := readFull(conn, body); err != nil {
		conn.Write([]byte{StatusPrecondition})
		return
	}
	conn.Write([]byte{0x01})

	kind := body[0]
	ip := strings.TrimRight(strings.TrimSpace(string(body[1:])), "\x00")

	r.replaceSession(nil, nil, 0, "") // CONNECT atomically replaces any prior session (§3 invariant)
	r.m.SetRobotLive(false)

	sess, err := robotsession.Connect(ip, r.cfg.RobotTCPPort, r.peerSockPath, r.cache(), r.tee(), r.bus(), r.m)
	if err != nil {
		logging.DebugPrint("router: robot session connect to %s failed: %v", ip, err)
		conn.Write([]byte{StatusFailed})
		return
	}

	peerConn, err := dialPeerWithRetry(r.peerSockPath, 5, time.Second)
	if err != nil {
		sess.Close()
		logging.DebugPrint("router: could not reach robot-side rendezvous socket: %v", err)
		conn.Write([]byte{StatusFailed})
		return
	}

	r.replaceSession(sess, peerConn, kind, ip)
	r.m.SetRobotLive(true)
	conn.Write([]byte{StatusSuccess})
}

func dialPeerWithRetry(path string, retries int, wait time.Duration) (net.Conn, error) {
	var lastErr error
	for i := 0; i <= retries; i++ {
		c, err := net.Dial("unix", path)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if i < retries {
			time.Sleep(wait)
		}
	}
	return nil, lastErr
}

// handleRun implements §4.5's RUN semantics.
func (r *Router) handleRun(conn net.Conn) {
	modeBuf := make([]byte, 1)
	if _, err := readFull(conn, modeBuf); err != nil {
		conn.Write([]byte{StatusPrecondition})
		conn.Close()
		return
	}

	sess, peer := r.liveSession()
	if sess == nil {
		conn.Write([]byte{StatusFailed})
		conn.Close()
		return
	}

	switch modeBuf[0] {
	case 1: // TELEOP
		peer.Write([]byte{robotsession.EventStartTeleop})
		conn.Write([]byte{StatusAck})
		r.tee().Rotate()
		go r.inputListenerLoop(conn, peer)
	case 3: // AUTO
		peer.Write([]byte{robotsession.EventStartAuto})
		conn.Write([]byte{StatusAck})
		r.tee().Rotate()
		go r.inputListenerLoop(conn, peer)
	case 2: // STOP
		peer.Write([]byte{robotsession.EventStop})
		conn.Write([]byte{StatusAck})
		conn.Close()
	default:
		conn.Write([]byte{StatusPrecondition})
		conn.Close()
	}
}

// inputListenerLoop relays FORWARD_INPUTS frames from a RUN or
// INPUT_LISTENER client to the Robot Session until the client sends
// opcode 4 (END) or disconnects, at which point it issues STOP.
func (r *Router) inputListenerLoop(conn net.Conn, peer net.Conn) {
	defer conn.Close()
	for {
		opBuf := make([]byte, 1)
		if _, err := readFull(conn, opBuf); err != nil {
			break
		}
		if opBuf[0] == inputEnd {
			break
		}
		if opBuf[0] != inputFrame {
			continue
		}
		lenBuf := make([]byte, 2)
		if _, err := readFull(conn, lenBuf); err != nil {
			break
		}
		n := int(binary.LittleEndian.Uint16(lenBuf))
		body := make([]byte, 2+n)
		binary.LittleEndian.PutUint16(body[:2], uint16(n))
		if n > 0 {
			if _, err := readFull(conn, body[2:]); err != nil {
				break
			}
		}
		if _, err := peer.Write([]byte{robotsession.EventForwardIn}); err != nil {
			break
		}
		if _, err := peer.Write(body); err != nil {
			break
		}
	}
	peer.Write([]byte{robotsession.EventStop})
}

// handleInputListener implements §4.5 opcode 6: refuse if there is no
// live robot, else accept and drive the same relay loop as RUN.
func (r *Router) handleInputListener(conn net.Conn) {
	sess, peer := r.liveSession()
	if sess == nil {
		conn.Write([]byte{1})
		conn.Close()
		return
	}
	conn.Write([]byte{2})
	go r.inputListenerLoop(conn, peer)
}

// handleQueryDevices relays a GET_DEVICES round trip verbatim.
func (r *Router) handleQueryDevices(conn net.Conn) {
	sess, peer := r.liveSession()
	if sess == nil {
		conn.Write([]byte{0})
		return
	}
	peer.Write([]byte{robotsession.EventGetDevices})

	status := make([]byte, 1)
	if _, err := readFull(peer, status); err != nil {
		conn.Write([]byte{0})
		return
	}
	conn.Write(status)
	if status[0] == 0 {
		return
	}
	lenBuf := make([]byte, 2)
	if _, err := readFull(peer, lenBuf); err != nil {
		return
	}
	conn.Write(lenBuf)
	n := int(lenBuf[0]) | int(lenBuf[1])<<8
	body := make([]byte, n)
	if _, err := readFull(peer, body); err != nil {
		return
	}
	conn.Write(body)
}

// handleUpload and handleDownload build <cwd>/<rel_path> and delegate
// to the file transport collaborator, per §4.5.
func (r *Router) handleUpload(conn net.Conn) {
	cwd, relPath, err := readPathHeader(conn)
	if err != nil {
		conn.Write([]byte{StatusPrecondition})
		return
	}
	localPath := cwd + "/" + relPath
	if _, statErr := os.Stat(localPath); statErr != nil {
		conn.Write([]byte{StatusFailed})
		return
	}

	ip, cred, ok := r.transferTarget()
	if !ok {
		conn.Write([]byte{StatusPrecondition})
		return
	}

	err = transport.Upload(ip, config.RemoteStudentCodePath, localPath, cred)
	conn.Write([]byte{statusForTransportErr(err)})
}

func (r *Router) handleDownload(conn net.Conn) {
	cwd, relPath, err := readPathHeader(conn)
	if err != nil {
		conn.Write([]byte{StatusPrecondition})
		return
	}
	localPath := cwd + "/" + relPath

	ip, cred, ok := r.transferTarget()
	if !ok {
		conn.Write([]byte{StatusPrecondition})
		return
	}

	err = transport.Download(ip, config.RemoteStudentCodePath, localPath, cred)
	conn.Write([]byte{statusForTransportErr(err)})
}

func statusForTransportErr(err error) byte {
	if err == nil {
		return StatusSuccess
	}
	if te, ok := err.(*transport.Error); ok {
		switch te.Outcome {
		case transport.AuthFailure:
			return StatusAuthFailure
		case transport.ConnectFailure:
			return StatusTransportErr
		case transport.LocalIOFailure:
			return StatusLocalIOErr
		}
	}
	return StatusFailed
}

func (r *Router) transferTarget() (ip string, cred config.Credential, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil || r.remoteIP == "" {
		return "", config.Credential{}, false
	}
	return r.remoteIP, r.cfg.CredentialFor(r.robotKind), true
}

func readPathHeader(conn net.Conn) (cwd, relPath string, err error) {
	buf := make([]byte, 1024)
	n, rerr := conn.Read(buf)
	if rerr != nil {
		return "", "", rerr
	}
	parts := strings.SplitN(string(buf[:n]), "\x00", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("router: malformed path header")
	}
	return parts[0], parts[1], nil
}

// handleKill implements §4.5 opcode 255: remove both rendezvous socket
// files, reply success, and terminate the process.
func (r *Router) handleKill(conn net.Conn) {
	conn.Write([]byte{StatusSuccess})
	r.Close()
	os.Exit(0)
}

// Close removes the rendezvous socket files and stops the accept loop.
// Idempotent.
func (r *Router) Close() {
	netutil.SafeCloseChannel(r.quit)
	netutil.SafeClose(r.ln)
	os.Remove(r.clientSockPath)
	os.Remove(r.peerSockPath)
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()
	if sess != nil {
		netutil.SafeClose(sess)
	}
}

// replaceSession atomically swaps in a new Robot Session (§3 invariant:
// CONNECT replaces the prior session before new traffic is accepted).
// Pass nil session to tear down without installing a replacement.
func (r *Router) replaceSession(sess *robotsession.Session, peer net.Conn, kind byte, ip string) {
	r.mu.Lock()
	prevSess, prevPeer := r.session, r.peerConn
	r.session = sess
	r.peerConn = peer
	r.robotKind = kind
	r.remoteIP = ip
	r.mu.Unlock()
	if prevPeer != nil {
		prevPeer.Close()
	}
	if prevSess != nil {
		prevSess.Close()
	}
}

func (r *Router) liveSession() (*robotsession.Session, net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, nil
	}
	return r.session, r.peerConn
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
