// Package transport implements the "push/pull file to remote path"
// capability spec.md §1 treats as an opaque collaborator. It speaks the
// classic SCP exec protocol over golang.org/x/crypto/ssh, the library
// the teacher's go.mod already carries for transport concerns; no
// checked-in vendor SCP client exists in the retrieval pack, so this
// package hand-rolls the minimal source/sink exchange (a handful of
// ack/nak bytes and a one-line "C<mode> <size> <name>" header) that the
// `scp` binary on the remote expects.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Nat3z/Daybreak/internal/config"
)

// Outcome classifies a transfer failure onto the status byte taxonomy
// in spec.md §7/§6: AuthFailure→101, ConnectFailure→102, LocalIOFailure→103.
type Outcome int

const (
	OK Outcome = iota
	AuthFailure
	ConnectFailure
	LocalIOFailure
)

// Error wraps a transport failure with its Outcome so the Bridge Router
// can translate it to a status byte without string-matching.
type Error struct {
	Outcome Outcome
	Err     error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

const dialTimeout = 10 * time.Second

func dial(host string, cred config.Credential) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            cred.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}
	client, err := ssh.Dial("tcp", host+":22", cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Upload copies localPath to remotePath on host, authenticating with
// cred, using the scp "sink" exchange (`scp -t <remotePath>` on the
// far end).
func Upload(host, remotePath, localPath string, cred config.Credential) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return &Error{Outcome: LocalIOFailure, Err: err}
	}
	f, err := os.Open(localPath)
	if err != nil {
		return &Error{Outcome: LocalIOFailure, Err: err}
	}
	defer f.Close()

	client, err := dial(host, cred)
	if err != nil {
		return classifyDialErr(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(fmt.Sprintf("scp -t %s", remotePath))
	}()

	if err := scpSend(stdin, bufio.NewReader(stdout), f, info); err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}

	if err := <-errCh; err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	return nil
}

// Download copies remotePath on host to localPath, using the scp
// "source" exchange (`scp -f <remotePath>`).
func Download(host, remotePath, localPath string, cred config.Credential) error {
	client, err := dial(host, cred)
	if err != nil {
		return classifyDialErr(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(fmt.Sprintf("scp -f %s", remotePath))
	}()

	out, err := os.Create(localPath)
	if err != nil {
		return &Error{Outcome: LocalIOFailure, Err: err}
	}
	defer out.Close()

	if err := scpReceive(bufio.NewReader(stdout), stdin, out); err != nil {
		return &Error{Outcome: ConnectFailure, Err: err}
	}

	<-errCh
	return nil
}

// classifyDialErr distinguishes a TCP-level failure (refused, timed out,
// no route) from an SSH-level one (handshake/auth rejected once TCP
// connected). ssh.Dial does not expose a typed auth-failure error, so
// this keys off net.Error — anything the network layer itself rejects
// is ConnectFailure, everything past that is treated as AuthFailure.
func classifyDialErr(err error) error {
	if _, ok := err.(net.Error); ok {
		return &Error{Outcome: ConnectFailure, Err: err}
	}
	return &Error{Outcome: AuthFailure, Err: err}
}

// scpSend plays the scp "source" role against a remote `scp -t` sink:
// wait for the sink's readiness ack, send the control line, wait for
// its ack, stream the file body plus a trailing zero byte, then wait
// for the final ack.
func scpSend(stdin io.WriteCloser, sinkAcks *bufio.Reader, f *os.File, info os.FileInfo) error {
	defer stdin.Close()

	if err := readAck(sinkAcks); err != nil {
		return fmt.Errorf("transport: waiting for sink ready: %w", err)
	}

	header := fmt.Sprintf("C%04o %d %s\n", info.Mode().Perm(), info.Size(), info.Name())
	if _, err := io.WriteString(stdin, header); err != nil {
		return err
	}
	if err := readAck(sinkAcks); err != nil {
		return fmt.Errorf("transport: sink rejected header: %w", err)
	}

	if _, err := io.Copy(stdin, f); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte{0}); err != nil {
		return err
	}
	return readAck(sinkAcks)
}

// readAck consumes one scp protocol status byte. 0 is success; any
// other value is a protocol-level error the remote reported.
func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		msg, _ := r.ReadString('\n')
		return fmt.Errorf("transport: remote scp error (code %d): %s", b, msg)
	}
	return nil
}

// scpReceive plays the scp "sink" role against a remote `scp -f`
// source: signal readiness, read the control line, ack it, copy the
// body, then ack the source's trailing zero byte.
func scpReceive(r *bufio.Reader, w io.Writer, out io.Writer) error {
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	var mode uint32
	var size int64
	var name string
	if _, err := fmt.Sscanf(line, "C%o %d %s", &mode, &size, &name); err != nil {
		return fmt.Errorf("transport: malformed scp header %q: %w", line, err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	if _, err := io.CopyN(out, r, size); err != nil {
		return err
	}
	if _, err := r.ReadByte(); err != nil {
		return err
	}
	_, err = w.Write([]byte{0})
	return err
}
