package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/craterbuild/crater/src/common/errors"
	"golang.org/x/crypto/ssh"
)

// SSHDispatcherConfig holds configuration for the SSH worker transport
type SSHDispatcherConfig struct {
	// Command is the remote command that runs one worker build, reading the
	// build input document on stdin and writing the worker result JSON to
	// stdout
	Command string

	// ConnectTimeout bounds the TCP/SSH handshake
	ConnectTimeout time.Duration
}

// DefaultSSHDispatcherConfig returns sensible SSH transport defaults
func DefaultSSHDispatcherConfig() SSHDispatcherConfig {
	return SSHDispatcherConfig{
		Command:        "craterd worker",
		ConnectTimeout: 30 * time.Second,
	}
}

// SSHDispatcher runs worker builds on remote hosts over SSH. Each dispatch
// opens a connection, starts the worker command with the build input on
// stdin, and awaits the serialized result on stdout.
type SSHDispatcher struct {
	cfg SSHDispatcherConfig
}

// NewSSHDispatcher creates an SSH-backed worker dispatcher
func NewSSHDispatcher(cfg SSHDispatcherConfig) *SSHDispatcher {
	def := DefaultSSHDispatcherConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	return &SSHDispatcher{cfg: cfg}
}

// Dispatch connects to the host and starts the worker command. The returned
// WorkerBuild owns the connection until Await returns.
func (d *SSHDispatcher) Dispatch(ctx context.Context, host Host, input []byte) (WorkerBuild, error) {
	key, err := os.ReadFile(host.AuthPath)
	if err != nil {
		return nil, errors.ErrDispatchFailed.WithMessagef(
			"%s: cannot read SSH key %s", host.Hostname, host.AuthPath).WithCause(err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.ErrDispatchFailed.WithMessagef(
			"%s: cannot parse SSH key", host.Hostname).WithCause(err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            host.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // hosts come from trusted config
		Timeout:         d.cfg.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", host.Addr(), clientCfg)
	if err != nil {
		return nil, errors.ErrDispatchFailed.WithMessagef(
			"%s: SSH connection failed", host.Hostname).WithCause(err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, errors.ErrDispatchFailed.WithMessagef(
			"%s: cannot open SSH session", host.Hostname).WithCause(err)
	}

	wb := &sshWorkerBuild{
		hostname: host.Hostname,
		client:   client,
		session:  session,
	}
	session.Stdout = &wb.stdout
	session.Stderr = &wb.stderr
	session.Stdin = bytes.NewReader(input)

	if err := session.Start(d.cfg.Command); err != nil {
		session.Close()
		client.Close()
		return nil, errors.ErrDispatchFailed.WithMessagef(
			"%s: cannot start worker command", host.Hostname).WithCause(err)
	}

	log.Info("Dispatched worker build", "host", host.Hostname, "command", d.cfg.Command)
	return wb, nil
}

// sshWorkerBuild tracks one worker build running over an SSH session
type sshWorkerBuild struct {
	hostname string
	client   *ssh.Client
	session  *ssh.Session
	stdout   bytes.Buffer
	stderr   bytes.Buffer

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

// Await blocks until the remote worker command exits and parses its result.
// A non-zero exit without a parseable result document is reported as a
// failed worker, never as a Go error, so one platform's failure cannot
// abort its siblings.
func (b *sshWorkerBuild) Await(ctx context.Context) (*WorkerResult, error) {
	b.waitOnce.Do(func() {
		b.done = make(chan struct{})
		go func() {
			b.waitErr = b.session.Wait()
			b.session.Close()
			b.client.Close()
			close(b.done)
		}()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
	}

	// The worker writes its result document as the last line of stdout even
	// when the build failed, so diagnostics survive the boundary.
	var result WorkerResult
	if err := json.Unmarshal(lastJSONLine(b.stdout.Bytes()), &result); err == nil && result.Status != "" {
		return &result, nil
	}

	if b.waitErr != nil {
		return &WorkerResult{
			Status: WorkerFailed,
			Error: fmt.Sprintf("%s: worker exited without result: %v: %s",
				b.hostname, b.waitErr, tail(b.stderr.String(), 512)),
		}, nil
	}
	return &WorkerResult{
		Status: WorkerFailed,
		Error:  fmt.Sprintf("%s: worker produced no result document", b.hostname),
	}, nil
}

// Cancel sends SIGTERM to the remote worker command. Best effort: errors
// are returned for logging but the caller still awaits the terminal state.
func (b *sshWorkerBuild) Cancel(ctx context.Context) error {
	log.Info("Cancelling worker build", "host", b.hostname)
	if err := b.session.Signal(ssh.SIGTERM); err != nil {
		return errors.ErrDispatchFailed.WithMessagef(
			"%s: cannot signal worker", b.hostname).WithCause(err)
	}
	return nil
}

// lastJSONLine returns the last non-empty line of out
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return nil
	}
	return bytes.TrimSpace(lines[len(lines)-1])
}

// tail returns at most n trailing bytes of s
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
