package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SSHOptions describes how to reach and authenticate against the router.
type SSHOptions struct {
	Addr           string
	User           string
	Password       string
	KeyPath        string
	HostKey        ssh.HostKeyCallback
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// SSHDialer opens SSH sessions to one router.
type SSHDialer struct {
	addr           string
	cfg            *ssh.ClientConfig
	dialTimeout    time.Duration
	commandTimeout time.Duration
	log            *zap.Logger
}

// NewSSHDialer validates opts and prepares the client configuration. No
// connection is made until Dial.
func NewSSHDialer(opts SSHOptions, log *zap.Logger) (*SSHDialer, error) {
	if opts.Addr == "" {
		return nil, errors.New("ssh address is required")
	}
	if opts.User == "" {
		return nil, errors.New("ssh user is required")
	}

	var auth []ssh.AuthMethod
	if opts.KeyPath != "" {
		key, err := os.ReadFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", opts.KeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh password or key_path is required")
	}

	hostKey := opts.HostKey
	if hostKey == nil {
		log.Warn("router host key is not verified; set router.known_hosts to pin it", zap.String("addr", opts.Addr))
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	return &SSHDialer{
		addr: opts.Addr,
		cfg: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         opts.DialTimeout,
		},
		dialTimeout:    opts.DialTimeout,
		commandTimeout: opts.CommandTimeout,
		log:            log,
	}, nil
}

// Dial connects and authenticates a new session.
func (d *SSHDialer) Dial(ctx context.Context) (Session, error) {
	nd := net.Dialer{Timeout: d.dialTimeout}
	conn, err := nd.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("dial router %s: %w", d.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, d.addr, d.cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", d.addr, err)
	}
	// The handshake deadline must not apply to the session itself.
	_ = conn.SetDeadline(time.Time{})
	d.log.Debug("connected to router", zap.String("addr", d.addr))
	return NewSSHRunner(ssh.NewClient(c, chans, reqs), d.commandTimeout), nil
}

// SSHRunner executes commands over one SSH connection. Commands are issued one
// at a time: the connection is the cycle's exclusively owned resource.
type SSHRunner struct {
	mu      sync.Mutex
	client  *ssh.Client
	timeout time.Duration
}

func NewSSHRunner(client *ssh.Client, timeout time.Duration) *SSHRunner {
	return &SSHRunner{client: client, timeout: timeout}
}

func (r *SSHRunner) Output(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case err := <-done:
		if err == nil {
			return stdout.String(), nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) && stdout.Len() > 0 {
			// ping exits non-zero on loss but still prints its summary.
			return stdout.String(), nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %s", err.Error(), msg)
		}
		return "", err
	}
}

func (r *SSHRunner) Close() error {
	return r.client.Close()
}
