package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// NewSSHRunner returns a Runner that executes commands on a remote
// agent host over SSH. The client is dialed lazily on first use and
// reused across commands.
func NewSSHRunner(host, username string, privateKey []byte) *SSHRunner {
	return &SSHRunner{
		host:       host,
		username:   username,
		privateKey: privateKey,
	}
}

type SSHRunner struct {
	host       string
	username   string
	privateKey []byte

	client *ssh.Client
	mu     sync.Mutex
}

func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *SSHRunner) Run(ctx context.Context, command, workdir string) (*Outcome, error) {
	client, err := r.connect()
	if err != nil {
		return nil, err
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("err creating new session: %+w", err)
	}
	defer sess.Close()

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	sess.Stdout = stdout
	sess.Stderr = stderr

	if workdir != "" {
		command = fmt.Sprintf("cd %s && %s", workdir, command)
	}

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- sess.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return &Outcome{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	case err := <-doneCh:
		outcome := &Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				outcome.ExitCode = exitErr.ExitStatus()
				return outcome, nil
			}
			return outcome, err
		}
		return outcome, nil
	}
}

func (r *SSHRunner) connect() (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	signer, err := ssh.ParsePrivateKey(r.privateKey)
	if err != nil {
		return nil, fmt.Errorf("err parsing ssh private key: %+w", err)
	}
	cc := &ssh.ClientConfig{
		User:            r.username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	hostname := r.host
	if !strings.Contains(hostname, ":") {
		hostname += ":22"
	}
	client, err := ssh.Dial("tcp", hostname, cc)
	if err != nil {
		return nil, fmt.Errorf("err dialing ssh: %+w", err)
	}
	r.client = client
	return client, nil
}
