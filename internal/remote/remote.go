// Package remote manages the SSH control-master connections kosmokopy
// shares across every ssh/scp/rsync invocation against a given host, and
// exposes the handful of remote shell operations the rest of the engine
// needs (existence checks, hashing, directory listing, mkdir, rm).
//
// The transport is deliberately the real ssh/scp/rsync binaries, not a
// Go SSH client library: only the external ssh client participates in
// OpenSSH's ControlMaster/ControlPath multiplexing, and the engine's
// external contract is defined in terms of that multiplexing.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/logger"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ConfigureGracefulCancel arranges for cmd to receive SIGTERM when its
// context is cancelled, giving it up to grace before Go's exec package
// escalates to SIGKILL. Shared by every ssh/scp/rsync invocation in the
// engine so cancellation never corrupts an in-flight file.
func ConfigureGracefulCancel(cmd *exec.Cmd, grace time.Duration) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
}

// Manager owns one Channel per distinct remote host for the duration of
// a run, and tears every one of them down when the run ends.
type Manager struct {
	mu       sync.Mutex
	channels map[string]*Channel
	engine   config.Engine
	ssh      config.SSHConfig
	log      *logger.Logger
}

// NewManager creates a Manager scoped to one run.
func NewManager(engine config.Engine, ssh config.SSHConfig, log *logger.Logger) *Manager {
	return &Manager{
		channels: make(map[string]*Channel),
		engine:   engine,
		ssh:      ssh,
		log:      log,
	}
}

// Channel returns the (lazily opened) channel for host, creating it on
// first use.
func (m *Manager) Channel(host string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[host]; ok {
		return ch, nil
	}

	ch, err := newChannel(host, m.engine, m.ssh, m.log)
	if err != nil {
		return nil, err
	}
	m.channels[host] = ch
	return ch, nil
}

// CloseAll tears down every control-master socket opened during the
// run. Safe to call even if no channel was ever opened.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for host, ch := range m.channels {
		ch.Close()
		delete(m.channels, host)
	}
}

// Channel is one SSH control-master connection to a single remote host.
// It is opened lazily (the first command run against it creates the
// ControlMaster socket) and shared by every subsequent ssh/scp/rsync
// invocation against that host.
type Channel struct {
	host        string
	controlPath string
	sshConfig   config.SSHConfig
	persistSec  int
	killGrace   time.Duration
	log         *logger.Logger
	opened      bool
}

func newChannel(host string, engine config.Engine, sshCfg config.SSHConfig, log *logger.Logger) (*Channel, error) {
	if sshCfg.StrictHostKeyCheck && sshCfg.KnownHostsFile != "" {
		if err := preflightKnownHosts(sshCfg.KnownHostsFile, host, log); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	controlPath := deterministicSocketPath(engine.TempDir, host)
	return &Channel{
		host:        host,
		controlPath: controlPath,
		sshConfig:   sshCfg,
		persistSec:  engine.ControlPersistSec,
		killGrace:   engine.KillGrace(),
		log:         log,
	}, nil
}

// preflightKnownHosts parses the configured known_hosts file with
// golang.org/x/crypto/ssh/knownhosts before the first real connection is
// attempted, so a malformed host-key database surfaces as an immediate
// Connect-kind error instead of an opaque ssh(1) failure later. It does
// not participate in the actual transport; that is still the external
// ssh binary, which is the only client able to join the control-master
// socket.
func preflightKnownHosts(path, host string, log *logger.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("known_hosts file %q: %w", path, err)
	}
	if _, err := knownhosts.New(path); err != nil {
		return fmt.Errorf("known_hosts file %q is not parseable: %w", path, err)
	}
	log.WithField("known_hosts", path).WithField("host", host).Debug("known_hosts file validated")
	return nil
}

// deterministicSocketPath derives a ControlPath from (host, pid, uid),
// living under the engine's temp directory, so repeated runs by the
// same process land on the same socket.
func deterministicSocketPath(tmpDir, host string) string {
	name := fmt.Sprintf("kosmokopy_ssh_%s_%d_%d", sanitizeForFilename(host), os.Getpid(), os.Getuid())
	return filepath.Join(tmpDir, name)
}

func sanitizeForFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

// controlArgs returns the -o triplet every ssh/scp/rsync invocation
// against this channel's host must carry.
func (c *Channel) controlArgs() []string {
	args := []string{
		"-o", "ControlMaster=auto",
		"-o", "ControlPath=" + c.controlPath,
		"-o", fmt.Sprintf("ControlPersist=%d", c.persistSec),
	}
	if c.sshConfig.Port != "" && c.sshConfig.Port != "22" {
		args = append(args, "-p", c.sshConfig.Port)
	}
	if c.sshConfig.StrictHostKeyCheck {
		args = append(args, "-o", "StrictHostKeyChecking=yes")
		if c.sshConfig.KnownHostsFile != "" {
			args = append(args, "-o", "UserKnownHostsFile="+c.sshConfig.KnownHostsFile)
		}
	} else {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}
	return args
}

// SCPControlArgs exposes the same control triplet for the scp binary,
// used by the Standard back-end's Local<->Remote transfers.
func (c *Channel) SCPControlArgs() []string {
	return c.controlArgs()
}

// RsyncSSHCommand builds the `-e` argument rsync needs to route its
// transport through this channel's control-master socket.
func (c *Channel) RsyncSSHCommand() string {
	parts := append([]string{"ssh"}, c.controlArgs()...)
	return strings.Join(quoteArgs(parts), " ")
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t'\"") {
			out[i] = ShellQuote(a)
		} else {
			out[i] = a
		}
	}
	return out
}

// remoteTarget returns the "[user@]host" address for scp/rsync remote
// specs.
func (c *Channel) remoteTarget() string {
	if c.sshConfig.User != "" {
		return c.sshConfig.User + "@" + c.host
	}
	return c.host
}

// RemoteTarget is the exported form of remoteTarget for back-ends that
// build scp/rsync remote specs ("[user@]host:path").
func (c *Channel) RemoteTarget() string { return c.remoteTarget() }

// Host returns the channel's host.
func (c *Channel) Host() string { return c.host }

// Exec runs shellCmd on the remote host over this channel, returning
// trimmed stdout. A non-zero exit with non-empty stderr is reported as
// an error carrying the command and stderr.
func (c *Channel) Exec(ctx context.Context, shellCmd string) (string, error) {
	args := append([]string{}, c.controlArgs()...)
	args = append(args, c.remoteTarget(), shellCmd)

	cmd := exec.CommandContext(ctx, "ssh", args...)
	ConfigureGracefulCancel(cmd, c.killGrace)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	c.markOpened()

	if err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if stderrText != "" {
			err = fmt.Errorf("remote command %q failed: %s", shellCmd, stderrText)
		} else {
			err = fmt.Errorf("remote command %q failed: %w", shellCmd, err)
		}
		c.log.LogRemoteCommand(c.host, shellCmd, err)
		return "", err
	}

	c.log.LogRemoteCommand(c.host, shellCmd, nil)
	return strings.TrimSpace(stdout.String()), nil
}

// Exists checks for the presence of path on the remote host via `test -e`.
func (c *Channel) Exists(ctx context.Context, path string) (bool, error) {
	cmd := fmt.Sprintf("test -e %s", ShellQuote(path))
	args := append([]string{}, c.controlArgs()...)
	args = append(args, c.remoteTarget(), cmd)

	out := exec.CommandContext(ctx, "ssh", args...)
	ConfigureGracefulCancel(out, c.killGrace)
	err := out.Run()
	c.markOpened()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("remote exists check failed: %w", err)
}

// markOpened records that the control-master socket has been touched at
// least once, so Close knows there is something to tear down.
func (c *Channel) markOpened() {
	if c.opened {
		return
	}
	c.opened = true
	c.log.LogControlMasterOpened(c.host, c.controlPath)
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// Hash returns the SHA-256 hex digest of a remote file. It tries
// sha256sum first and falls back to `shasum -a 256`, matching the
// fallback chain used elsewhere for stat dialects. Both forms print
// "<hex> <filename>"; only the first whitespace-separated token is kept.
// An exit-zero command with empty output is itself treated as an error,
// never silently accepted.
func (c *Channel) Hash(ctx context.Context, path string) (string, error) {
	quoted := ShellQuote(path)
	out, err := c.Exec(ctx, "sha256sum "+quoted)
	if err != nil {
		out, err = c.Exec(ctx, "shasum -a 256 "+quoted)
		if err != nil {
			return "", fmt.Errorf("hash remote file %s: %w", path, err)
		}
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("hash remote file %s: empty output from hash command", path)
	}
	return fields[0], nil
}

// Size returns the byte size of a remote file, trying GNU `stat -c%s`
// first and falling back to BSD/macOS `stat -f%z` (the same two-dialect
// fallback pattern as Hash).
func (c *Channel) Size(ctx context.Context, path string) (int64, error) {
	quoted := ShellQuote(path)
	out, err := c.Exec(ctx, "stat -c%s "+quoted)
	if err != nil {
		out, err = c.Exec(ctx, "stat -f%z "+quoted)
		if err != nil {
			return 0, fmt.Errorf("stat remote file %s: %w", path, err)
		}
	}
	size, convErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if convErr != nil {
		return 0, fmt.Errorf("stat remote file %s: unparseable size %q", path, out)
	}
	return size, nil
}

// Mkdirp creates a directory (and parents) on the remote host.
func (c *Channel) Mkdirp(ctx context.Context, path string) error {
	_, err := c.Exec(ctx, "mkdir -p "+ShellQuote(path))
	return err
}

// RemoveFile deletes a file on the remote host.
func (c *Channel) RemoveFile(ctx context.Context, path string) error {
	_, err := c.Exec(ctx, "rm -f "+ShellQuote(path))
	return err
}

// FindFiles lists every regular file under root, recursively, via
// `find root -type f`.
func (c *Channel) FindFiles(ctx context.Context, root string) ([]string, error) {
	out, err := c.Exec(ctx, "find "+ShellQuote(root)+" -type f")
	if err != nil {
		return nil, fmt.Errorf("enumerate remote: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// FindDirs lists every directory under root, recursively, via
// `find root -type d`. enumerate.Remote does not call it; remote
// directory exclusions are counted from FindFiles output alone.
func (c *Channel) FindDirs(ctx context.Context, root string) ([]string, error) {
	out, err := c.Exec(ctx, "find "+ShellQuote(root)+" -type d")
	if err != nil {
		return nil, fmt.Errorf("enumerate remote dirs: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Close tears down the control-master socket via `ssh -O exit`.
// Best-effort: errors are logged, never returned, since the socket will
// also expire on its own after ControlPersist elapses.
func (c *Channel) Close() {
	if !c.opened {
		return
	}
	args := []string{
		"-o", "ControlPath=" + c.controlPath,
		"-O", "exit",
		c.remoteTarget(),
	}
	cmd := exec.Command("ssh", args...)
	_ = cmd.Run()
	c.log.LogControlMasterClosed(c.host)
}

// ShellQuote single-quotes s for safe inclusion in a remote shell
// command, escaping embedded single quotes as '\''.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ParsePort validates a port string, returning 22 for an empty one.
// No back-end calls it; controlArgs passes the configured port string
// through as given.
func ParsePort(port string) (int, error) {
	if port == "" {
		return 22, nil
	}
	return strconv.Atoi(port)
}
