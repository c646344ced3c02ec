package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/remote"
)

// StandardBackend is the built-in streaming copier: a buffered
// local-to-local stream for the common case, scp through the shared
// control-master whenever one side is remote, and a same-host relay
// when both sides are remote.
type StandardBackend struct {
	engine config.Engine
	mgr    *remote.Manager
}

// NewStandardBackend constructs a StandardBackend sharing mgr's SSH
// control-master channels with the rest of the run.
func NewStandardBackend(engine config.Engine, mgr *remote.Manager) *StandardBackend {
	return &StandardBackend{engine: engine, mgr: mgr}
}

// TransferOne implements Backend.
func (b *StandardBackend) TransferOne(ctx context.Context, src, dstFinal endpoint.Endpoint, replace bool) error {
	switch s := src.(type) {
	case endpoint.Local:
		switch d := dstFinal.(type) {
		case endpoint.Local:
			return b.localToLocal(s.Path, d.Path, replace)
		case endpoint.Remote:
			return b.localToRemote(ctx, s.Path, d)
		}
	case endpoint.Remote:
		switch d := dstFinal.(type) {
		case endpoint.Local:
			return b.remoteToLocal(ctx, s, d.Path)
		case endpoint.Remote:
			return relayRemoteToRemote(ctx, b.mgr, s, d, b.engine.KillGrace())
		}
	}
	return fmt.Errorf("transfer: unsupported endpoint pair %s -> %s", src.Display(), dstFinal.Display())
}

// localToLocal streams src into a sibling temp file under dst's
// directory, fsyncs it, then renames it into place. The rename is
// atomic on POSIX, so the destination either holds the complete file or
// does not exist at all.
func (b *StandardBackend) localToLocal(srcPath, dstPath string, replace bool) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("transfer: open source %s: %w", srcPath, err)
	}
	defer in.Close()

	dstDir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("transfer: create destination directory %s: %w", dstDir, err)
	}

	tmp, err := os.CreateTemp(dstDir, ".kosmokopy-*.tmp")
	if err != nil {
		return fmt.Errorf("transfer: create temp file in %s: %w", dstDir, err)
	}
	tmpPath := tmp.Name()
	keepTemp := false
	defer func() {
		if !keepTemp {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriterSize(tmp, b.engine.BufferSize)
	if _, err := io.Copy(w, in); err != nil {
		tmp.Close()
		return fmt.Errorf("transfer: write %s: %w", tmpPath, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("transfer: flush %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("transfer: fsync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transfer: close %s: %w", tmpPath, err)
	}

	if !replace {
		if _, err := os.Stat(dstPath); err == nil {
			return fmt.Errorf("transfer: conflict: destination %s appeared after name selection", dstPath)
		}
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return fmt.Errorf("transfer: rename %s to %s: %w", tmpPath, dstPath, err)
	}
	keepTemp = true
	return nil
}

func (b *StandardBackend) localToRemote(ctx context.Context, srcPath string, dst endpoint.Remote) error {
	ch, err := b.mgr.Channel(dst.Host)
	if err != nil {
		return err
	}
	if err := ch.Mkdirp(ctx, remoteParentDir(dst.Path)); err != nil {
		return fmt.Errorf("transfer: create remote directory: %w", err)
	}

	args := append([]string{}, ch.SCPControlArgs()...)
	args = append(args, srcPath, ch.RemoteTarget()+":"+dst.Path)

	cmd := exec.CommandContext(ctx, "scp", args...)
	remote.ConfigureGracefulCancel(cmd, b.engine.KillGrace())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transfer: scp %s -> %s failed: %s: %w", srcPath, dst.Display(), strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (b *StandardBackend) remoteToLocal(ctx context.Context, src endpoint.Remote, dstPath string) error {
	ch, err := b.mgr.Channel(src.Host)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("transfer: create destination directory: %w", err)
	}

	args := append([]string{}, ch.SCPControlArgs()...)
	args = append(args, ch.RemoteTarget()+":"+src.Path, dstPath)

	cmd := exec.CommandContext(ctx, "scp", args...)
	remote.ConfigureGracefulCancel(cmd, b.engine.KillGrace())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transfer: scp %s -> %s failed: %s: %w", src.Display(), dstPath, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// relayRemoteToRemote streams a remote source's bytes through SSH to
// local stdout, piping them directly into a second SSH invocation that
// writes them to the remote destination with `cat > dest`. No
// intermediate disk file, local or remote, is ever created. Shared by
// both back-ends since neither scp nor rsync support a direct
// remote-to-remote copy.
func relayRemoteToRemote(ctx context.Context, mgr *remote.Manager, src, dst endpoint.Remote, killGrace time.Duration) error {
	srcCh, err := mgr.Channel(src.Host)
	if err != nil {
		return err
	}
	dstCh, err := mgr.Channel(dst.Host)
	if err != nil {
		return err
	}
	if err := dstCh.Mkdirp(ctx, remoteParentDir(dst.Path)); err != nil {
		return fmt.Errorf("transfer: create remote directory: %w", err)
	}

	readArgs := append([]string{}, srcCh.SCPControlArgs()...)
	readArgs = append(readArgs, srcCh.RemoteTarget(), "cat "+remote.ShellQuote(src.Path))
	readCmd := exec.CommandContext(ctx, "ssh", readArgs...)
	remote.ConfigureGracefulCancel(readCmd, killGrace)

	writeArgs := append([]string{}, dstCh.SCPControlArgs()...)
	writeArgs = append(writeArgs, dstCh.RemoteTarget(), "cat > "+remote.ShellQuote(dst.Path))
	writeCmd := exec.CommandContext(ctx, "ssh", writeArgs...)
	remote.ConfigureGracefulCancel(writeCmd, killGrace)

	pipe, err := readCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transfer: relay pipe: %w", err)
	}
	writeCmd.Stdin = pipe

	var readErrBuf, writeErrBuf bytes.Buffer
	readCmd.Stderr = &readErrBuf
	writeCmd.Stderr = &writeErrBuf

	if err := writeCmd.Start(); err != nil {
		return fmt.Errorf("transfer: relay start write leg: %w", err)
	}
	if err := readCmd.Start(); err != nil {
		_ = writeCmd.Process.Kill()
		return fmt.Errorf("transfer: relay start read leg: %w", err)
	}

	readErr := readCmd.Wait()
	writeErr := writeCmd.Wait()

	if readErr != nil {
		return fmt.Errorf("transfer: relay read %s failed: %s: %w", src.Display(), strings.TrimSpace(readErrBuf.String()), readErr)
	}
	if writeErr != nil {
		return fmt.Errorf("transfer: relay write %s failed: %s: %w", dst.Display(), strings.TrimSpace(writeErrBuf.String()), writeErr)
	}
	return nil
}

// remoteParentDir returns the POSIX parent directory of p, the way
// `dirname` would, for use as a `mkdir -p` target.
func remoteParentDir(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return p[:idx]
}
