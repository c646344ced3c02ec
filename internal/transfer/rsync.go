package transfer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/remote"
)

// RsyncBackend transfers one file at a time via rsync with --checksum,
// so content rather than size/mtime governs whether rsync considers the
// destination already up to date. Recursion stays the Enumerator's job:
// every invocation names exactly one source file and one destination
// path, never a directory.
type RsyncBackend struct {
	engine config.Engine
	mgr    *remote.Manager
}

// NewRsyncBackend constructs an RsyncBackend sharing mgr's SSH
// control-master channels with the rest of the run.
func NewRsyncBackend(engine config.Engine, mgr *remote.Manager) *RsyncBackend {
	return &RsyncBackend{engine: engine, mgr: mgr}
}

// TransferOne implements Backend.
func (b *RsyncBackend) TransferOne(ctx context.Context, src, dstFinal endpoint.Endpoint, replace bool) error {
	srcRemote, srcIsRemote := src.(endpoint.Remote)
	dstRemote, dstIsRemote := dstFinal.(endpoint.Remote)

	// rsync has no remote-to-remote mode; fall back to the same
	// same-host relay the Standard back-end uses.
	if srcIsRemote && dstIsRemote {
		return relayRemoteToRemote(ctx, b.mgr, srcRemote, dstRemote, b.engine.KillGrace())
	}

	args := []string{"--checksum", "--times", "--perms"}

	var srcArg, dstArg string
	var sshCh *remote.Channel
	var err error

	if srcIsRemote {
		sshCh, err = b.mgr.Channel(srcRemote.Host)
		if err != nil {
			return err
		}
		srcArg = sshCh.RemoteTarget() + ":" + srcRemote.Path
	} else {
		srcArg = src.(endpoint.Local).Path
	}

	if dstIsRemote {
		sshCh, err = b.mgr.Channel(dstRemote.Host)
		if err != nil {
			return err
		}
		if err := sshCh.Mkdirp(ctx, remoteParentDir(dstRemote.Path)); err != nil {
			return fmt.Errorf("transfer: create remote directory: %w", err)
		}
		dstArg = sshCh.RemoteTarget() + ":" + dstRemote.Path
	} else {
		dstPath := dstFinal.(endpoint.Local).Path
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("transfer: create destination directory: %w", err)
		}
		dstArg = dstPath
	}

	if sshCh != nil {
		args = append(args, "-e", sshCh.RsyncSSHCommand())
	}

	args = append(args, srcArg, dstArg)

	cmd := exec.CommandContext(ctx, "rsync", args...)
	remote.ConfigureGracefulCancel(cmd, b.engine.KillGrace())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transfer: rsync %s -> %s failed: %s: %w", src.Display(), dstFinal.Display(), strings.TrimSpace(string(out)), err)
	}
	return nil
}
