// Package verify computes SHA-256 digests of files at either kind of
// endpoint, used both by the move-mode integrity gate and by the
// conflict resolver's identical-file comparison.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/remote"
)

// SHA256 returns the hex-encoded SHA-256 digest of the file at e. Local
// files are hashed by streaming through the standard library; remote
// files are hashed on the remote host itself via the shared channel, so
// the bytes never cross the wire a second time just to be checksummed.
func SHA256(ctx context.Context, e endpoint.Endpoint, mgr *remote.Manager) (string, error) {
	switch v := e.(type) {
	case endpoint.Local:
		return sha256Local(v.Path)
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err != nil {
			return "", err
		}
		return ch.Hash(ctx, v.Path)
	default:
		return "", fmt.Errorf("verify: unknown endpoint kind for %s", e.Display())
	}
}

func sha256Local(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("verify: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("verify: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Match verifies that src and dst have equal SHA-256 digests, as
// required before a source file is deleted in move mode.
// It returns the two digests alongside the match result so the caller
// can log a mismatch with both values.
func Match(ctx context.Context, src, dst endpoint.Endpoint, mgr *remote.Manager) (ok bool, srcHash string, dstHash string, err error) {
	srcHash, err = SHA256(ctx, src, mgr)
	if err != nil {
		return false, "", "", err
	}
	dstHash, err = SHA256(ctx, dst, mgr)
	if err != nil {
		return false, srcHash, "", err
	}
	return srcHash == dstHash, srcHash, dstHash, nil
}
