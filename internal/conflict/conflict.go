// Package conflict implements the per-file destination-conflict rules:
// given a computed final path and the configured ConflictMode, decide
// whether to copy, skip, overwrite, or rename, and carry out the
// "identical-file move completes" contract for Skip+move.
package conflict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/remote"
	"github.com/nullable-eth/kosmokopy/internal/verify"
	"github.com/nullable-eth/kosmokopy/pkg/types"
)

// Action is the resolver's decision for one file.
type Action int

const (
	// ActionCopy means the back-end should write Outcome.Final.
	ActionCopy Action = iota
	// ActionSkip means no bytes are written for this file.
	ActionSkip
)

// Outcome is the resolver's decision for a single FileEntry.
type Outcome struct {
	Action Action
	// Final is the destination endpoint the back-end should write to
	// when Action is ActionCopy. For Rename it differs from the path
	// the caller originally requested.
	Final endpoint.Endpoint
	// Replace is true only for Overwrite: the back-end may clobber an
	// existing file at Final.
	Replace bool
	// SourceDeleted is true when a Skip outcome triggered the
	// identical-file move-completes contract: the source was found to
	// be byte-identical to the existing destination and was removed.
	SourceDeleted bool
}

// Resolve decides the outcome for copying src to destFinal (the
// destination path already computed by joining the request's
// destination root with the entry's relative path, before any renaming).
func Resolve(ctx context.Context, src, destFinal endpoint.Endpoint, mode types.ConflictMode, move bool, mgr *remote.Manager) (Outcome, error) {
	present, err := exists(ctx, destFinal, mgr)
	if err != nil {
		return Outcome{}, fmt.Errorf("conflict: check %s: %w", destFinal.Display(), err)
	}

	if !present {
		return Outcome{Action: ActionCopy, Final: destFinal}, nil
	}

	switch mode {
	case types.ConflictOverwrite:
		return Outcome{Action: ActionCopy, Final: destFinal, Replace: true}, nil

	case types.ConflictRename:
		final, err := renameSequence(ctx, destFinal, mgr)
		if err != nil {
			return Outcome{}, fmt.Errorf("conflict: rename probe for %s: %w", destFinal.Display(), err)
		}
		return Outcome{Action: ActionCopy, Final: final}, nil

	default: // types.ConflictSkip
		outcome := Outcome{Action: ActionSkip, Final: destFinal}
		if !move {
			return outcome, nil
		}
		identical, err := identicalContent(ctx, src, destFinal, mgr)
		if err != nil {
			return Outcome{}, fmt.Errorf("conflict: identical-file check for %s: %w", destFinal.Display(), err)
		}
		if identical {
			if err := deleteSource(ctx, src, mgr); err != nil {
				return Outcome{}, fmt.Errorf("conflict: delete identical source %s: %w", src.Display(), err)
			}
			outcome.SourceDeleted = true
		}
		return outcome, nil
	}
}

// renameSequence splits the destination's basename
// into (stem, extension), then probe "stem (1).ext", "stem (2).ext", ...
// in order, returning the first name that does not currently exist. The
// same probe runs against the remote filesystem (via `test -e` on the
// shared channel) when the destination is Remote, so the parenthesised
// form is the one canonical rename convention across both endpoint
// kinds.
func renameSequence(ctx context.Context, dest endpoint.Endpoint, mgr *remote.Manager) (endpoint.Endpoint, error) {
	dir, base := splitEndpointPath(dest)
	stem, ext := splitStemExt(base)

	for n := 1; ; n++ {
		candidateName := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		candidate := endpoint.Join(dir, candidateName)
		taken, err := exists(ctx, candidate, mgr)
		if err != nil {
			return nil, err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// splitStemExt splits a basename into (stem, extension), where the
// extension is everything from the last '.' to the end, provided there
// is at least one non-dot character before that '.'. A dotfile like
// ".bashrc" has no extension under this rule; "archive.tar.gz" splits
// into "archive.tar" and ".gz".
func splitStemExt(name string) (stem, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	if strings.Trim(name[:idx], ".") == "" {
		return name, ""
	}
	return name[:idx], name[idx:]
}

// splitEndpointPath returns the parent endpoint and basename of e.
func splitEndpointPath(e endpoint.Endpoint) (endpoint.Endpoint, string) {
	switch v := e.(type) {
	case endpoint.Local:
		return endpoint.Local{Path: filepath.Dir(v.Path)}, filepath.Base(v.Path)
	case endpoint.Remote:
		path := strings.TrimRight(v.Path, "/")
		idx := strings.LastIndex(path, "/")
		if idx < 0 {
			return endpoint.Remote{Host: v.Host, Path: "."}, path
		}
		return endpoint.Remote{Host: v.Host, Path: path[:idx]}, path[idx+1:]
	default:
		return e, ""
	}
}

func exists(ctx context.Context, e endpoint.Endpoint, mgr *remote.Manager) (bool, error) {
	switch v := e.(type) {
	case endpoint.Local:
		_, err := os.Stat(v.Path)
		if err == nil {
			return true, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err != nil {
			return false, err
		}
		return ch.Exists(ctx, v.Path)
	default:
		return false, fmt.Errorf("conflict: unknown endpoint kind")
	}
}

func sizeOf(ctx context.Context, e endpoint.Endpoint, mgr *remote.Manager) (int64, error) {
	switch v := e.(type) {
	case endpoint.Local:
		info, err := os.Stat(v.Path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err != nil {
			return 0, err
		}
		return ch.Size(ctx, v.Path)
	default:
		return 0, fmt.Errorf("conflict: unknown endpoint kind")
	}
}

// identicalContent implements the "identical-file move completes"
// contract: size compared first as a cheap rejection, full SHA-256
// compare only when sizes already match.
func identicalContent(ctx context.Context, a, b endpoint.Endpoint, mgr *remote.Manager) (bool, error) {
	sizeA, err := sizeOf(ctx, a, mgr)
	if err != nil {
		return false, err
	}
	sizeB, err := sizeOf(ctx, b, mgr)
	if err != nil {
		return false, err
	}
	if sizeA != sizeB {
		return false, nil
	}

	hashA, err := verify.SHA256(ctx, a, mgr)
	if err != nil {
		return false, err
	}
	hashB, err := verify.SHA256(ctx, b, mgr)
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}

func deleteSource(ctx context.Context, src endpoint.Endpoint, mgr *remote.Manager) error {
	switch v := src.(type) {
	case endpoint.Local:
		return os.Remove(v.Path)
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err != nil {
			return err
		}
		return ch.RemoveFile(ctx, v.Path)
	default:
		return fmt.Errorf("conflict: unknown endpoint kind")
	}
}
