// Package coordinator drives the pipeline a TransferRequest describes:
// it enumerates the source, resolves each file's destination conflict,
// hands it to a transfer back-end, optionally verifies it before
// deleting the source in move mode, and aggregates the result into a
// Report. It is the only component with mutable progress state and runs
// single-threaded and cooperative, honoring cancellation between
// entries and after every back-end invocation.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nullable-eth/kosmokopy/internal/conflict"
	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/enumerate"
	"github.com/nullable-eth/kosmokopy/internal/exclude"
	"github.com/nullable-eth/kosmokopy/internal/logger"
	"github.com/nullable-eth/kosmokopy/internal/remote"
	"github.com/nullable-eth/kosmokopy/internal/transfer"
	"github.com/nullable-eth/kosmokopy/internal/verify"
	"github.com/nullable-eth/kosmokopy/pkg/types"
)

// Request is the engine's external request object: what to transfer,
// where to, and the policies to apply along the way.
type Request struct {
	// SourceRoot is set for a directory-or-single-file source. Nil when
	// SourceFiles is used instead.
	SourceRoot endpoint.Endpoint
	// SourceFiles is an explicit list of individual source files,
	// mutually exclusive with SourceRoot. Its presence forces FilesOnly
	// semantics regardless of Mode.
	SourceFiles []endpoint.Endpoint
	Destination endpoint.Endpoint
	Move        bool
	Conflict    types.ConflictMode
	StripSpaces bool
	Mode        types.TransferMode
	Method      types.Method
	Exclusions  []exclude.Pattern
}

// Coordinator runs one Request end to end.
type Coordinator struct {
	engine config.Engine
	ssh    config.SSHConfig
	log    *logger.Logger
}

// New builds a Coordinator for a single run.
func New(engine config.Engine, sshCfg config.SSHConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{engine: engine, ssh: sshCfg, log: log}
}

// Run executes req and returns the final Report. It never returns an
// error itself: a fatal setup failure is a Report with Status Error,
// and per-file failures are collected in Report.Errors while the run
// goes on, matching the CLI's one-JSON-line-on-stdout contract.
func (c *Coordinator) Run(parent context.Context, req Request) types.Report {
	var cancelled int32
	ctx, stop := context.WithCancel(parent)
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var handledSignal int32
	go func() {
		for sig := range sigCh {
			if !atomic.CompareAndSwapInt32(&handledSignal, 0, 1) {
				continue // first signal only; ignore the rest during shutdown
			}
			atomic.StoreInt32(&cancelled, 1)
			c.log.LogCancelRequested(sig.String())
			stop()
		}
	}()

	mgr := remote.NewManager(c.engine, c.ssh, c.log)
	defer mgr.CloseAll()

	startedAt := time.Now()

	enumRes, err := c.enumerate(ctx, req, mgr)
	if err != nil {
		return types.Report{Status: types.StatusError, Message: err.Error()}
	}

	var backend transfer.Backend
	if req.Method == types.MethodRsync {
		backend = transfer.NewRsyncBackend(c.engine, mgr)
	} else {
		backend = transfer.NewStandardBackend(c.engine, mgr)
	}

	rootName := ""
	if req.SourceRoot != nil {
		rootName = baseName(req.SourceRoot)
	}

	report := types.Report{Status: types.StatusFinished, ExcludedFiles: enumRes.ExcludedFiles, ExcludedDirs: enumRes.ExcludedDirs}

	for i, entry := range enumRes.Entries {
		if atomic.LoadInt32(&cancelled) == 1 {
			report.Status = types.StatusCancelled
			break
		}

		if entry.Kind == types.KindDir {
			c.ensureDestDir(ctx, req, rootName, entry, mgr)
			continue
		}

		src := localOrRemoteSourceEndpoint(req, entry, i)
		destFinal := c.destinationFor(req, rootName, entry)

		outcome, err := conflict.Resolve(ctx, src, destFinal, req.Conflict, req.Move, mgr)
		if err != nil {
			if atomic.LoadInt32(&cancelled) == 1 {
				report.Status = types.StatusCancelled
				break
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", displayRel(entry), err))
			continue
		}

		if outcome.Action == conflict.ActionSkip {
			report.Skipped = append(report.Skipped, displayRel(entry))
			if outcome.SourceDeleted {
				c.log.LogTransferSkipped(displayRel(entry), "identical_file_move_completed")
			} else {
				c.log.LogTransferSkipped(displayRel(entry), "conflict_skip")
			}
			if atomic.LoadInt32(&cancelled) == 1 {
				report.Status = types.StatusCancelled
				break
			}
			continue
		}

		startedFile := time.Now()
		c.log.LogTransferStarted(src.Display(), outcome.Final.Display(), entry.Size)

		if err := backend.TransferOne(ctx, src, outcome.Final, outcome.Replace); err != nil {
			if atomic.LoadInt32(&cancelled) == 1 {
				// The child was torn down by the cancellation signal;
				// the current file is simply not copied, not an error.
				report.Status = types.StatusCancelled
				break
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", displayRel(entry), err))
			continue
		}

		if req.Move {
			ok, srcHash, dstHash, verr := verify.Match(ctx, src, outcome.Final, mgr)
			if verr != nil {
				if atomic.LoadInt32(&cancelled) == 1 {
					report.Status = types.StatusCancelled
					break
				}
				report.Errors = append(report.Errors, fmt.Sprintf("%s: verify: %v", displayRel(entry), verr))
				continue
			}
			if !ok {
				c.log.LogVerifyMismatch(displayRel(entry), srcHash, dstHash)
				report.Errors = append(report.Errors, fmt.Sprintf("%s: verify: hash mismatch, source retained", displayRel(entry)))
				continue
			}
			if err := deleteSource(ctx, src, mgr); err != nil {
				if atomic.LoadInt32(&cancelled) == 1 {
					report.Status = types.StatusCancelled
					break
				}
				report.Errors = append(report.Errors, fmt.Sprintf("%s: delete source after move: %v", displayRel(entry), err))
				continue
			}
		}

		report.Copied++
		c.log.LogTransferCompleted(src.Display(), outcome.Final.Display(), entry.Size, time.Since(startedFile))

		if atomic.LoadInt32(&cancelled) == 1 {
			report.Status = types.StatusCancelled
			break
		}
	}

	c.log.LogRunSummary(report.Status.String(), report.Copied, report.ExcludedFiles, report.ExcludedDirs, len(report.Errors), time.Since(startedAt))
	return report
}

func (c *Coordinator) enumerate(ctx context.Context, req Request, mgr *remote.Manager) (enumerate.Result, error) {
	if len(req.SourceFiles) > 0 {
		res, err := enumerate.ExplicitFiles(ctx, req.SourceFiles, mgr)
		if err != nil {
			return enumerate.Result{}, fmt.Errorf("enumerate: %w", err)
		}
		return res, nil
	}

	switch v := req.SourceRoot.(type) {
	case endpoint.Local:
		res, err := enumerate.Local(v.Path, req.Exclusions)
		if err != nil {
			return enumerate.Result{}, fmt.Errorf("enumerate: %w", err)
		}
		return res, nil
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err != nil {
			return enumerate.Result{}, fmt.Errorf("connect: %w", err)
		}
		res, err := enumerate.Remote(ctx, ch, v.Path, req.Exclusions)
		if err != nil {
			return enumerate.Result{}, fmt.Errorf("enumerate: %w", err)
		}
		return res, nil
	default:
		return enumerate.Result{}, fmt.Errorf("enumerate: no source specified")
	}
}

// destinationFor computes the fully resolved destination endpoint for a
// File entry, applying structure preservation (with root-name
// prefixing) or flattening, and strip-spaces rewriting per path
// segment.
func (c *Coordinator) destinationFor(req Request, rootName string, entry types.FileEntry) endpoint.Endpoint {
	if len(req.SourceFiles) > 0 || req.Mode == types.ModeFilesOnly {
		name := endpoint.RewriteName(filepath.Base(entry.SourcePath), req.StripSpaces)
		return endpoint.Join(req.Destination, name)
	}

	rel := entry.RelativePath
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		segments[i] = endpoint.RewriteName(seg, req.StripSpaces)
	}
	rewrittenRel := strings.Join(segments, "/")

	rootSeg := endpoint.RewriteName(rootName, req.StripSpaces)
	full := rootSeg
	if rewrittenRel != "" {
		full = rootSeg + "/" + rewrittenRel
	}
	return endpoint.Join(req.Destination, full)
}

// ensureDestDir creates the destination directory corresponding to a
// Dir entry from the enumerator, in structure-preserving mode only;
// FilesOnly and explicit-file-list runs never create subdirectories.
func (c *Coordinator) ensureDestDir(ctx context.Context, req Request, rootName string, entry types.FileEntry, mgr *remote.Manager) {
	if len(req.SourceFiles) > 0 || req.Mode == types.ModeFilesOnly {
		return
	}

	rootSeg := endpoint.RewriteName(rootName, req.StripSpaces)
	full := rootSeg
	if entry.RelativePath != "" {
		segments := strings.Split(entry.RelativePath, "/")
		for i, seg := range segments {
			segments[i] = endpoint.RewriteName(seg, req.StripSpaces)
		}
		full = rootSeg + "/" + strings.Join(segments, "/")
	}

	dest := endpoint.Join(req.Destination, full)
	switch v := dest.(type) {
	case endpoint.Local:
		_ = os.MkdirAll(v.Path, 0o755)
	case endpoint.Remote:
		ch, err := mgr.Channel(v.Host)
		if err == nil {
			_ = ch.Mkdirp(ctx, v.Path)
		}
	}
}

// localOrRemoteSourceEndpoint rebuilds the source endpoint for entry.
// For a root-based walk every entry shares SourceRoot's kind. For an
// explicit file list, entries are produced by enumerate.ExplicitFiles
// in the same order as req.SourceFiles with none filtered out, so index
// i identifies which original endpoint (and therefore which host, if
// any) entry came from.
func localOrRemoteSourceEndpoint(req Request, entry types.FileEntry, i int) endpoint.Endpoint {
	if len(req.SourceFiles) > 0 && i < len(req.SourceFiles) {
		if v, ok := req.SourceFiles[i].(endpoint.Remote); ok {
			return endpoint.Remote{Host: v.Host, Path: entry.SourcePath}
		}
		return endpoint.Local{Path: entry.SourcePath}
	}

	switch v := req.SourceRoot.(type) {
	case endpoint.Remote:
		return endpoint.Remote{Host: v.Host, Path: entry.SourcePath}
	default:
		return endpoint.Local{Path: entry.SourcePath}
	}
}

func baseName(e endpoint.Endpoint) string {
	switch v := e.(type) {
	case endpoint.Local:
		return filepath.Base(v.Path)
	case endpoint.Remote:
		path := strings.TrimRight(v.Path, "/")
		idx := strings.LastIndex(path, "/")
		if idx < 0 {
			return path
		}
		return path[idx+1:]
	default:
		return ""
	}
}

func displayRel(entry types.FileEntry) string {
	if entry.RelativePath != "" {
		return entry.RelativePath
	}
	return entry.SourcePath
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
		return fmt.Errorf("coordinator: unknown endpoint kind")
	}
}
