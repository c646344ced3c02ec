// Command kosmokopy is the CLI surface for the transfer engine: it
// parses flags into a coordinator.Request, runs the pipeline, and
// writes exactly one JSON report line to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nullable-eth/kosmokopy/internal/config"
	"github.com/nullable-eth/kosmokopy/internal/coordinator"
	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/exclude"
	"github.com/nullable-eth/kosmokopy/internal/logger"
	"github.com/nullable-eth/kosmokopy/pkg/types"
)

// excludeFlags collects repeated -exclude occurrences into an ordered
// list, the way flag.Value implementations typically handle repeatable
// flags in this codebase's style.
type excludeFlags []string

func (e *excludeFlags) String() string { return strings.Join(*e, ",") }

func (e *excludeFlags) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func main() {
	var (
		cliMode     = flag.Bool("cli", false, "Enable machine-readable CLI output mode")
		src         = flag.String("src", "", "Source endpoint (local path or host:path)")
		srcFiles    = flag.String("src-files", "", "Comma-separated explicit list of source files")
		dst         = flag.String("dst", "", "Destination endpoint (local path or host:path)")
		move        = flag.Bool("move", false, "Delete source files after a verified transfer")
		conflictStr = flag.String("conflict", "skip", "Conflict resolution: skip, overwrite, rename")
		stripSpaces = flag.Bool("strip-spaces", false, "Remove spaces from every destination path segment")
		modeStr     = flag.String("mode", "folders", "Transfer mode: folders, files")
		methodStr   = flag.String("method", "standard", "Transfer back-end: standard, rsync")
		logLevel    = flag.String("log-level", "info", "Log level for stderr diagnostics")
		excludes    excludeFlags
	)
	flag.Var(&excludes, "exclude", "Exclusion pattern (repeatable)")
	flag.Parse()

	log := logger.New(*logLevel)
	if bin := os.Getenv("KOSMOKOPY_BIN"); bin != "" {
		log.WithField("kosmokopy_bin", bin).Debug("Self-path reported via environment")
	}

	if !*cliMode {
		fmt.Fprintln(os.Stderr, "kosmokopy: the engine is only exposed via --cli")
		os.Exit(1)
	}

	req, err := buildRequest(*src, *srcFiles, *dst, *move, *conflictStr, *stripSpaces, *modeStr, *methodStr, excludes)
	if err != nil {
		emitAndExit(types.Report{Status: types.StatusError, Message: err.Error()})
		return
	}

	engine := config.Default()
	sshCfg := config.LoadSSHConfig()
	coord := coordinator.New(engine, sshCfg, log)

	report := coord.Run(context.Background(), req)
	emitAndExit(report)
}

func buildRequest(src, srcFiles, dst string, move bool, conflictStr string, stripSpaces bool, modeStr, methodStr string, excludes excludeFlags) (coordinator.Request, error) {
	if src == "" && srcFiles == "" {
		return coordinator.Request{}, fmt.Errorf("endpoint: one of --src or --src-files is required")
	}
	if src != "" && srcFiles != "" {
		return coordinator.Request{}, fmt.Errorf("endpoint: --src and --src-files are mutually exclusive")
	}
	if dst == "" {
		return coordinator.Request{}, fmt.Errorf("endpoint: --dst is required")
	}

	dstEp, err := endpoint.Parse(dst)
	if err != nil {
		return coordinator.Request{}, fmt.Errorf("endpoint: %w", err)
	}

	conflictMode, ok := types.ParseConflictMode(conflictStr)
	if !ok {
		return coordinator.Request{}, fmt.Errorf("invalid --conflict value %q", conflictStr)
	}
	mode, ok := types.ParseTransferMode(modeStr)
	if !ok {
		return coordinator.Request{}, fmt.Errorf("invalid --mode value %q", modeStr)
	}
	method, ok := types.ParseMethod(methodStr)
	if !ok {
		return coordinator.Request{}, fmt.Errorf("invalid --method value %q", methodStr)
	}

	req := coordinator.Request{
		Destination: dstEp,
		Move:        move,
		Conflict:    conflictMode,
		StripSpaces: stripSpaces,
		Mode:        mode,
		Method:      method,
		Exclusions:  exclude.Compile(excludes),
	}

	if srcFiles != "" {
		var files []endpoint.Endpoint
		for _, raw := range strings.Split(srcFiles, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			ep, err := endpoint.Parse(raw)
			if err != nil {
				return coordinator.Request{}, fmt.Errorf("endpoint: %w", err)
			}
			files = append(files, ep)
		}
		if len(files) == 0 {
			return coordinator.Request{}, fmt.Errorf("endpoint: --src-files listed no paths")
		}
		req.SourceFiles = files
		// An explicit file list always implies FilesOnly semantics,
		// since there is no shared root to preserve structure under.
		req.Mode = types.ModeFilesOnly
		return req, nil
	}

	srcEp, err := endpoint.Parse(src)
	if err != nil {
		return coordinator.Request{}, fmt.Errorf("endpoint: %w", err)
	}
	req.SourceRoot = srcEp
	return req, nil
}

// emitAndExit writes report as the CLI's single JSON line on stdout and
// exits 0 for Finished or Cancelled
// with no file-level errors, 1 otherwise.
func emitAndExit(report types.Report) {
	line, err := json.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kosmokopy: failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(line))

	if report.Status == types.StatusError || report.HasFileErrors() {
		os.Exit(1)
	}
	os.Exit(0)
}
