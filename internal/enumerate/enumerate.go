// Package enumerate produces the ordered list of files a transfer run
// processes, either by walking a local directory tree or by issuing a
// single `find` over a remote channel, in both cases post-filtered
// through the exclusion matchers with running exclusion counters.
package enumerate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nullable-eth/kosmokopy/internal/endpoint"
	"github.com/nullable-eth/kosmokopy/internal/exclude"
	"github.com/nullable-eth/kosmokopy/internal/remote"
	"github.com/nullable-eth/kosmokopy/pkg/types"
)

// Result bundles the ordered entries an enumeration produced with the
// running exclusion counters the report's accounting identity needs
// (copied + len(skipped) + excluded_files + errors_for_files <= total).
type Result struct {
	Entries       []types.FileEntry
	ExcludedFiles uint64
	ExcludedDirs  uint64
}

// Local walks root depth-first, visiting entries in sorted-by-name
// order at every level so that output is deterministic across runs.
// A root that is not a directory yields a single File entry with an
// empty relative path. Otherwise relative paths are relative to root
// itself, and root is always emitted first as a Dir entry with an empty
// relative path, even when root's own
// basename would match an exclusion pattern — exclusions only prune
// what the walk descends into, never the root it was asked to walk.
func Local(root string, patterns []exclude.Pattern) (Result, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return Result{}, fmt.Errorf("enumerate local: %w", err)
	}

	if !info.IsDir() {
		return Result{Entries: []types.FileEntry{{
			SourcePath:   root,
			RelativePath: "",
			Size:         info.Size(),
			Kind:         types.KindFile,
		}}}, nil
	}

	var res Result
	if err := walkDir(root, "", patterns, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func walkDir(absDir, relDir string, patterns []exclude.Pattern, res *Result) error {
	res.Entries = append(res.Entries, types.FileEntry{
		SourcePath:   absDir,
		RelativePath: relDir,
		Kind:         types.KindDir,
	})

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("enumerate local: read %s: %w", absDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		childAbs := filepath.Join(absDir, name)
		childRel := name
		if relDir != "" {
			childRel = relDir + "/" + name
		}

		if e.IsDir() {
			if exclude.ExcludesDir(patterns, name) {
				res.ExcludedDirs++
				continue
			}
			if err := walkDir(childAbs, childRel, patterns, res); err != nil {
				return err
			}
			continue
		}

		if exclude.ExcludesFile(patterns, name) {
			res.ExcludedFiles++
			continue
		}

		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("enumerate local: stat %s: %w", childAbs, err)
		}
		res.Entries = append(res.Entries, types.FileEntry{
			SourcePath:   childAbs,
			RelativePath: childRel,
			Size:         info.Size(),
			Kind:         types.KindFile,
		})
	}
	return nil
}

// Remote enumerates root on a remote host with a single `find root -type
// f`, then post-filters the flat result through the same basename
// matchers the local walk uses, deriving each entry's relative path by
// stripping the root prefix.
//
// Directory-level exclusion counting against a flat file list is
// best-effort: a directory name that matches an
// exclusion pattern is counted once per distinct path prefix it
// occurs at, which cannot detect an excluded directory that contains
// no files at all (there is nothing in `find -type f`'s output to see),
// but never double-counts a prefix it has already charged.
func Remote(ctx context.Context, ch *remote.Channel, root string, patterns []exclude.Pattern) (Result, error) {
	files, err := ch.FindFiles(ctx, root)
	if err != nil {
		return Result{}, err
	}

	// `find <file> -type f` echoes the file itself back, so a root that
	// is a regular file shows up as its own only result. Mirror the
	// local walk's single-file handling: one File entry, empty relative
	// path.
	if len(files) == 1 && strings.TrimSpace(files[0]) == root {
		size, err := ch.Size(ctx, root)
		if err != nil {
			return Result{}, err
		}
		return Result{Entries: []types.FileEntry{{
			SourcePath:   root,
			RelativePath: "",
			Size:         size,
			Kind:         types.KindFile,
		}}}, nil
	}

	res := Result{Entries: []types.FileEntry{{
		SourcePath:   root,
		RelativePath: "",
		Kind:         types.KindDir,
	}}}

	rootPrefix := strings.TrimRight(root, "/") + "/"
	seenExcludedDirs := make(map[string]bool)

	for _, abs := range files {
		abs = strings.TrimSpace(abs)
		if abs == "" || abs == root {
			continue
		}
		rel := strings.TrimPrefix(abs, rootPrefix)

		segments := strings.Split(rel, "/")
		fileName := segments[len(segments)-1]
		dirSegments := segments[:len(segments)-1]

		excludedAt := -1
		for i, seg := range dirSegments {
			if exclude.ExcludesDir(patterns, seg) {
				excludedAt = i
				break
			}
		}
		if excludedAt >= 0 {
			prefix := strings.Join(dirSegments[:excludedAt+1], "/")
			if !seenExcludedDirs[prefix] {
				seenExcludedDirs[prefix] = true
				res.ExcludedDirs++
			}
			continue
		}

		if exclude.ExcludesFile(patterns, fileName) {
			res.ExcludedFiles++
			continue
		}

		res.Entries = append(res.Entries, types.FileEntry{
			SourcePath:   abs,
			RelativePath: rel,
			Kind:         types.KindFile,
		})
	}

	sort.SliceStable(res.Entries[1:], func(i, j int) bool {
		return res.Entries[1:][i].RelativePath < res.Entries[1:][j].RelativePath
	})

	return res, nil
}

// ExplicitFiles builds one FileEntry per endpoint in an explicit file
// list (the CLI's --src-files flag); each gets an empty relative path
// since there is no shared enumeration root to derive one from.
// Entries may be a mix of Local and Remote
// endpoints; Remote sizes are fetched lazily over mgr's channel for
// that host.
func ExplicitFiles(ctx context.Context, eps []endpoint.Endpoint, mgr *remote.Manager) (Result, error) {
	var res Result
	for _, e := range eps {
		switch v := e.(type) {
		case endpoint.Local:
			info, err := os.Stat(v.Path)
			if err != nil {
				return Result{}, fmt.Errorf("enumerate explicit file %s: %w", v.Path, err)
			}
			res.Entries = append(res.Entries, types.FileEntry{
				SourcePath:   v.Path,
				RelativePath: "",
				Size:         info.Size(),
				Kind:         types.KindFile,
			})
		case endpoint.Remote:
			ch, err := mgr.Channel(v.Host)
			if err != nil {
				return Result{}, err
			}
			size, err := ch.Size(ctx, v.Path)
			if err != nil {
				return Result{}, fmt.Errorf("enumerate explicit file %s: %w", v.Display(), err)
			}
			res.Entries = append(res.Entries, types.FileEntry{
				SourcePath:   v.Path,
				RelativePath: "",
				Size:         size,
				Kind:         types.KindFile,
			})
		default:
			return Result{}, fmt.Errorf("enumerate explicit file: unknown endpoint kind for %s", e.Display())
		}
	}
	return res, nil
}
