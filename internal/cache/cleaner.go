// Package cache removes downloaded dependency bundles from the work
// directory. Only the archive and directory names of known bundles are ever
// touched, so unrelated files in the work directory survive.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/darwinia-network/darwinia-builder/internal/target"
	fileutil "github.com/darwinia-network/darwinia-builder/internal/utils/file"
)

// CleanOptions defines what cache artifacts should be removed.
type CleanOptions struct {
	CleanArchives bool   // remove downloaded <bundle>.tar.gz files, including partial ones
	CleanBundles  bool   // remove extracted bundle directories
	Target        string // optional run target triple filter
	DryRun        bool   // report actions without deleting anything
}

// CleanResult contains the outcome of a cache cleanup run.
type CleanResult struct {
	RemovedPaths []string
	SkippedPaths []string
}

// Clean removes cached bundle artifacts under workDir according to opts.
func Clean(workDir string, opts CleanOptions) (*CleanResult, error) {
	if !opts.CleanArchives && !opts.CleanBundles {
		return nil, fmt.Errorf("at least one scope must be specified")
	}

	targets, err := gatherTargets(workDir, opts)
	if err != nil {
		return nil, err
	}

	result := &CleanResult{}
	for _, path := range targets {
		if _, err := os.Lstat(path); err != nil {
			if os.IsNotExist(err) {
				if opts.Target != "" {
					result.SkippedPaths = append(result.SkippedPaths, path)
				}
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}

		if !opts.DryRun {
			if err := os.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("removing %s: %w", path, err)
			}
		}
		result.RemovedPaths = append(result.RemovedPaths, path)
	}

	sort.Strings(result.RemovedPaths)
	sort.Strings(result.SkippedPaths)
	return result, nil
}

func gatherTargets(workDir string, opts CleanOptions) ([]string, error) {
	triples := target.Supported(target.RoleRun)
	if opts.Target != "" {
		t, err := target.Parse(target.RoleRun, opts.Target)
		if err != nil {
			return nil, err
		}
		triples = []target.Triple{t}
	}

	seen := map[string]bool{}
	var paths []string
	add := func(p string) error {
		if err := ensureSubPath(workDir, p); err != nil {
			return err
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
		return nil
	}

	for _, t := range triples {
		name := t.BundleName()
		if opts.CleanArchives {
			if err := add(filepath.Join(workDir, name+".tar.gz")); err != nil {
				return nil, err
			}
		}
		if opts.CleanBundles {
			if err := add(filepath.Join(workDir, name)); err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func ensureSubPath(base, target string) error {
	inside, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return fmt.Errorf("validating %s: %w", target, err)
	}
	if !inside || filepath.Clean(base) == filepath.Clean(target) {
		return fmt.Errorf("refusing to remove %s outside %s", target, base)
	}
	return nil
}
