package gitsync

import (
	"fmt"
	"sort"
)

// Resolution decides what happens to a path touched by both directions of
// a bidirectional sync.
type Resolution string

const (
	// ResolvePath flags every path present in both directions and drops it
	// from both lists.
	ResolvePath Resolution = "path"
	// ResolveHash flags a shared path only when the exported bytes differ
	// from the imported bytes. Equal bytes are reported as unchanged.
	ResolveHash Resolution = "hash"
	// ResolvePreferLocal keeps the file: the export leaves imported paths
	// alone.
	ResolvePreferLocal Resolution = "prefer-local"
	// ResolvePreferRemote keeps the note: the import does not overwrite
	// existing notes and the export rewrites their files.
	ResolvePreferRemote Resolution = "prefer-remote"
)

// ParseResolution validates s. Empty means ResolvePath.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case "":
		return ResolvePath, nil
	case ResolvePath, ResolveHash, ResolvePreferLocal, ResolvePreferRemote:
		return Resolution(s), nil
	default:
		return "", fmt.Errorf("unknown conflict resolution %q (want path, hash, prefer-local or prefer-remote)", s)
	}
}

// sides is what each direction of one run did.
type sides struct {
	imported     []string
	importHashes map[string]string
	exported     []string
	exportHashes map[string]string
}

// outcome is the reconciled view reported to the caller.
type outcome struct {
	imported  []string
	exported  []string
	conflicts []string
	unchanged []string
	resolved  []string
}

// reconcile applies mode to the paths written by each direction.
func reconcile(mode Resolution, s sides) outcome {
	var out outcome
	exported := toSet(s.exported)

	drop := make(map[string]bool)
	for _, p := range s.imported {
		switch mode {
		case ResolvePath:
			if exported[p] {
				out.conflicts = append(out.conflicts, p)
				drop[p] = true
			}
		case ResolveHash:
			eh, planned := s.exportHashes[p]
			switch {
			case !planned:
			case eh == s.importHashes[p]:
				out.unchanged = append(out.unchanged, p)
				drop[p] = true
			default:
				out.conflicts = append(out.conflicts, p)
				drop[p] = true
			}
		case ResolvePreferLocal:
			// The export held p; record it if the note would have differed.
			if eh, planned := s.exportHashes[p]; planned && eh != s.importHashes[p] {
				out.resolved = append(out.resolved, p)
			}
		case ResolvePreferRemote:
			if exported[p] {
				out.resolved = append(out.resolved, p)
				drop[p] = true
			}
		}
	}

	for _, p := range s.imported {
		if !drop[p] {
			out.imported = append(out.imported, p)
		}
	}
	for _, p := range s.exported {
		if mode == ResolvePreferRemote || !drop[p] {
			out.exported = append(out.exported, p)
		}
	}

	for _, list := range [][]string{out.imported, out.exported, out.conflicts, out.unchanged, out.resolved} {
		sort.Strings(list)
	}
	return out
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}
