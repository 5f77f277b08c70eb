package importer

import "fmt"

// Format names a source layout.
type Format string

const (
	FormatDirectory Format = "directory"
	FormatObsidian  Format = "obsidian"
	FormatGit       Format = "git"
)

// Path labels written on imported notes, one per format. A later run finds
// notes it created earlier by searching for these.
const (
	AttrOriginalPath = "original-path"
	AttrObsidianPath = "obsidian-path"
	AttrGitPath      = "git-path"
	AttrContentHash  = "content-hash"
)

// Profile is the per-format part of an import.
type Profile struct {
	Format       Format
	PathAttr     string
	SkipDirs     []string
	UseGitignore bool
	WikiLinks    bool
}

// ProfileFor returns the profile of f. Empty means directory.
func ProfileFor(f Format) (Profile, error) {
	switch f {
	case "", FormatDirectory:
		return Profile{Format: FormatDirectory, PathAttr: AttrOriginalPath}, nil
	case FormatObsidian:
		return Profile{
			Format:    FormatObsidian,
			PathAttr:  AttrObsidianPath,
			SkipDirs:  []string{".obsidian", ".trash"},
			WikiLinks: true,
		}, nil
	case FormatGit:
		return Profile{
			Format:       FormatGit,
			PathAttr:     AttrGitPath,
			SkipDirs:     []string{".git"},
			UseGitignore: true,
		}, nil
	default:
		return Profile{}, fmt.Errorf("unknown format %q (want directory, obsidian or git)", f)
	}
}

// PathAttrFor returns the path label of f, or "" for an unknown format.
func PathAttrFor(f Format) string {
	p, err := ProfileFor(f)
	if err != nil {
		return ""
	}
	return p.PathAttr
}
