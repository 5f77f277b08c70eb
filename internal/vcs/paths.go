package vcs

import (
	"path/filepath"
	"strings"
)

// PathMeta lists the characters ValidatePaths refuses in a path.
const PathMeta = shellMeta

// IsSubPath reports whether target is base or lies below it. Both are
// compared lexically after cleaning.
func IsSubPath(base, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsGitDirName reports whether name would open the git directory. Case is
// ignored, as are the trailing dots and spaces some filesystems drop.
func IsGitDirName(name string) bool {
	return strings.EqualFold(strings.TrimRight(name, ". "), ".git")
}

// InGitDir reports whether any segment of the relative path rel names the
// git directory.
func InGitDir(rel string) bool {
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if IsGitDirName(seg) {
			return true
		}
	}
	return false
}
