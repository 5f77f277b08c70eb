package vcs

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/noteport/noteport/internal/types"
)

// Characters rejected in any string that becomes a git argument.
const shellMeta = "`$;|&<>\\"

// Additional characters rejected in ref and remote names.
const refMeta = " ~^:?*[\"'"

func reject(field, value, reason string) error {
	return &types.SecurityValidationError{Field: field, Value: value, Reason: reason}
}

func checkText(field, value string, allowNewline bool) error {
	if i := strings.IndexAny(value, shellMeta); i >= 0 {
		return reject(field, value, fmt.Sprintf("contains %q", value[i]))
	}
	for _, r := range value {
		if r == '\n' && allowNewline {
			continue
		}
		if unicode.IsControl(r) {
			return reject(field, value, "contains a control character")
		}
	}
	return nil
}

// ValidateMessage checks a commit message. Newlines are allowed.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return reject("message", msg, "is empty")
	}
	return checkText("message", msg, true)
}

// ValidateAuthor checks the author name and email.
func ValidateAuthor(a Author) error {
	if err := checkText("author name", a.Name, false); err != nil {
		return err
	}
	if strings.ContainsAny(a.Name, "<>\"") {
		return reject("author name", a.Name, "contains an address delimiter")
	}
	if err := checkText("author email", a.Email, false); err != nil {
		return err
	}
	if a.Email != "" && (strings.ContainsAny(a.Email, " \"'") || !strings.Contains(a.Email, "@")) {
		return reject("author email", a.Email, "is not an address")
	}
	return nil
}

// ValidateRef checks a branch or remote name. Empty names are accepted and
// mean "use the default".
func ValidateRef(field, name string) error {
	if name == "" {
		return nil
	}
	if err := checkText(field, name, false); err != nil {
		return err
	}
	if i := strings.IndexAny(name, refMeta); i >= 0 {
		return reject(field, name, fmt.Sprintf("contains %q", name[i]))
	}
	switch {
	case strings.HasPrefix(name, "-"):
		return reject(field, name, "starts with '-'")
	case strings.Contains(name, ".."), strings.HasSuffix(name, ".lock"), strings.HasSuffix(name, "/"), strings.HasPrefix(name, "/"):
		return reject(field, name, "is not a valid ref name")
	}
	return nil
}

// ValidatePaths checks paths relative to the repository root.
func ValidatePaths(paths []string) error {
	for _, p := range paths {
		if err := checkText("path", p, false); err != nil {
			return err
		}
		switch {
		case p == "":
			return reject("path", p, "is empty")
		case strings.HasPrefix(p, "-"):
			return reject("path", p, "starts with '-'")
		case filepath.IsAbs(p):
			return reject("path", p, "is absolute")
		case InGitDir(p):
			return reject("path", p, "is inside the git directory")
		}
		if c := filepath.Clean(p); c == ".." || strings.HasPrefix(c, ".."+string(filepath.Separator)) {
			return reject("path", p, "leaves the repository")
		}
	}
	return nil
}

// ValidateCommit checks every user-controlled value of a commit.
func ValidateCommit(opts CommitOptions) error {
	if err := ValidateMessage(opts.Message); err != nil {
		return err
	}
	if err := ValidateAuthor(opts.Author); err != nil {
		return err
	}
	return ValidatePaths(opts.Paths)
}
