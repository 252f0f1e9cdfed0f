package session

import (
	"regexp"
	"strings"

	"github.com/termhub/termhubd/internal/apierr"
)

var shellPattern = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)

// ValidateName enforces the ≤100-chars-after-trim rule, returning the
// trimmed value.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) > 100 {
		return "", apierr.New(apierr.InvalidInput, "name must be at most 100 characters")
	}
	return trimmed, nil
}

// ValidateShell enforces the shell path character-class rule. Empty is
// allowed (the PTY Adapter falls back to $SHELL).
func ValidateShell(shell string) error {
	if shell == "" {
		return nil
	}
	if !shellPattern.MatchString(shell) {
		return apierr.New(apierr.InvalidInput, "shell must match [A-Za-z0-9/_.-]+")
	}
	return nil
}

// ValidateCwd enforces the ≤500-chars and no-".." rules.
func ValidateCwd(cwd string) error {
	if cwd == "" {
		return nil
	}
	if len(cwd) > 500 {
		return apierr.New(apierr.InvalidInput, "cwd must be at most 500 characters")
	}
	if strings.Contains(cwd, "..") {
		return apierr.New(apierr.InvalidInput, "cwd must not contain \"..\"")
	}
	return nil
}

// ValidateDims enforces cols/rows in [1, 500].
func ValidateDims(cols, rows int) error {
	if cols < 1 || cols > 500 {
		return apierr.New(apierr.InvalidInput, "cols must be in [1, 500]")
	}
	if rows < 1 || rows > 500 {
		return apierr.New(apierr.InvalidInput, "rows must be in [1, 500]")
	}
	return nil
}
