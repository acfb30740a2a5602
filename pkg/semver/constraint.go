// Package semver gates agent card versions against a configured SemVer range.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:constraint"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// Constraint is a parsed version requirement. A nil *Constraint accepts every version.
type Constraint struct {
	raw   string
	major int // -1 unless raw is major-only
	c     *masterminds.Constraints
}

// ParseConstraint parses a range such as "1", "^1.2.0", "~1.2", ">=1.0.0 <3.0.0".
// An empty string yields a nil constraint.
func ParseConstraint(raw string) (*Constraint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if IsMajorOnly(raw) {
		major, _ := strconv.Atoi(raw)
		return &Constraint{raw: raw, major: major}, nil
	}

	c, err := masterminds.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, raw, err)
	}
	return &Constraint{raw: raw, major: -1, c: c}, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// String returns the constraint as configured.
func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// Check returns nil when version satisfies the constraint.
// Versions that are not valid SemVer never satisfy a non-nil constraint.
func (c *Constraint) Check(version string) error {
	if c == nil {
		return nil
	}

	sv, err := masterminds.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return fmt.Errorf("%s - version %q is not semver: %w", logPrefix, version, err)
	}

	if c.c == nil {
		if int(sv.Major()) != c.major {
			return fmt.Errorf("%s - version %s is not in major %d", logPrefix, sv, c.major)
		}
		return nil
	}

	if ok, errs := c.c.Validate(sv); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("%s - version %s does not satisfy %q: %w", logPrefix, sv, c.raw, errs[0])
		}
		return fmt.Errorf("%s - version %s does not satisfy %q", logPrefix, sv, c.raw)
	}
	return nil
}

// Satisfies reports whether version satisfies rangeStr. An invalid range never matches.
func Satisfies(version, rangeStr string) bool {
	c, err := ParseConstraint(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(version) == nil
}
