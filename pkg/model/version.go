package model

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultVersion is assigned to the first version of a template that does not
// carry a valid semantic version of its own.
const DefaultVersion = "1.0.0"

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// ValidVersion reports whether v is a semantic version. The leading "v" is
// optional.
func ValidVersion(v string) bool {
	return semver.IsValid(canonical(v))
}

// CompareVersions orders two semantic versions; invalid versions sort before
// valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// NextPatch increments the patch component of v ("1.2.3" -> "1.2.4"). The
// result never carries a leading "v" or prerelease/build suffix.
func NextPatch(v string) (string, error) {
	c := canonical(v)
	if !semver.IsValid(c) {
		return "", fmt.Errorf("model: invalid version %q", v)
	}
	core := strings.TrimPrefix(semver.Canonical(c), "v")
	if idx := strings.IndexAny(core, "-+"); idx >= 0 {
		core = core[:idx]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("model: invalid version %q", v)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("model: invalid patch in %q: %w", v, err)
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1), nil
}

// NormalizeVersion strips a leading "v" and expands short forms ("2" ->
// "2.0.0"). Invalid input is returned trimmed but otherwise unchanged.
func NormalizeVersion(v string) string {
	c := canonical(v)
	if !semver.IsValid(c) {
		return strings.TrimSpace(v)
	}
	return strings.TrimPrefix(semver.Canonical(c), "v")
}
