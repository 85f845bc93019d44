package slate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MinServerVersion is the oldest server release this client speaks to.
// Connect refuses older servers with ErrIncompatibleServer.
var MinServerVersion = Version{Major: 1}

// semverRe matches a semantic version with optional prerelease and build
// metadata, e.g. "1.4.2-rc.1+build.7".
var semverRe = regexp.MustCompile(
	`^(\d+)\.(\d+)\.(\d+)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Version is a parsed semantic server version. Feature-gated call sites
// compare against it via AtLeast.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

// ParseVersion parses a semantic version string.
func ParseVersion(s string) (Version, error) {
	m := semverRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("slate: malformed server version %q", s)
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: m[4],
		Build:      m[5],
	}, nil
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}

	if v.Build != "" {
		s += "+" + v.Build
	}

	return s
}

// Compare returns -1, 0, or 1 if v is lower than, equal to, or higher than
// other. Build metadata is ignored; a prerelease sorts below its release.
func (v Version) Compare(other Version) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}

	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}

	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	return cmpPrerelease(v.Prerelease, other.Prerelease)
}

// AtLeast reports whether v is the same or a newer version than min.
func (v Version) AtLeast(min Version) bool {
	return v.Compare(min) >= 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// cmpPrerelease implements semver precedence for the prerelease component:
// empty (a release) outranks any prerelease; otherwise dot-separated
// identifiers compare numerically when both are digits, lexically otherwise,
// with the shorter list losing ties.
func cmpPrerelease(a, b string) int {
	if a == b {
		return 0
	}

	if a == "" {
		return 1
	}

	if b == "" {
		return -1
	}

	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		ai, aNum := atoiOK(aParts[i])
		bi, bNum := atoiOK(bParts[i])

		switch {
		case aNum && bNum:
			if c := cmpInt(ai, bi); c != 0 {
				return c
			}
		case aNum:
			return -1 // numeric identifiers sort below alphanumeric
		case bNum:
			return 1
		default:
			if c := strings.Compare(aParts[i], bParts[i]); c != 0 {
				return c
			}
		}
	}

	return cmpInt(len(aParts), len(bParts))
}

func atoiOK(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
