// Package ipfver compares IPF archive revisions against a caller-supplied
// minimum, so the CLI can refuse to touch an archive built for a client
// version it doesn't expect.
package ipfver

import (
	"fmt"
	"strings"

	"github.com/blang/semver"

	"github.com/ipf-tools/ipfunpacker/internal/archive"
)

// AsVersion renders a footer's (BaseRevision, SubVersion) pair as a dotted
// version string, e.g. "7.3.0", suitable for CompareVersions.
func AsVersion(f archive.Footer) string {
	return fmt.Sprintf("%d.%d.0", f.BaseRevision, f.SubVersion)
}

// CompareVersions compares two dotted version strings. If both parse as
// semantic versions, compare them using semver. Otherwise fall back to a
// string comparison.
func CompareVersions(v1, v2 string) int {
	s1, err1 := semver.Make(normalize(v1))
	s2, err2 := semver.Make(normalize(v2))
	if err1 == nil && err2 == nil {
		return s1.Compare(s2)
	}
	return strings.Compare(v1, v2)
}

// normalize pads a "major.minor" string to the three components
// semver.Make requires; three-component input passes through unchanged.
func normalize(v string) string {
	if strings.Count(v, ".") == 1 {
		return v + ".0"
	}
	return v
}

// MeetsMinimum reports whether f's revision is at or above min, a dotted
// version string such as "7.0" taken from the -min-revision flag.
func MeetsMinimum(f archive.Footer, min string) bool {
	return CompareVersions(AsVersion(f), min) >= 0
}
