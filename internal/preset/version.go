package preset

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// syntheticSemver turns a bare formatVersion integer into the "vMAJOR.0.0"
// string golang.org/x/mod/semver requires, mirroring the teacher's
// canonicalVersion (version_check.go) which prefixes a bare tag with "v"
// before comparing.
func syntheticSemver(formatVersion int) string {
	return fmt.Sprintf("v%d.0.0", formatVersion)
}

// CompareFormatVersion reports whether doc's formatVersion is newer than
// CurrentFormatVersion, the same than it, or older (return values 1, 0, -1
// respectively), matching golang.org/x/mod/semver.Compare's convention.
// A newer formatVersion means this build may not understand every field
// in doc; callers should warn rather than silently drop data.
func CompareFormatVersion(doc Document) int {
	return semver.Compare(syntheticSemver(doc.FormatVersion), syntheticSemver(CurrentFormatVersion))
}
