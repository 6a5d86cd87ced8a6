package abi

import "golang.org/x/mod/semver"

// canonical prefixes a bare "x.y.z" string with "v" so it can be fed to
// golang.org/x/mod/semver, which requires the leading "v" golang.org/x/mod
// itself uses for Go module versions.
func canonical(v string) string {
	if v == "" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// ValidSemver reports whether v parses as a semantic version.
func ValidSemver(v string) bool {
	return semver.IsValid(canonical(v))
}

// Compatible implements the host/plugin compatibility rule: a plugin
// requiring minInterfaceVersion Vp is compatible with host interface
// version Vh iff
// Vp.major == Vh.major && Vh >= Vp. An empty minInterfaceVersion means the
// plugin declares no minimum and is always compatible.
func Compatible(hostVersion, minInterfaceVersion string) bool {
	if minInterfaceVersion == "" {
		return true
	}
	vh, vp := canonical(hostVersion), canonical(minInterfaceVersion)
	if !semver.IsValid(vh) || !semver.IsValid(vp) {
		return false
	}
	if semver.Major(vh) != semver.Major(vp) {
		return false
	}
	return semver.Compare(vh, vp) >= 0
}
