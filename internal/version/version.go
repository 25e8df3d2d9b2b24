package version

import "strings"

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/bookship/internal/version.Version=v1.3.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Satisfies reports whether the running binary matches a configured engine
// version pin. An empty pin always matches. A pin matches on equality or as
// a component prefix: pin "1.3" matches "1.3.0" and "1.3.7" but not "1.30".
// Leading "v" is ignored on both sides.
func Satisfies(pin string) bool {
	if pin == "" {
		return true
	}
	have := strings.TrimPrefix(Version, "v")
	want := strings.TrimPrefix(pin, "v")
	if have == want {
		return true
	}
	return strings.HasPrefix(have, want+".")
}

// IsDev reports whether the binary carries no release version (local builds
// without ldflags). Callers downgrade pin violations to warnings for these.
func IsDev() bool {
	return Version == "unknown" || Version == ""
}
