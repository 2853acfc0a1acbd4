// Package buildinfo carries the version stamped in with
// -ldflags "-X myrtos/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the version, else the commit, else "dev".
func Short() string {
	switch {
	case Version != "" && Version != "dev":
		return Version
	case Commit != "" && Commit != "unknown":
		return Commit
	default:
		return "dev"
	}
}

// Describe returns the version with its commit and build date.
func Describe() string {
	return Short() + " (" + Commit + ", " + Date + ")"
}
