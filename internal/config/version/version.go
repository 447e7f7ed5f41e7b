package version

// Build metadata, overridden with -ldflags "-X" at release time.
var (
	Version      = "1.0.0"
	Toolname     = "darwinia-builder"
	Organization = "darwinia-network"
	BuildDate    = "unknown"
	CommitSHA    = "unknown"
)
