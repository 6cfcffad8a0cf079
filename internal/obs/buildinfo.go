package obs

// Build metadata, overridden at link time via -ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)
