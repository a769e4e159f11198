package version

// Version is the application version, overridden at build time via -ldflags.
var Version = "v0.3.0"
