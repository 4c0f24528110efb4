// Package version carries build metadata set with -ldflags -X.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the startup log.
func String() string {
	return "watercolumn " + Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
