package version

// Version is the current version of meshcall. It is also sent to peers in
// the hello exchange.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/andrefsp/video-democry/internal/version.Version=v1.0.0'"
//
// GoReleaser will automatically set this during release builds.
var Version = "dev"
