// Package version carries build-time identity, injected via -ldflags.
package version

var (
	AppName        = "Tsubaki"
	AppDescription = "AI VTuber companion for live streams"
	Version        = "dev"
	BuildDate      = ""
	GoVersion      = ""
)
