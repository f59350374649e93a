package buildio

import "runtime/debug"

// Version is the current version of the go-buildio library
const Version = "0.3.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// GoVersion is the toolchain the binary was built with
	GoVersion string
	// Decoders lists the content codings the transfer engine accepts
	Decoders []string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	info := VersionInfo{
		Version:  Version,
		Decoders: decoderNames(defaultDecoders()),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
	}
	return info
}
