// Package version carries the build metadata stamped in by the linker.
package version

import "runtime"

var info = Info{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// Info describes the running binary.
type Info struct {
	Version   string
	Commit    string
	BuildDate string
}

// Set records the build metadata. Empty values keep their defaults.
func Set(v, c, d string) {
	if v != "" {
		info.Version = v
	}
	if c != "" {
		info.Commit = c
	}
	if d != "" {
		info.BuildDate = d
	}
}

// Get returns the recorded build metadata.
func Get() Info { return info }

// Version returns the build version string.
func Version() string { return info.Version }

// UserAgent identifies proxied to remote services such as the ACME CA.
func UserAgent() string {
	return "proxied/" + info.Version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
