// Package misc keeps build time information.
package misc

import (
	"runtime/debug"
)

const appName = "msimport"

// set by linker: -ldflags "-X msimport/misc.version=... -X msimport/misc.gitHash=..."
var (
	version = "dev"
	gitHash = ""
)

// GetAppName returns name of the application.
func GetAppName() string {
	return appName
}

// GetVersion returns application version.
func GetVersion() string {
	return version
}

// GetGitHash returns git hash of the build, falls back to VCS information
// recorded by the toolchain when linker flags were not provided.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
