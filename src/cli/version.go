package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Build information. These variables are set via -ldflags at build time.
var (
	Version   = "v0.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// releaseFiles are read in order; the first description found wins.
var releaseFiles = []struct {
	path string
	key  string
}{
	{"/etc/openwrt_release", "DISTRIB_DESCRIPTION"},
	{"/etc/os-release", "PRETTY_NAME"},
}

// platformVersion describes the operating system the daemon runs on.
func platformVersion() string {
	for _, f := range releaseFiles {
		data, err := os.ReadFile(f.path)
		if err != nil {
			continue
		}
		if v := releaseValue(string(data), f.key); v != "" {
			return v
		}
	}
	return "unknown"
}

func releaseValue(contents, key string) string {
	for _, line := range strings.Split(contents, "\n") {
		name, value, ok := strings.Cut(line, "=")
		if ok && name == key {
			return strings.Trim(value, "'\"")
		}
	}
	return ""
}

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("netconfig %s", Version)
}

// GetFullVersionInfo returns detailed version information as a map
func GetFullVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
		"platform":   platformVersion(),
	}
}

// GetFormattedVersionInfo returns a formatted multi-line version string
func GetFormattedVersionInfo() string {
	return fmt.Sprintf(`netconfig Version
version: %s
commit: %s
build_time: %s
go_version: %s
platform: %s`,
		Version, GitCommit, BuildTime, GoVersion, platformVersion())
}
