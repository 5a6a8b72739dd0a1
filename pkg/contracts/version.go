package contracts

import (
	"fmt"
	"runtime"
)

const (
	// APIVersion is the version of the HTTP and WebSocket contracts
	APIVersion = "v1"

	// ExportFormatVersion changes whenever the CSV layout changes
	ExportFormatVersion = "1"
)

// Set during build using ldflags:
//
//	-X straitpulse/pkg/contracts.Version=1.2.0 -X straitpulse/pkg/contracts.GitCommit=$(git rev-parse --short HEAD)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	APIVersion    string `json:"api_version"`
	ExportVersion string `json:"export_format_version"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		APIVersion:    APIVersion,
		ExportVersion: ExportFormatVersion,
	}
}

// GetVersionString returns a one-line version string
func GetVersionString() string {
	return fmt.Sprintf("Strait Pulse v%s", Version)
}

// GetFullVersionString returns a detailed version string
func GetFullVersionString() string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		GetVersionString(), info.BuildTime, info.GitCommit, info.GoVersion, info.OS, info.Architecture)
}
