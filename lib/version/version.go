// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

var (
	// GitCommit is the short SHA of the build's commit.
	GitCommit = "unknown"

	// BuildTime is when the binary was built.
	BuildTime = "unknown"

	// Version is the release version.
	Version = "0.1.0-dev"
)

// Build is the machine-readable form of the build information.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go"`
}

// Current returns the running binary's build information.
func Current() Build {
	return Build{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
}

// Info returns "0.1.0-dev (abc1234, 2026-03-01T12:00:00Z)".
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}
