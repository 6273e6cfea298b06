// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for chatgate binaries.
//
// Three variables are injected at build time with -ldflags -X:
//
//   - [GitCommit]: short git SHA of the build
//   - [BuildTime]: UTC timestamp of the build
//   - [Version]: release version string
//
// Development builds and tests see "unknown" and "0.1.0-dev".
//
// [Info] is the --version line. [Current] returns the same data as a
// struct for the /healthz endpoint.
package version
