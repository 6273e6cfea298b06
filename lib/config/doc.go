// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for chatgate.
//
// Configuration is loaded from a single file specified by either the
// CHATGATE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain development, staging, and production blocks
// with the same shape as the top level. The block matching
// [Config].Environment is decoded over the base values, so it only
// needs the keys that differ.
//
// ${VAR} and ${VAR:-default} are expanded in path, address, and secret
// fields after loading, which keeps token secrets and database
// passwords out of the file. No other environment variables override
// config values.
//
// [Config.Validate] reports every problem in one error.
//
// This package depends on no other chatgate packages.
package config
