// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package common holds version info and bundled assets.
package common

import "fmt"

// Set via ldflags at build time.
var (
	version = "v0.0.0-dev"
	gitSHA  = "none"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	GitSHA  string
}

// Get returns the full build info.
func Get() BuildInfo {
	return BuildInfo{
		Version: version,
		GitSHA:  gitSHA,
	}
}

// GetVersion returns the short version string.
func GetVersion() string {
	return version
}

// String implements fmt.Stringer.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s)", b.Version, b.GitSHA)
}
