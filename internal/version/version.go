// Package version holds the released version of pdsvalidator.
package version

// Current is bumped on release. No "v" prefix.
const Current = "0.1.0"
