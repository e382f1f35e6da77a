// Package common holds process wide helpers shared by the binaries.
package common

// PackageName prefixes metric names.
const PackageName = "pep"

// Version is set at build time with -ldflags "-X github.com/ruteri/splitkey-pep/common.Version=...".
var Version = "dev"
