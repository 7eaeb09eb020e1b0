//go:build !testing && !dev
// +build !testing,!dev

package build

// Release indicates the kind of release that is built,
// defining timings, amount of (extra) runtime checks.
// This file defines the standard value; no file in this package
// defines Release for the testing or dev tags.
const Release = "standard"
