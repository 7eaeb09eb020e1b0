// Package build carries small ambient constants and panic/error helpers
// shared by every other package: a couple of release-mode constants
// plus a handful of helpers that are too small to deserve their own
// package.
package build

import (
	"fmt"
	"strings"
)

// Release and DEBUG are defined in release_standard.go and debug_off.go,
// each under a build constraint; no other file in this package defines
// them. No other package reads Release.

// Critical should be called in places where a condition absolutely must
// hold for program correctness to continue; it panics. Use it only for
// invariant violations that indicate a bug in this program, never for
// conditions an attacker or a flaky remote server can trigger.
func Critical(args ...interface{}) {
	panic(join(args))
}

// Severe behaves like Critical in a DEBUG build, and is a no-op
// otherwise. It exists for invariant checks that are expensive or that
// we are not yet fully confident in.
func Severe(args ...interface{}) {
	if DEBUG {
		panic(join(args))
	}
}

func join(args []interface{}) string {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if err, ok := a.(error); ok {
			sb.WriteString(err.Error())
			continue
		}
		if s, ok := a.(string); ok {
			sb.WriteString(s)
			continue
		}
		sb.WriteString(fmt.Sprint(a))
	}
	return sb.String()
}

// JoinErrors combines a slice of errors into a single error, filtering
// out nils, joined by sep. It returns nil if no non-nil error remains.
func JoinErrors(errs []error, sep string) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return joinedError(strings.Join(msgs, sep))
}

type joinedError string

func (e joinedError) Error() string { return string(e) }
