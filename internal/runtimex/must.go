//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/runtimex
//

// Package runtimex provides small panic-on-error helpers for invariants
// that should never fail in practice (e.g. reading from the system CSPRNG).
package runtimex

// Must1 panics if err is non-nil, otherwise returns value.
//
// Use this only for invariants the caller cannot meaningfully recover
// from (a failing system random number generator, for example), never
// for ordinary fallible operations.
func Must1[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}
