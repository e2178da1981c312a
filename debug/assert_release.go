//go:build !debug

// Package debug provides assertions for driver internals that can be enabled
// with the debug build tag or will otherwise compile to no-ops.
//
// Assertions guard invariants of the driver itself, like descriptor slot
// bounds or register field widths. Misuse by callers is reported with errors
// or explicit panics instead.
package debug

// Guard more complex assertions (i.e. anything that could panic) with `if
// debug.Enabled{...}`, otherwise they can't be removed in release builds.
const Enabled = false

// Assert panics if b is false.
func Assert(b bool, message string) {}
