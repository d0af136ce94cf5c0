//go:build debug

package main

// debugBuild forces debug logging and the pool wire log in binaries built
// with -tags debug.
func debugBuild() bool {
	return true
}
