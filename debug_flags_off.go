//go:build !debug

package main

func debugBuild() bool {
	return false
}
