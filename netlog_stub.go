//go:build !debug

package main

import "io"

// Without the debug tag the pool wire log compiles away.

func setNetLogWriter(w io.Writer) {}

func logNetMessage(direction string, data []byte) {}
