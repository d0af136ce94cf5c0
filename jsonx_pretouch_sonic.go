package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Sonic JIT-compiles codecs on first use; pretouch the wire types so the
	// first poll after startup does not pay for it. Best-effort.
	_ = sonic.Pretouch(reflect.TypeFor[miningInfoResponse]())
	_ = sonic.Pretouch(reflect.TypeFor[submitNonceResponse]())
	_ = sonic.Pretouch(reflect.TypeFor[statusSnapshot]())
}
