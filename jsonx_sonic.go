package main

import "github.com/bytedance/sonic"

// The pool API is polled every second for the lifetime of the process, so
// decoding goes through sonic rather than encoding/json.
var fastJSON = sonic.ConfigDefault

func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}
