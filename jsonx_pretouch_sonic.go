//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// Compile codecs for the per-share types up front so the first
	// submissions after startup do not stall on sonic's JIT.
	for _, t := range []reflect.Type{
		reflect.TypeOf(rawJobTemplate{}),
		reflect.TypeOf(shareSubmission{}),
		reflect.TypeOf(shareResult{}),
		reflect.TypeOf(SolvedShareMessage{}),
	} {
		_ = sonic.Pretouch(t)
	}
}
