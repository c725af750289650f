//go:build !nojsonsimd

package main

import "github.com/bytedance/sonic"

// sonic.ConfigStd keeps map key ordering and HTML escaping identical to
// encoding/json so the solved-share payload is byte-stable across builds.
var fastJSON = sonic.ConfigStd

func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}

func jsonImplementationName() string {
	return "sonic"
}
