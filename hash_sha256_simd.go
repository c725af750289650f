//go:build !noavx

package main

import simdsha "github.com/minio/sha256-simd"

var sha256Sum sha256SumFunc = simdsha.Sum256

const sha256Implementation = "sha256-simd"
