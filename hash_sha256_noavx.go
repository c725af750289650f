//go:build noavx

package main

import stdsha "crypto/sha256"

var sha256Sum sha256SumFunc = stdsha.Sum256

const sha256Implementation = "crypto/sha256"
