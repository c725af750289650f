package main

type sha256SumFunc func([]byte) [32]byte

// sha256Sum and sha256Implementation are selected at build time:
// sha256-simd by default, crypto/sha256 with the noavx tag.

func sha256ImplementationName() string {
	return sha256Implementation
}
