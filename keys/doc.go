// Package keys provides the signing primitives used by the network map registry.
//
// Two signature schemes are supported: ed25519 and the post-quantum dilithium3.
// Both are derived from a 32-byte seed, which is the only private material
// ever written to disk (see KeyStore). Messages are never signed directly:
// the signature covers digest(hashAlg, message).
package keys
