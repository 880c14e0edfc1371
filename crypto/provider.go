// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

// Package crypto defines the cryptographic capability contract the mls
// package is built against, plus a default implementation wiring real
// primitives (circl's HPKE, x/crypto's HKDF/ChaCha20-Poly1305, and the
// standard library's AES-GCM/Ed25519/ECDSA/SHA2). The mls package never
// imports a concrete backing library directly; it only depends on the
// Provider interface below, so an alternate backend (HSM-resident keys, a
// FIPS-validated module, a WASM sandbox) can be swapped in without touching
// the group state machine.
package crypto

import "errors"

// Errors surfaced by a Provider implementation. The mls package passes
// these through or wraps them, with one exception: a failed Verify is
// reported as the mls package's own signature or validation error
// (ErrInvalidSignature, ErrInvalidGroupInfoSig, ErrInvalidKeyPackage).
var (
	ErrCryptoLibrary            = errors.New("crypto: internal library error")
	ErrAeadDecryption           = errors.New("crypto: AEAD decryption failed")
	ErrHpkeDecryption           = errors.New("crypto: HPKE decryption failed")
	ErrUnsupportedSignature     = errors.New("crypto: unsupported signature scheme")
	ErrKdfLabelTooLarge         = errors.New("crypto: KDF label exceeds maximum length")
	ErrHkdfOutputLengthInvalid = errors.New("crypto: requested HKDF output length invalid")
	ErrInsufficientRandomness   = errors.New("crypto: RNG did not return enough bytes")
	ErrInvalidSignature         = errors.New("crypto: signature verification failed")
	ErrInvalidLength            = errors.New("crypto: invalid input length")
)

// SignatureScheme identifiers, per the IANA TLS SignatureScheme registry
// values MLS reuses on the wire.
type SignatureScheme uint16

const (
	ECDSA_SECP256R1_SHA256 SignatureScheme = 0x0403
	ECDSA_SECP521R1_SHA512 SignatureScheme = 0x0603
	ED25519                SignatureScheme = 0x0807
	ED448                  SignatureScheme = 0x0808
)

// AeadID identifies an AEAD algorithm on the wire.
type AeadID uint16

const (
	AES128GCM        AeadID = 0x0001
	AES256GCM        AeadID = 0x0002
	ChaCha20Poly1305 AeadID = 0x0003
)

// HashID identifies a hash algorithm on the wire.
type HashID uint8

const (
	SHA256 HashID = 0x04
	SHA512 HashID = 0x06
)

// Size returns the digest size in bytes for a HashID.
func (h HashID) Size() int {
	switch h {
	case SHA256:
		return 32
	case SHA512:
		return 64
	default:
		return 0
	}
}

// Ciphersuite is a named bundle of hash, AEAD, KDF, signature and HPKE
// choices. The zero value is invalid; use one of the registered constants
// or look one up via LookupCiphersuite.
type Ciphersuite uint16

const (
	MLS_128_X25519_AES128GCM_SHA256_Ed25519        Ciphersuite = 0x0001
	MLS_128_P256_AES128GCM_SHA256_P256             Ciphersuite = 0x0002
	MLS_128_X25519_CHACHA20POLY1305_SHA256_Ed25519 Ciphersuite = 0x0003
	MLS_256_X448_AES256GCM_SHA512_Ed448            Ciphersuite = 0x0004
	MLS_256_P521_AES256GCM_SHA512_P521             Ciphersuite = 0x0005
	MLS_256_X448_CHACHA20POLY1305_SHA512_Ed448     Ciphersuite = 0x0006
)

// CiphersuiteParams exposes the concrete algorithm identifiers that make up
// a Ciphersuite, the way a provider's registry entry would.
type CiphersuiteParams struct {
	Hash      HashID
	Aead      AeadID
	Signature SignatureScheme
}

var registry = map[Ciphersuite]CiphersuiteParams{
	MLS_128_X25519_AES128GCM_SHA256_Ed25519:        {SHA256, AES128GCM, ED25519},
	MLS_128_P256_AES128GCM_SHA256_P256:             {SHA256, AES128GCM, ECDSA_SECP256R1_SHA256},
	MLS_128_X25519_CHACHA20POLY1305_SHA256_Ed25519: {SHA256, ChaCha20Poly1305, ED25519},
	MLS_256_X448_AES256GCM_SHA512_Ed448:            {SHA512, AES256GCM, ED448},
	MLS_256_P521_AES256GCM_SHA512_P521:             {SHA512, AES256GCM, ECDSA_SECP521R1_SHA512},
	MLS_256_X448_CHACHA20POLY1305_SHA512_Ed448:     {SHA512, ChaCha20Poly1305, ED448},
}

// Params returns the algorithm bundle for a ciphersuite, or false if it is
// not registered.
func (cs Ciphersuite) Params() (CiphersuiteParams, bool) {
	p, ok := registry[cs]
	return p, ok
}

// HashAlgorithm returns the ciphersuite's hash algorithm.
func (cs Ciphersuite) HashAlgorithm() HashID {
	p, ok := registry[cs]
	if !ok {
		return 0
	}
	return p.Hash
}

// Provider is the cryptographic capability every operation in this module
// is injected with. Implementations MUST be safe for concurrent use: the
// commit pipeline fans out independent verification calls (e.g. validating
// a batch of Add proposals) across goroutines.
type Provider interface {
	Hash(alg HashID, data []byte) ([]byte, error)
	HkdfExtract(alg HashID, salt, ikm []byte) ([]byte, error)
	HkdfExpand(alg HashID, prk []byte, info []byte, length int) ([]byte, error)

	AeadSeal(id AeadID, key, nonce, aad, plaintext []byte) ([]byte, error)
	AeadOpen(id AeadID, key, nonce, aad, ciphertext []byte) ([]byte, error)

	HpkeSeal(cs Ciphersuite, pk []byte, info, aad, pt []byte) (kemOutput, ciphertext []byte, err error)
	HpkeOpen(cs Ciphersuite, sk []byte, kemOutput, info, aad, ciphertext []byte) ([]byte, error)

	// HpkeDerivePublicKey recovers the public half of the HPKE key pair a
	// path-secret-derived seed produces, so a receiver who only holds the
	// seed (not a full key pair) can compare against a published path
	// without ever materializing the private key outside this call.
	HpkeDerivePublicKey(cs Ciphersuite, seed []byte) ([]byte, error)

	Sign(scheme SignatureScheme, sk, msg []byte) ([]byte, error)
	Verify(scheme SignatureScheme, pk, msg, sig []byte) error

	RandomVec(n int) ([]byte, error)
}
