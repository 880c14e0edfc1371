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

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"math/big"

	"github.com/cloudflare/circl/hpke"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// DefaultProvider is the reference Provider backing the ciphersuites in
// this package's registry. It holds no mutable state, so a single instance
// may be shared across groups and goroutines.
type DefaultProvider struct{}

var _ Provider = DefaultProvider{}

func newHash(alg HashID) (func() hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: hash id %#x", ErrCryptoLibrary, alg)
	}
}

func (DefaultProvider) Hash(alg HashID, data []byte) ([]byte, error) {
	newH, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	h := newH()
	h.Write(data)
	return h.Sum(nil), nil
}

func (DefaultProvider) HkdfExtract(alg HashID, salt, ikm []byte) ([]byte, error) {
	newH, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(newH, ikm, salt), nil
}

func (DefaultProvider) HkdfExpand(alg HashID, prk []byte, info []byte, length int) ([]byte, error) {
	newH, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	if length <= 0 || length > 255*newH().Size() {
		return nil, ErrHkdfOutputLengthInvalid
	}
	r := hkdf.Expand(newH, prk, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHkdfOutputLengthInvalid, err)
	}
	return out, nil
}

func (DefaultProvider) AeadSeal(id AeadID, key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAead(id, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidLength
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func (DefaultProvider) AeadOpen(id AeadID, key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAead(id, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidLength
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAeadDecryption, err)
	}
	return pt, nil
}

func newAead(id AeadID, key []byte) (cipher.AEAD, error) {
	switch id {
	case AES128GCM, AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: aead id %#x", ErrCryptoLibrary, id)
	}
}

// hpkeBundle pairs an HPKE suite with the KEM scheme needed to (un)marshal
// the raw key bytes the mls package carries on the wire.
type hpkeBundle struct {
	suite hpke.Suite
	kem   hpke.KEM
}

func hpkeSuite(cs Ciphersuite) (hpkeBundle, error) {
	switch cs {
	case MLS_128_X25519_AES128GCM_SHA256_Ed25519:
		return hpkeBundle{hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES128GCM), hpke.KEM_X25519_HKDF_SHA256}, nil
	case MLS_128_X25519_CHACHA20POLY1305_SHA256_Ed25519:
		return hpkeBundle{hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305), hpke.KEM_X25519_HKDF_SHA256}, nil
	case MLS_256_X448_AES256GCM_SHA512_Ed448:
		return hpkeBundle{hpke.NewSuite(hpke.KEM_X448_HKDF_SHA512, hpke.KDF_HKDF_SHA512, hpke.AEAD_AES256GCM), hpke.KEM_X448_HKDF_SHA512}, nil
	case MLS_256_X448_CHACHA20POLY1305_SHA512_Ed448:
		return hpkeBundle{hpke.NewSuite(hpke.KEM_X448_HKDF_SHA512, hpke.KDF_HKDF_SHA512, hpke.AEAD_ChaCha20Poly1305), hpke.KEM_X448_HKDF_SHA512}, nil
	default:
		return hpkeBundle{}, fmt.Errorf("%w: no HPKE suite for ciphersuite %#x", ErrCryptoLibrary, cs)
	}
}

func (DefaultProvider) HpkeSeal(cs Ciphersuite, pkBytes []byte, info, aad, pt []byte) ([]byte, []byte, error) {
	bundle, err := hpkeSuite(cs)
	if err != nil {
		return nil, nil, err
	}
	pk, err := bundle.kem.Scheme().UnmarshalBinaryPublicKey(pkBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	sender, err := bundle.suite.NewSender(pk, info)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	ct, err := sealer.Seal(pt, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	return enc, ct, nil
}

func (DefaultProvider) HpkeOpen(cs Ciphersuite, skBytes []byte, kemOutput, info, aad, ciphertext []byte) ([]byte, error) {
	bundle, err := hpkeSuite(cs)
	if err != nil {
		return nil, err
	}
	sk, err := bundle.kem.Scheme().UnmarshalBinaryPrivateKey(skBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	receiver, err := bundle.suite.NewReceiver(sk, info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoLibrary, err)
	}
	opener, err := receiver.Setup(kemOutput)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHpkeDecryption, err)
	}
	pt, err := opener.Open(ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHpkeDecryption, err)
	}
	return pt, nil
}

func (DefaultProvider) HpkeDerivePublicKey(cs Ciphersuite, seed []byte) ([]byte, error) {
	bundle, err := hpkeSuite(cs)
	if err != nil {
		return nil, err
	}
	scheme := bundle.kem.Scheme()
	seedLen := scheme.SeedSize()
	if len(seed) < seedLen {
		padded := make([]byte, seedLen)
		copy(padded, seed)
		seed = padded
	} else if len(seed) > seedLen {
		seed = seed[:seedLen]
	}
	pub, _ := scheme.DeriveKeyPair(seed)
	return pub.MarshalBinary()
}

func (DefaultProvider) Sign(scheme SignatureScheme, sk, msg []byte) ([]byte, error) {
	switch scheme {
	case ED25519:
		if len(sk) != ed25519.PrivateKeySize {
			return nil, ErrInvalidLength
		}
		return ed25519.Sign(ed25519.PrivateKey(sk), msg), nil
	case ECDSA_SECP256R1_SHA256:
		priv, err := unmarshalECDSAPrivateKey(elliptic.P256(), sk)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256(msg)
		return ecdsa.SignASN1(rand.Reader, priv, digest[:])
	default:
		return nil, fmt.Errorf("%w: scheme %#x", ErrUnsupportedSignature, scheme)
	}
}

func (DefaultProvider) Verify(scheme SignatureScheme, pk, msg, sig []byte) error {
	switch scheme {
	case ED25519:
		if len(pk) != ed25519.PublicKeySize {
			return ErrInvalidLength
		}
		if !ed25519.Verify(ed25519.PublicKey(pk), msg, sig) {
			return ErrInvalidSignature
		}
		return nil
	case ECDSA_SECP256R1_SHA256:
		x, y := elliptic.Unmarshal(elliptic.P256(), pk)
		if x == nil {
			return ErrInvalidLength
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		digest := sha256.Sum256(msg)
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrInvalidSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: scheme %#x", ErrUnsupportedSignature, scheme)
	}
}

func unmarshalECDSAPrivateKey(curve elliptic.Curve, d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) == 0 {
		return nil, ErrInvalidLength
	}
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = new(big.Int).SetBytes(d)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d)
	return priv, nil
}

func (DefaultProvider) RandomVec(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientRandomness, err)
	}
	return out, nil
}

// HMACSum computes an HMAC over data with the ciphersuite's hash algorithm,
// used by the mls package to compute/verify confirmation and membership
// tags per spec. Exported so the mls package does not need to reimplement
// HMAC keying on top of the Hash/HkdfExpand primitives.
func HMACSum(alg HashID, key, data []byte) ([]byte, error) {
	newH, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newH, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}
