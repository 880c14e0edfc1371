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

package mls

import (
	mcrypto "github.com/go-mls/mlscore/crypto"
	"golang.org/x/crypto/cryptobyte"
)

const protocolVersionMLS10 uint16 = 0x0001

// KeyPackage publishes a prospective member's init key and LeafNode so
// that others can Add them to a group without further interaction.
type KeyPackage struct {
	Version     uint16
	Ciphersuite mcrypto.Ciphersuite
	InitKey     []byte
	Leaf        LeafNode
	Extensions  []Extension
	Signature   []byte
}

func (k *KeyPackage) tbs(b *cryptobyte.Builder) {
	b.AddUint16(k.Version)
	b.AddUint16(uint16(k.Ciphersuite))
	writeOpaqueVec16(b, k.InitKey)
	k.Leaf.marshal(b)
	writeVector16(b, len(k.Extensions), func(b *cryptobyte.Builder, i int) { k.Extensions[i].marshal(b) })
}

func (k *KeyPackage) marshal(b *cryptobyte.Builder) {
	k.tbs(b)
	writeOpaqueVec16(b, k.Signature)
}

func (k *KeyPackage) unmarshal(s *cryptobyte.String) error {
	*k = KeyPackage{}
	var version, cs uint16
	if !s.ReadUint16(&version) || !s.ReadUint16(&cs) {
		return errShortRead
	}
	k.Version = version
	k.Ciphersuite = mcrypto.Ciphersuite(cs)
	if !readOpaqueVec16(s, &k.InitKey) {
		return errShortRead
	}
	if err := k.Leaf.unmarshal(s); err != nil {
		return err
	}
	if err := readVector16(s, func(s *cryptobyte.String) error {
		var ext Extension
		if err := ext.unmarshal(s); err != nil {
			return err
		}
		k.Extensions = append(k.Extensions, ext)
		return nil
	}); err != nil {
		return err
	}
	if !readOpaqueVec16(s, &k.Signature) {
		return errShortRead
	}
	return nil
}

func (k *KeyPackage) tbsBytes() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	k.tbs(b)
	return b.Bytes()
}

// Sign computes k.Signature over the key package's TBS content, using the
// leaf node's signature key.
func (k *KeyPackage) Sign(p mcrypto.Provider, scheme mcrypto.SignatureScheme, sk []byte) error {
	tbs, err := k.tbsBytes()
	if err != nil {
		return libraryError("KeyPackage.Sign", err)
	}
	sig, err := p.Sign(scheme, sk, tbs)
	if err != nil {
		return err
	}
	k.Signature = sig
	return nil
}

// Validate checks a KeyPackage for use in an Add proposal: the outer
// signature must verify against the leaf's signature key, the leaf node's
// own signature must independently verify, the leaf must be a
// FromKeyPackage leaf with a lifetime valid at now, the ciphersuite must
// match cs, and the protocol version must be MLS 1.0.
func (k *KeyPackage) Validate(p mcrypto.Provider, scheme mcrypto.SignatureScheme, cs mcrypto.Ciphersuite, now int64) error {
	if k.Version != protocolVersionMLS10 {
		return ErrUnsupportedMlsVersion
	}
	if k.Ciphersuite != cs {
		return ErrCiphersuiteMismatch
	}
	tbs, err := k.tbsBytes()
	if err != nil {
		return libraryError("KeyPackage.Validate", err)
	}
	if err := p.Verify(scheme, k.Leaf.SignatureKey, tbs, k.Signature); err != nil {
		return ErrInvalidKeyPackage
	}
	if err := k.Leaf.VerifySignature(p, scheme); err != nil {
		return ErrInvalidKeyPackage
	}
	if k.Leaf.Source != LeafNodeFromKeyPackage {
		return ErrInvalidKeyPackage
	}
	if !k.Leaf.Lifetime.ValidAt(now) {
		return ErrInvalidKeyPackage
	}
	return nil
}
