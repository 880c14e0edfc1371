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
	"bytes"

	mcrypto "github.com/go-mls/mlscore/crypto"
	"golang.org/x/crypto/cryptobyte"
)

// LeafNodeSource distinguishes why a LeafNode was created: fresh key
// package, an Update proposal, or the UpdatePath of a commit (a member's
// own path commit or an external commit).
type LeafNodeSource uint8

const (
	LeafNodeFromKeyPackage LeafNodeSource = 1
	LeafNodeFromUpdate     LeafNodeSource = 2
	LeafNodeFromCommit     LeafNodeSource = 3
)

// LeafNode is the content of a tree leaf slot: a member's identity,
// signature key, HPKE encryption key, capabilities, lifetime and
// extensions, plus the signature binding all of it together.
type LeafNode struct {
	EncryptionKey []byte
	SignatureKey  []byte
	Credential    Credential
	Capabilities  Capabilities
	Source        LeafNodeSource
	Lifetime      Lifetime
	Extensions    []Extension
	ParentHash    []byte // present when Source == LeafNodeFromCommit
	Signature     []byte
}

// Extension is an opaque (type, data) tuple attached to a GroupContext,
// LeafNode, or GroupInfo.
type Extension struct {
	Type uint16
	Data []byte
}

func (e *Extension) marshal(b *cryptobyte.Builder) {
	b.AddUint16(e.Type)
	writeOpaqueVec16(b, e.Data)
}

func (e *Extension) unmarshal(s *cryptobyte.String) error {
	if !s.ReadUint16(&e.Type) {
		return errShortRead
	}
	return readOpaqueVec16FromString(s, &e.Data)
}

func readOpaqueVec16FromString(s *cryptobyte.String, out *[]byte) error {
	if !readOpaqueVec16(s, out) {
		return errShortRead
	}
	return nil
}

// tbs serializes everything that is covered by the leaf
// node's own signature, i.e. everything except the Signature field itself.
func (l *LeafNode) tbs(b *cryptobyte.Builder) {
	writeOpaqueVec16(b, l.EncryptionKey)
	writeOpaqueVec16(b, l.SignatureKey)
	l.Credential.marshal(b)
	l.Capabilities.marshal(b)
	b.AddUint8(uint8(l.Source))
	if l.Source == LeafNodeFromKeyPackage {
		l.Lifetime.marshal(b)
	}
	if l.Source == LeafNodeFromCommit {
		writeOpaqueVec8(b, l.ParentHash)
	}
	writeVector16(b, len(l.Extensions), func(b *cryptobyte.Builder, i int) { l.Extensions[i].marshal(b) })
}

func (l *LeafNode) marshal(b *cryptobyte.Builder) {
	l.tbs(b)
	writeOpaqueVec16(b, l.Signature)
}

func (l *LeafNode) unmarshal(s *cryptobyte.String) error {
	*l = LeafNode{}
	if !readOpaqueVec16(s, &l.EncryptionKey) || !readOpaqueVec16(s, &l.SignatureKey) {
		return errShortRead
	}
	if err := l.Credential.unmarshal(s); err != nil {
		return err
	}
	if err := l.Capabilities.unmarshal(s); err != nil {
		return err
	}
	var source uint8
	if !s.ReadUint8(&source) {
		return errShortRead
	}
	l.Source = LeafNodeSource(source)
	if l.Source == LeafNodeFromKeyPackage {
		if err := l.Lifetime.unmarshal(s); err != nil {
			return err
		}
	}
	if l.Source == LeafNodeFromCommit {
		if !readOpaqueVec8(s, &l.ParentHash) {
			return errShortRead
		}
	}
	if err := readVector16(s, func(s *cryptobyte.String) error {
		var ext Extension
		if err := ext.unmarshal(s); err != nil {
			return err
		}
		l.Extensions = append(l.Extensions, ext)
		return nil
	}); err != nil {
		return err
	}
	if !readOpaqueVec16(s, &l.Signature) {
		return errShortRead
	}
	return nil
}

// tbsBytes returns the canonical encoding of everything the signature
// covers.
func (l *LeafNode) tbsBytes() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	l.tbs(b)
	return b.Bytes()
}

// Sign computes l.Signature over the leaf node's TBS content.
func (l *LeafNode) Sign(p mcrypto.Provider, scheme mcrypto.SignatureScheme, sk []byte) error {
	tbs, err := l.tbsBytes()
	if err != nil {
		return libraryError("LeafNode.Sign", err)
	}
	sig, err := p.Sign(scheme, sk, tbs)
	if err != nil {
		return err
	}
	l.Signature = sig
	return nil
}

// VerifySignature checks l.Signature against l.SignatureKey.
func (l *LeafNode) VerifySignature(p mcrypto.Provider, scheme mcrypto.SignatureScheme) error {
	tbs, err := l.tbsBytes()
	if err != nil {
		return libraryError("LeafNode.VerifySignature", err)
	}
	if err := p.Verify(scheme, l.SignatureKey, tbs, l.Signature); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// parentHashInput is the structure a ParentNode's ParentHash commits to:
// ParentHash(ancestor) = Hash(encryption_key || parent_hash ||
// original_sibling_tree_hash).
type parentHashInput struct {
	EncryptionKey           []byte
	ParentHash              []byte
	OriginalSiblingTreeHash []byte
}

func (p *parentHashInput) bytes() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	writeOpaqueVec16(b, p.EncryptionKey)
	writeOpaqueVec8(b, p.ParentHash)
	writeOpaqueVec8(b, p.OriginalSiblingTreeHash)
	return b.Bytes()
}

func computeParentHash(provider mcrypto.Provider, cs mcrypto.Ciphersuite, input parentHashInput) ([]byte, error) {
	data, err := input.bytes()
	if err != nil {
		return nil, libraryError("computeParentHash", err)
	}
	return provider.Hash(cs.HashAlgorithm(), data)
}

// verifyParentHashChain checks that leaf's ParentHash field equals the
// recomputed hash of its nearest non-blank parent ancestor, per ValSem for
// tree well-formedness (spec section 4.A invariant on parent-hash chains).
func verifyParentHashChain(provider mcrypto.Provider, cs mcrypto.Ciphersuite, leaf *LeafNode, ancestor *ParentNode, originalSiblingTreeHash []byte) error {
	if leaf.Source != LeafNodeFromCommit {
		return nil
	}
	want, err := computeParentHash(provider, cs, parentHashInput{
		EncryptionKey:           ancestor.EncryptionKey,
		ParentHash:              ancestor.ParentHash,
		OriginalSiblingTreeHash: originalSiblingTreeHash,
	})
	if err != nil {
		return err
	}
	if !bytes.Equal(want, leaf.ParentHash) {
		return ErrParentHashMismatch
	}
	return nil
}
