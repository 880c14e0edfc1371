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
	"crypto/ed25519"
	"testing"

	mcrypto "github.com/go-mls/mlscore/crypto"
)

var (
	testProvider mcrypto.Provider   = mcrypto.DefaultProvider{}
	testCS       mcrypto.Ciphersuite = mcrypto.MLS_128_X25519_AES128GCM_SHA256_Ed25519
)

// testMember bundles one participant's key material: an Ed25519 signature
// key pair and an HPKE seed (the provider derives the corresponding public
// encryption key from it deterministically, the same way a committer's
// direct-path secrets do).
type testMember struct {
	index    LeafIndex
	signPub  []byte
	signPriv ed25519.PrivateKey
	hpkeSeed []byte
	encPub   []byte
}

func newTestMember(t *testing.T, identity string) *testMember {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	seed, err := testProvider.RandomVec(32)
	if err != nil {
		t.Fatalf("RandomVec: %v", err)
	}
	encPub, err := testProvider.HpkeDerivePublicKey(testCS, seed)
	if err != nil {
		t.Fatalf("HpkeDerivePublicKey: %v", err)
	}
	return &testMember{
		signPub:  []byte(pub),
		signPriv: priv,
		hpkeSeed: seed,
		encPub:   encPub,
	}
}

// leafNode builds and signs a fresh LeafNode for m with the given source.
func (m *testMember) leafNode(t *testing.T, identity string, source LeafNodeSource) LeafNode {
	t.Helper()
	leaf := LeafNode{
		EncryptionKey: m.encPub,
		SignatureKey:  m.signPub,
		Credential:    Credential{Type: CredentialBasic, Identity: []byte(identity)},
		Capabilities:  NewCapabilities([]uint16{uint16(testCS)}, nil, nil, false, false, false),
		Source:        source,
	}
	if source == LeafNodeFromKeyPackage {
		leaf.Lifetime = Lifetime{NotBefore: 0, NotAfter: 1 << 40}
	}
	if err := leaf.Sign(testProvider, mcrypto.ED25519, m.signPriv); err != nil {
		t.Fatalf("LeafNode.Sign: %v", err)
	}
	return leaf
}

// keyPackage wraps m's key-package leaf node in a signed KeyPackage, as an
// Add proposal would carry it.
func (m *testMember) keyPackage(t *testing.T, identity string) KeyPackage {
	t.Helper()
	kp := KeyPackage{
		Version:     protocolVersionMLS10,
		Ciphersuite: testCS,
		InitKey:     m.encPub,
		Leaf:        m.leafNode(t, identity, LeafNodeFromKeyPackage),
	}
	if err := kp.Sign(testProvider, mcrypto.ED25519, m.signPriv); err != nil {
		t.Fatalf("KeyPackage.Sign: %v", err)
	}
	return kp
}

// newTestGroup founds a one-member group and returns it alongside its
// founder's key material.
func newTestGroup(t *testing.T, groupID string) (*PublicGroup, *testMember) {
	t.Helper()
	founder := newTestMember(t, "founder")
	founderLeaf := founder.leafNode(t, "founder", LeafNodeFromKeyPackage)
	g, err := NewPublicGroup(testProvider, testCS, []byte(groupID), founderLeaf, nil)
	if err != nil {
		t.Fatalf("NewPublicGroup: %v", err)
	}
	return g, founder
}

// signCommit fills in msg.Signature over its TBS content using sender's
// signature key.
func signCommit(t *testing.T, msg *CommitMessage, sender *testMember) {
	t.Helper()
	tbs, err := msg.tbs()
	if err != nil {
		t.Fatalf("CommitMessage.tbs: %v", err)
	}
	sig, err := testProvider.Sign(mcrypto.ED25519, sender.signPriv, tbs)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	msg.Signature = sig
}
