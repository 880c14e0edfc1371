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
	"golang.org/x/crypto/cryptobyte"
)

// HpkeCiphertext is one encryption of a path secret to one member of a
// copath node's resolution.
type HpkeCiphertext struct {
	KemOutput  []byte
	Ciphertext []byte
}

func (c *HpkeCiphertext) marshal(b *cryptobyte.Builder) {
	writeOpaqueVec16(b, c.KemOutput)
	writeOpaqueVec16(b, c.Ciphertext)
}

func (c *HpkeCiphertext) unmarshal(s *cryptobyte.String) error {
	if !readOpaqueVec16(s, &c.KemOutput) || !readOpaqueVec16(s, &c.Ciphertext) {
		return errShortRead
	}
	return nil
}

// UpdatePathNode is one ancestor on a committer's direct path: the fresh
// public encryption key for that ancestor, and one HPKE ciphertext per
// member in the corresponding copath node's resolution.
type UpdatePathNode struct {
	EncryptionKey []byte
	Ciphertexts   []HpkeCiphertext
}

func (n *UpdatePathNode) marshal(b *cryptobyte.Builder) {
	writeOpaqueVec16(b, n.EncryptionKey)
	writeVector16(b, len(n.Ciphertexts), func(b *cryptobyte.Builder, i int) { n.Ciphertexts[i].marshal(b) })
}

func (n *UpdatePathNode) unmarshal(s *cryptobyte.String) error {
	*n = UpdatePathNode{}
	if !readOpaqueVec16(s, &n.EncryptionKey) {
		return errShortRead
	}
	return readVector16(s, func(s *cryptobyte.String) error {
		var c HpkeCiphertext
		if err := c.unmarshal(s); err != nil {
			return err
		}
		n.Ciphertexts = append(n.Ciphertexts, c)
		return nil
	})
}

// UpdatePath is a committer's replacement LeafNode plus the rewrapped
// secrets for every ancestor on its direct path, in leaf-to-root order. Its
// presence is governed by the path-required classifier in proposal.go; its
// length must equal len(directPath(sender, n)) (ValSem202) and every
// ciphertext must decrypt (ValSem203) to a secret whose derived public key
// matches the published EncryptionKey (ValSem204).
type UpdatePath struct {
	LeafNode LeafNode
	Nodes    []UpdatePathNode
}

func (p *UpdatePath) marshal(b *cryptobyte.Builder) {
	p.LeafNode.marshal(b)
	writeVector16(b, len(p.Nodes), func(b *cryptobyte.Builder, i int) { p.Nodes[i].marshal(b) })
}

func (p *UpdatePath) unmarshal(s *cryptobyte.String) error {
	*p = UpdatePath{}
	if err := p.LeafNode.unmarshal(s); err != nil {
		return err
	}
	return readVector16(s, func(s *cryptobyte.String) error {
		var n UpdatePathNode
		if err := n.unmarshal(s); err != nil {
			return err
		}
		p.Nodes = append(p.Nodes, n)
		return nil
	})
}
