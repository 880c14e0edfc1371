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
	"github.com/bits-and-blooms/bitset"
	"golang.org/x/crypto/cryptobyte"
)

// ParentNode is the content of a non-blank internal tree slot: an HPKE
// encryption key for the subtree it roots, the parent-hash value binding
// it to its own parent, and the set of leaves below it that have not yet
// merged their key into this node (added via a commit whose path did not
// reach this node, e.g. an Add).
type ParentNode struct {
	EncryptionKey  []byte
	ParentHash     []byte
	UnmergedLeaves *bitset.BitSet
}

func newParentNode(encKey []byte) *ParentNode {
	return &ParentNode{
		EncryptionKey:  encKey,
		UnmergedLeaves: bitset.New(0),
	}
}

// HasUnmergedLeaf reports whether leaf l is recorded as unmerged under this
// parent.
func (p *ParentNode) HasUnmergedLeaf(l LeafIndex) bool {
	if p.UnmergedLeaves == nil {
		return false
	}
	return p.UnmergedLeaves.Test(uint(l))
}

// AddUnmergedLeaf records that leaf l's key has not yet been folded into
// this node's encryption key (it was added below this node by an Add
// proposal rather than by a path update).
func (p *ParentNode) AddUnmergedLeaf(l LeafIndex) {
	if p.UnmergedLeaves == nil {
		p.UnmergedLeaves = bitset.New(0)
	}
	p.UnmergedLeaves.Set(uint(l))
}

func (p *ParentNode) clone() *ParentNode {
	if p == nil {
		return nil
	}
	clone := &ParentNode{
		EncryptionKey: append([]byte(nil), p.EncryptionKey...),
		ParentHash:    append([]byte(nil), p.ParentHash...),
	}
	if p.UnmergedLeaves != nil {
		clone.UnmergedLeaves = p.UnmergedLeaves.Clone()
	} else {
		clone.UnmergedLeaves = bitset.New(0)
	}
	return clone
}

func (p *ParentNode) marshal(b *cryptobyte.Builder) {
	writeOpaqueVec16(b, p.EncryptionKey)
	writeOpaqueVec8(b, p.ParentHash)
	var indices []uint32
	if p.UnmergedLeaves != nil {
		for i, ok := p.UnmergedLeaves.NextSet(0); ok; i, ok = p.UnmergedLeaves.NextSet(i + 1) {
			indices = append(indices, uint32(i))
		}
	}
	writeVector16(b, len(indices), func(b *cryptobyte.Builder, i int) { b.AddUint32(indices[i]) })
}

func (p *ParentNode) unmarshal(s *cryptobyte.String) error {
	*p = ParentNode{UnmergedLeaves: bitset.New(0)}
	if !readOpaqueVec16(s, &p.EncryptionKey) {
		return errShortRead
	}
	if !readOpaqueVec8(s, &p.ParentHash) {
		return errShortRead
	}
	return readVector16(s, func(s *cryptobyte.String) error {
		var idx uint32
		if !s.ReadUint32(&idx) {
			return errShortRead
		}
		p.UnmergedLeaves.Set(uint(idx))
		return nil
	})
}
