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

// Tree hash tags the two node shapes before hashing so that a leaf and a
// parent node with the same bytes never collide (second-preimage
// resistance across node kinds).
const (
	treeHashTagLeaf   uint8 = 1
	treeHashTagParent uint8 = 2
)

// leafNodeHashInput is {node_index, optional leaf_node} keyed on whether
// the leaf slot is blank.
func leafNodeHashInput(b *cryptobyte.Builder, nodeIndex uint32, leaf *LeafNode) {
	b.AddUint8(treeHashTagLeaf)
	b.AddUint32(nodeIndex)
	if leaf == nil {
		b.AddUint8(0)
		return
	}
	b.AddUint8(1)
	leaf.marshal(b)
}

// parentNodeHashInput is {node_index, optional parent_node, left_hash,
// right_hash}.
func parentNodeHashInput(b *cryptobyte.Builder, nodeIndex uint32, node *ParentNode, leftHash, rightHash []byte) {
	b.AddUint8(treeHashTagParent)
	b.AddUint32(nodeIndex)
	if node == nil {
		b.AddUint8(0)
	} else {
		b.AddUint8(1)
		node.marshal(b)
	}
	writeOpaqueVec8(b, leftHash)
	writeOpaqueVec8(b, rightHash)
}

// computeTreeHash recursively hashes the subtree rooted at x, per the
// section 4.A tree-hash definition: a leaf hashes {0x01, node_index,
// leaf_node_or_blank}; a parent hashes {0x02, node_index,
// parent_node_or_blank, tree_hash(left), tree_hash(right)}. Blank slots
// still participate (as the "absent" case) so the hash commits to tree
// shape, not just occupied content.
func computeTreeHash(provider mcrypto.Provider, cs mcrypto.Ciphersuite, nodes []treeNode, x NodeIndex, n uint32) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	if isLeafNode(x) {
		var leaf *LeafNode
		if int(x) < len(nodes) && nodes[x].kind == nodeKindLeaf {
			leaf = nodes[x].leaf
		}
		leafNodeHashInput(b, uint32(x), leaf)
	} else {
		lh, err := computeTreeHash(provider, cs, nodes, left(x), n)
		if err != nil {
			return nil, err
		}
		rh, err := computeTreeHash(provider, cs, nodes, right(x, n), n)
		if err != nil {
			return nil, err
		}
		var parent *ParentNode
		if int(x) < len(nodes) && nodes[x].kind == nodeKindParent {
			parent = nodes[x].parent
		}
		parentNodeHashInput(b, uint32(x), parent, lh, rh)
	}
	data, err := b.Bytes()
	if err != nil {
		return nil, libraryError("computeTreeHash", err)
	}
	return provider.Hash(cs.HashAlgorithm(), data)
}
