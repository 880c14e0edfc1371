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

// NodeIndex addresses a slot in the array representation of the ratchet
// tree: even indices are leaves, odd indices are parents. LeafIndex
// addresses a member slot directly; NodeIndex(LeafIndex) == 2*LeafIndex.
type NodeIndex uint32

// LeafIndex addresses a leaf (member) slot.
type LeafIndex uint32

func leafToNode(l LeafIndex) NodeIndex { return NodeIndex(2 * uint32(l)) }

func nodeToLeaf(n NodeIndex) LeafIndex { return LeafIndex(n / 2) }

func isLeafNode(n NodeIndex) bool { return n%2 == 0 }

// nodeWidth returns the number of array slots (2n-1) for a tree holding n
// leaves.
func nodeWidth(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return 2*(n-1) + 1
}

func log2Floor(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	var k uint64
	for (x >> (k + 1)) > 0 {
		k++
	}
	return k
}

// level returns the height of node x above the leaf row: 0 for leaves,
// otherwise the count of trailing 1-bits in x's binary representation.
func level(x NodeIndex) uint64 {
	if x&1 == 0 {
		return 0
	}
	var k uint64
	for (uint64(x)>>k)&1 == 1 {
		k++
	}
	return k
}

func root(n uint32) NodeIndex {
	w := uint64(nodeWidth(n))
	if w == 0 {
		return 0
	}
	return NodeIndex((uint64(1) << log2Floor(w)) - 1)
}

func left(x NodeIndex) NodeIndex {
	k := level(x)
	if k == 0 {
		return x
	}
	return NodeIndex(uint64(x) ^ (uint64(1) << (k - 1)))
}

func right(x NodeIndex, n uint32) NodeIndex {
	k := level(x)
	if k == 0 {
		return x
	}
	w := uint64(nodeWidth(n))
	r := NodeIndex(uint64(x) ^ (uint64(3) << (k - 1)))
	for uint64(r) >= w {
		r = left(r)
	}
	return r
}

func parentStep(x NodeIndex) NodeIndex {
	k := level(x)
	b := (uint64(x) >> (k + 1)) & 1
	return NodeIndex((uint64(x) | (uint64(1) << k)) ^ (b << (k + 1)))
}

// parentOf returns x's parent within a tree of n leaves. x must not be the
// root (callers check that first via root(n)).
func parentOf(x NodeIndex, n uint32) NodeIndex {
	if x == root(n) {
		return x
	}
	w := uint64(nodeWidth(n))
	p := parentStep(x)
	for uint64(p) >= w {
		p = parentStep(p)
	}
	return p
}

func siblingOf(x NodeIndex, n uint32) NodeIndex {
	p := parentOf(x, n)
	if x < p {
		return right(p, n)
	}
	return left(p)
}

// directPath returns the ancestors of leaf index l, from its immediate
// parent up to and including the root, in that order. This is the set of
// nodes an UpdatePath rewraps.
func directPath(l LeafIndex, n uint32) []NodeIndex {
	x := leafToNode(l)
	r := root(n)
	var path []NodeIndex
	for x != r {
		x = parentOf(x, n)
		path = append(path, x)
	}
	return path
}

// copath returns, for each node on l's direct path (including the leaf
// itself conceptually, though the leaf is not part of directPath), the
// sibling subtree whose resolution needs a fresh HPKE ciphertext. Its
// length always equals len(directPath(l, n)).
func copath(l LeafIndex, n uint32) []NodeIndex {
	x := leafToNode(l)
	r := root(n)
	var siblings []NodeIndex
	for x != r {
		siblings = append(siblings, siblingOf(x, n))
		x = parentOf(x, n)
	}
	return siblings
}

// commonAncestor returns the lowest node that is an ancestor of both leaf
// indices.
func commonAncestor(a, b LeafIndex, n uint32) NodeIndex {
	pa := append([]NodeIndex{leafToNode(a)}, directPath(a, n)...)
	pb := directPath(b, n)
	pbSet := make(map[NodeIndex]bool, len(pb)+1)
	pbSet[leafToNode(b)] = true
	for _, x := range pb {
		pbSet[x] = true
	}
	for _, x := range pa {
		if pbSet[x] {
			return x
		}
	}
	return root(n)
}
