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

type nodeKind uint8

const (
	nodeKindBlank nodeKind = iota
	nodeKindLeaf
	nodeKindParent
)

// treeNode is a tagged union over a tree array slot: blank, a LeafNode, or
// a ParentNode. Using a tag plus two nilable pointers (rather than an
// interface) keeps the node array a flat, cheaply clonable slice, which
// matters since every staged commit clones the slots on its path.
type treeNode struct {
	kind   nodeKind
	leaf   *LeafNode
	parent *ParentNode
}

func (n treeNode) clone() treeNode {
	switch n.kind {
	case nodeKindLeaf:
		l := *n.leaf
		return treeNode{kind: nodeKindLeaf, leaf: &l}
	case nodeKindParent:
		return treeNode{kind: nodeKindParent, parent: n.parent.clone()}
	default:
		return treeNode{}
	}
}

// TreeSync is the synchronized ratchet tree: the array of tree nodes plus
// the provider and ciphersuite needed to recompute its tree hash. It is the
// authoritative copy every member keeps in sync via committed proposals;
// mutation only ever happens by building a TreeDiff, staging it, and
// merging it back (see treediff.go), never by modifying a TreeSync in place
// from outside this package.
type TreeSync struct {
	provider    mcrypto.Provider
	ciphersuite mcrypto.Ciphersuite
	nodes       []treeNode // len is always nodeWidth(leafCount) or 0
	leafCount   uint32

	hashValid bool
	hashCache []byte
}

// NewTreeSync creates a one-leaf tree around a single founding member.
func NewTreeSync(provider mcrypto.Provider, cs mcrypto.Ciphersuite, founder LeafNode) *TreeSync {
	t := &TreeSync{provider: provider, ciphersuite: cs}
	t.nodes = []treeNode{{kind: nodeKindLeaf, leaf: &founder}}
	t.leafCount = 1
	return t
}

// FromNodes rebuilds a TreeSync from its wire-order node list, as received
// in a Welcome or a GroupInfo's ratchet_tree extension. Blank slots are
// represented by a nil entry in raw. The tree shape (leaf count) is
// inferred from len(raw); a list whose length is not of the form 2n-1 is
// rejected.
func FromNodes(provider mcrypto.Provider, cs mcrypto.Ciphersuite, raw []*treeNode) (*TreeSync, error) {
	w := uint32(len(raw))
	if w == 0 || w%2 == 0 {
		return nil, ErrMalformedTree
	}
	n := (w + 1) / 2
	if nodeWidth(n) != w {
		return nil, ErrMalformedTree
	}
	t := &TreeSync{provider: provider, ciphersuite: cs, leafCount: n}
	t.nodes = make([]treeNode, w)
	for i, nd := range raw {
		if nd == nil {
			continue
		}
		if isLeafNode(NodeIndex(i)) != (nd.kind == nodeKindLeaf) {
			return nil, ErrMalformedTree
		}
		t.nodes[i] = nd.clone()
	}
	return t, nil
}

func (t *TreeSync) width() uint32 { return nodeWidth(t.leafCount) }

func (t *TreeSync) root() NodeIndex { return root(t.leafCount) }

// Leaf returns the LeafNode at index l, or nil if the slot is blank or out
// of range.
func (t *TreeSync) Leaf(l LeafIndex) *LeafNode {
	x := leafToNode(l)
	if int(x) >= len(t.nodes) || t.nodes[x].kind != nodeKindLeaf {
		return nil
	}
	return t.nodes[x].leaf
}

// Parent returns the ParentNode at node index x, or nil if blank, a leaf
// slot, or out of range.
func (t *TreeSync) Parent(x NodeIndex) *ParentNode {
	if int(x) >= len(t.nodes) || t.nodes[x].kind != nodeKindParent {
		return nil
	}
	return t.nodes[x].parent
}

// LeafCount returns the number of leaf slots (including blanks) in the
// tree.
func (t *TreeSync) LeafCount() uint32 { return t.leafCount }

// FreeLeafIndex returns the first blank leaf slot, or the index one past
// the last slot if every existing slot is occupied; adding there grows the
// tree by a single leaf slot (the leaf count is not rounded up to a power
// of two). This is the placement rule an ordinary Add proposal uses.
func (t *TreeSync) FreeLeafIndex() LeafIndex {
	for l := LeafIndex(0); l < LeafIndex(t.leafCount); l++ {
		if t.Leaf(l) == nil {
			return l
		}
	}
	return LeafIndex(t.leafCount)
}

// ExternalResyncLeafIndex implements the placement rule for the sender of
// an external commit (commit.go's SenderNewMemberCommit): if proposals
// includes a Remove of a leaf below the tree's current free leaf index,
// the joiner is resyncing and reclaims that index (its own pre-commit-
// stored leaf from an earlier membership); otherwise it takes the
// left-most free slot, exactly like an ordinary Add.
func (t *TreeSync) ExternalResyncLeafIndex(proposals []Proposal) LeafIndex {
	free := t.FreeLeafIndex()
	for _, p := range proposals {
		if p.Type == ProposalRemove && p.Remove.Removed < free {
			return p.Remove.Removed
		}
	}
	return free
}

// FullLeafMembers returns the indices and nodes of every non-blank leaf,
// in ascending order.
func (t *TreeSync) FullLeafMembers() []struct {
	Index LeafIndex
	Leaf  *LeafNode
} {
	var out []struct {
		Index LeafIndex
		Leaf  *LeafNode
	}
	for l := LeafIndex(0); l < LeafIndex(t.leafCount); l++ {
		if leaf := t.Leaf(l); leaf != nil {
			out = append(out, struct {
				Index LeafIndex
				Leaf  *LeafNode
			}{l, leaf})
		}
	}
	return out
}

// TreeHash returns the tree's root tree-hash, per section 4.A, computing
// and caching it on first use. The cache is invalidated by any mutation
// made through a TreeDiff merge (see treediff.go), never by direct field
// writes, which is why every mutating path in this package goes through
// diffs.
func (t *TreeSync) TreeHash() ([]byte, error) {
	if t.hashValid {
		return t.hashCache, nil
	}
	h, err := computeTreeHash(t.provider, t.ciphersuite, t.nodes, t.root(), t.leafCount)
	if err != nil {
		return nil, err
	}
	t.hashCache = h
	t.hashValid = true
	return h, nil
}

func (t *TreeSync) invalidateHash() { t.hashValid = false; t.hashCache = nil }

// resolution returns the resolution of node x: for a non-blank node, x
// itself plus the unmerged leaves recorded on it; for a blank leaf, the
// empty set; for a blank parent, the concatenation of its children's
// resolutions. This is exactly the set of public keys an encrypter must
// produce one HPKE ciphertext per, when targeting the copath node x.
func (t *TreeSync) resolution(x NodeIndex) []NodeIndex {
	if int(x) >= len(t.nodes) {
		return nil
	}
	node := t.nodes[x]
	switch node.kind {
	case nodeKindLeaf:
		return []NodeIndex{x}
	case nodeKindParent:
		res := []NodeIndex{x}
		if node.parent.UnmergedLeaves != nil {
			for i, ok := node.parent.UnmergedLeaves.NextSet(0); ok; i, ok = node.parent.UnmergedLeaves.NextSet(i + 1) {
				res = append(res, leafToNode(LeafIndex(i)))
			}
		}
		return res
	default: // blank
		if isLeafNode(x) {
			return nil
		}
		return append(t.resolution(left(x)), t.resolution(right(x, t.leafCount))...)
	}
}

// marshal writes the tree in wire order: a uint16-length-prefixed vector
// of optional nodes, blank-tagged-present per slot.
func (t *TreeSync) marshal(b *cryptobyte.Builder) {
	writeVector16(b, len(t.nodes), func(b *cryptobyte.Builder, i int) {
		switch t.nodes[i].kind {
		case nodeKindBlank:
			b.AddUint8(0)
		case nodeKindLeaf:
			b.AddUint8(1)
			t.nodes[i].leaf.marshal(b)
		case nodeKindParent:
			b.AddUint8(2)
			t.nodes[i].parent.marshal(b)
		}
	})
}

func (t *TreeSync) unmarshal(s *cryptobyte.String) error {
	var nodes []treeNode
	if err := readVector16(s, func(s *cryptobyte.String) error {
		var tag uint8
		if !s.ReadUint8(&tag) {
			return errShortRead
		}
		switch tag {
		case 0:
			nodes = append(nodes, treeNode{})
		case 1:
			var l LeafNode
			if err := l.unmarshal(s); err != nil {
				return err
			}
			nodes = append(nodes, treeNode{kind: nodeKindLeaf, leaf: &l})
		case 2:
			var p ParentNode
			if err := p.unmarshal(s); err != nil {
				return err
			}
			nodes = append(nodes, treeNode{kind: nodeKindParent, parent: &p})
		default:
			return ErrMalformedTree
		}
		return nil
	}); err != nil {
		return err
	}
	w := uint32(len(nodes))
	if w == 0 || nodeWidth((w+1)/2) != w {
		return ErrMalformedTree
	}
	t.nodes = nodes
	t.leafCount = (w + 1) / 2
	t.invalidateHash()
	return nil
}

// derivePathSecret derives a secret for node x given the secret held by its
// child on the direct path, using the "path" label HKDF-Expand construction
// from section 4.A. The very first secret on a path (the leaf's own
// starting secret) is supplied by the caller, not derived by this
// function.
func derivePathSecret(p mcrypto.Provider, alg mcrypto.HashID, parentSecret []byte) ([]byte, error) {
	return mcrypto.ExpandWithLabel(p, alg, parentSecret, mcrypto.LabelPath, nil, alg.Size())
}

// deriveNodeSecret derives the HPKE key pair seed for node x from the path
// secret held at x, using the "node" label.
func deriveNodeSecret(p mcrypto.Provider, alg mcrypto.HashID, pathSecret []byte) ([]byte, error) {
	return mcrypto.ExpandWithLabel(p, alg, pathSecret, mcrypto.LabelNode, nil, alg.Size())
}

// PathSecrets is the result of walking a leaf's direct path and deriving a
// fresh secret (and HPKE key pair seed) at every ancestor, plus the
// resulting commit_secret taken from the root.
type PathSecrets struct {
	// Secrets[i] is the path secret for directPath(leaf, n)[i].
	Secrets [][]byte
	// NodeSecrets[i] is the HPKE private-key seed derived from Secrets[i].
	NodeSecrets  [][]byte
	CommitSecret []byte
}

// DerivePathSecrets walks from leaf up to the root, deriving a chain of
// path secrets seeded by leafSecret, per section 4.A's commit-secret
// derivation. The last entry's node secret corresponds to the root and its
// path secret expanded with the "path" label again yields commit_secret.
func (t *TreeSync) DerivePathSecrets(leaf LeafIndex, leafSecret []byte) (*PathSecrets, error) {
	alg := t.ciphersuite.HashAlgorithm()
	path := directPath(leaf, t.leafCount)
	if len(path) == 0 {
		cs, err := derivePathSecret(t.provider, alg, leafSecret)
		if err != nil {
			return nil, libraryError("DerivePathSecrets", err)
		}
		return &PathSecrets{CommitSecret: cs}, nil
	}
	out := &PathSecrets{Secrets: make([][]byte, len(path)), NodeSecrets: make([][]byte, len(path))}
	secret := leafSecret
	for i := range path {
		ps, err := derivePathSecret(t.provider, alg, secret)
		if err != nil {
			return nil, libraryError("DerivePathSecrets", err)
		}
		out.Secrets[i] = ps
		ns, err := deriveNodeSecret(t.provider, alg, ps)
		if err != nil {
			return nil, libraryError("DerivePathSecrets", err)
		}
		out.NodeSecrets[i] = ns
		secret = ps
	}
	commitSecret, err := derivePathSecret(t.provider, alg, secret)
	if err != nil {
		return nil, libraryError("DerivePathSecrets", err)
	}
	out.CommitSecret = commitSecret
	return out, nil
}

// verifyPathPublicKeys checks that the HPKE public keys published in an
// UpdatePath match the ones this tree would derive from the decrypted path
// secrets, returning ErrPublicKeyMismatch on the first divergence
// (ValSem204).
func verifyPathPublicKeys(provider mcrypto.Provider, cs mcrypto.Ciphersuite, derivePublic func(seed []byte) ([]byte, error), nodeSecrets [][]byte, publishedKeys [][]byte) error {
	if len(nodeSecrets) != len(publishedKeys) {
		return newUpdatePathError(PathLengthMismatch, nil)
	}
	for i := range nodeSecrets {
		got, err := derivePublic(nodeSecrets[i])
		if err != nil {
			return libraryError("verifyPathPublicKeys", err)
		}
		if !bytes.Equal(got, publishedKeys[i]) {
			return newUpdatePathError(PathMismatch, ErrPublicKeyMismatch)
		}
	}
	return nil
}
