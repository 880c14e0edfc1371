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

// TreeDiff is a copy-on-write overlay over a TreeSync: mutations land in a
// sparse map keyed by node index instead of touching the base tree, so
// that validating a commit (which must be free to discard its changes)
// never risks corrupting the tree other goroutines are reading. Only
// MergeTreeDiff ever produces a new, mutated TreeSync.
type TreeDiff struct {
	base      *TreeSync
	overlay   map[NodeIndex]treeNode
	leafCount uint32 // may exceed base.leafCount if the diff extends the tree
}

// EmptyTreeDiff returns a diff with no pending changes against t.
func (t *TreeSync) EmptyTreeDiff() *TreeDiff {
	return &TreeDiff{base: t, overlay: make(map[NodeIndex]treeNode), leafCount: t.leafCount}
}

func (d *TreeDiff) width() uint32 { return nodeWidth(d.leafCount) }

// Leaf reads through the overlay to the base tree.
func (d *TreeDiff) Leaf(l LeafIndex) *LeafNode {
	x := leafToNode(l)
	if n, ok := d.overlay[x]; ok {
		if n.kind != nodeKindLeaf {
			return nil
		}
		return n.leaf
	}
	if int(x) >= len(d.base.nodes) {
		return nil
	}
	if d.base.nodes[x].kind != nodeKindLeaf {
		return nil
	}
	return d.base.nodes[x].leaf
}

// Parent reads through the overlay to the base tree.
func (d *TreeDiff) Parent(x NodeIndex) *ParentNode {
	if n, ok := d.overlay[x]; ok {
		if n.kind != nodeKindParent {
			return nil
		}
		return n.parent
	}
	if int(x) >= len(d.base.nodes) {
		return nil
	}
	if d.base.nodes[x].kind != nodeKindParent {
		return nil
	}
	return d.base.nodes[x].parent
}

func (d *TreeDiff) node(x NodeIndex) treeNode {
	if n, ok := d.overlay[x]; ok {
		return n
	}
	if int(x) < len(d.base.nodes) {
		return d.base.nodes[x]
	}
	return treeNode{}
}

// SetLeaf installs leaf at slot l, extending the tree to l+1 leaf slots if
// l is beyond the current capacity; the leaf count is not rounded up to a
// power of two.
func (d *TreeDiff) SetLeaf(l LeafIndex, leaf LeafNode) {
	if uint32(l) >= d.leafCount {
		d.leafCount = uint32(l) + 1
	}
	d.overlay[leafToNode(l)] = treeNode{kind: nodeKindLeaf, leaf: &leaf}
}

// BlankLeaf clears slot l (a Remove proposal's effect on the leaf row).
func (d *TreeDiff) BlankLeaf(l LeafIndex) {
	d.overlay[leafToNode(l)] = treeNode{}
}

// SetParent installs a ParentNode at node index x.
func (d *TreeDiff) SetParent(x NodeIndex, p ParentNode) {
	d.overlay[x] = treeNode{kind: nodeKindParent, parent: &p}
}

// BlankParent clears the parent slot at x.
func (d *TreeDiff) BlankParent(x NodeIndex) {
	d.overlay[x] = treeNode{}
}

// BlankPath clears every ancestor of leaf on its direct path. This is the
// first step of applying a Remove (blank the leaf and its uncontested
// ancestors) and also the preparatory step before a committer installs a
// fresh UpdatePath (the path is blanked, then re-populated node by node).
func (d *TreeDiff) BlankPath(l LeafIndex) {
	for _, x := range directPath(l, d.leafCount) {
		d.BlankParent(x)
	}
}

// AddUnmergedLeafOnCopath records l as an unmerged leaf on every ancestor
// of l's direct path that is non-blank, per the tree-maintenance rule that
// a newly Added member has not yet contributed key material to any
// ancestor (spec section 4.A). Blank ancestors need no such marker: their
// resolution is already just their children's resolutions.
func (d *TreeDiff) AddUnmergedLeafOnCopath(l LeafIndex) {
	for _, x := range directPath(l, d.leafCount) {
		n := d.node(x)
		if n.kind != nodeKindParent {
			continue
		}
		p := n.parent.clone()
		p.AddUnmergedLeaf(l)
		d.overlay[x] = treeNode{kind: nodeKindParent, parent: p}
	}
}

// ClearUnmergedLeaf drops l from every ancestor's unmerged-leaves set, once
// l has applied its own UpdatePath and so has genuinely contributed key
// material up to the root.
func (d *TreeDiff) ClearUnmergedLeaf(l LeafIndex) {
	for _, x := range directPath(l, d.leafCount) {
		n := d.node(x)
		if n.kind != nodeKindParent || n.parent.UnmergedLeaves == nil {
			continue
		}
		p := n.parent.clone()
		p.UnmergedLeaves.Clear(uint(l))
		d.overlay[x] = treeNode{kind: nodeKindParent, parent: p}
	}
}

// MergeTreeDiff atomically applies d's overlay onto a fresh node slice,
// producing the new authoritative TreeSync. The base TreeSync passed to
// EmptyTreeDiff is left untouched; callers discard it in favor of the
// returned tree once a commit is accepted.
func MergeTreeDiff(d *TreeDiff) *TreeSync {
	w := nodeWidth(d.leafCount)
	nodes := make([]treeNode, w)
	copy(nodes, d.base.nodes)
	for x, n := range d.overlay {
		nodes[x] = n
	}
	return &TreeSync{
		provider:    d.base.provider,
		ciphersuite: d.base.ciphersuite,
		nodes:       nodes,
		leafCount:   d.leafCount,
	}
}
