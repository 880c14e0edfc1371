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

// PublicGroupDiff accumulates the effect of a commit's resolved proposals
// against a PublicGroup's current tree and extensions, before the result
// is hashed and turned into a StagedPublicGroupDiff. Nothing it touches is
// visible outside the commit pipeline until Stage succeeds and the result
// is merged.
type PublicGroupDiff struct {
	group      *PublicGroup
	tree       *TreeDiff
	extensions []Extension
}

// ApplyUpdate replaces sender's LeafNode, per an Update proposal. The
// sender's path is blanked above it: an Update proposal carries no path of
// its own, so every ancestor that previously derived from the old leaf key
// is no longer valid and must wait for a future committer's path (or be
// re-blanked again) before it can be used for encryption.
func (d *PublicGroupDiff) ApplyUpdate(sender LeafIndex, leaf LeafNode) {
	d.tree.SetLeaf(sender, leaf)
	d.tree.BlankPath(sender)
}

// ApplyRemove blanks removed's leaf and its direct path, per a Remove
// proposal.
func (d *PublicGroupDiff) ApplyRemove(removed LeafIndex) {
	d.tree.BlankLeaf(removed)
	d.tree.BlankPath(removed)
}

// ApplyAdd installs the proposal's KeyPackage at the tree's next free leaf
// slot (extending the tree if necessary) and marks the new leaf as
// unmerged on every non-blank ancestor, since the new member has not yet
// contributed key material above its own leaf.
func (d *PublicGroupDiff) ApplyAdd(kp KeyPackage) LeafIndex {
	l := LeafIndex(d.tree.leafCount)
	for existing := LeafIndex(0); existing < LeafIndex(d.tree.leafCount); existing++ {
		if d.tree.Leaf(existing) == nil {
			l = existing
			break
		}
	}
	d.tree.SetLeaf(l, kp.Leaf)
	d.tree.AddUnmergedLeafOnCopath(l)
	return l
}

// ApplyGroupContextExtensions replaces the pending extension list.
func (d *PublicGroupDiff) ApplyGroupContextExtensions(exts []Extension) {
	d.extensions = exts
}

// ApplyPath installs a committer's fresh path: the new leaf node at
// sender's slot, and a new ParentNode (carrying the path's public key,
// with a fresh blank unmerged-leaf set) at every ancestor on the direct
// path, clearing sender from every ancestor's unmerged-leaves set since it
// has now genuinely contributed key material up to the root.
func (d *PublicGroupDiff) ApplyPath(sender LeafIndex, path *UpdatePath) {
	d.tree.SetLeaf(sender, path.LeafNode)
	nodes := directPath(sender, d.tree.leafCount)
	for i, x := range nodes {
		if i >= len(path.Nodes) {
			break
		}
		d.tree.SetParent(x, ParentNode{EncryptionKey: path.Nodes[i].EncryptionKey})
	}
	d.tree.ClearUnmergedLeaf(sender)
}

// transcriptHashInput is {prior_hash, content} the way a confirmed or
// interim transcript hash folds in a FramedContent's signed payload;
// commit.go supplies the exact bytes already TBS-encoded.
func transcriptHashInput(b *cryptobyte.Builder, priorHash, content []byte) {
	writeOpaqueVec8(b, priorHash)
	writeOpaqueVec8(b, content)
}

// computeInterimTranscriptHash folds a confirmation tag into a confirmed
// transcript hash to produce the next epoch's interim transcript hash:
// Hash(confirmed_transcript_hash || InterimTranscriptHashInput{
// confirmation_tag }). Both an ordinary committer's Stage and an external
// joiner's FromExternal need exactly this formula (spec section 4.D step 3
// and section 4.E step 6), so it lives here rather than being duplicated.
func computeInterimTranscriptHash(p mcrypto.Provider, alg mcrypto.HashID, confirmedTranscriptHash, confirmationTag []byte) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	writeOpaqueVec8(b, confirmationTag)
	tail, err := b.Bytes()
	if err != nil {
		return nil, libraryError("computeInterimTranscriptHash", err)
	}
	return p.Hash(alg, append(append([]byte(nil), confirmedTranscriptHash...), tail...))
}
