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
)

// PublicGroup is the full observable state of a group from a member's
// point of view: the ratchet tree, the group context it corresponds to,
// the interim transcript hash, and the confirmation tag of the last
// committed epoch. The only way to move from one epoch's PublicGroup to
// the next is MergeDiff: no exported method mutates tree, context, hash or
// tag directly.
type PublicGroup struct {
	provider mcrypto.Provider

	tree                  *TreeSync
	context               *GroupContext
	interimTranscriptHash []byte
	confirmationTag       []byte
}

// NewPublicGroup creates the epoch-0 state for a freshly founded group: a
// one-member tree, a group context with a zero tree hash placeholder
// filled in from the tree, and an empty interim transcript hash (the
// epoch-0 special case from spec section 4.E's interim-hash formula
// applies equally at genesis, since there is no prior confirmation tag to
// fold in).
func NewPublicGroup(provider mcrypto.Provider, cs mcrypto.Ciphersuite, groupID []byte, founder LeafNode, extensions []Extension) (*PublicGroup, error) {
	tree := NewTreeSync(provider, cs, founder)
	th, err := tree.TreeHash()
	if err != nil {
		return nil, err
	}
	ctx := &GroupContext{
		ProtocolVersion:         protocolVersionMLS10,
		Ciphersuite:             cs,
		GroupID:                 groupID,
		Epoch:                   0,
		TreeHash:                th,
		ConfirmedTranscriptHash: nil,
		Extensions:              extensions,
	}
	return &PublicGroup{
		provider:              provider,
		tree:                  tree,
		context:               ctx,
		interimTranscriptHash: nil,
	}, nil
}

// Tree returns the group's current ratchet tree.
func (g *PublicGroup) Tree() *TreeSync { return g.tree }

// Context returns the group's current GroupContext.
func (g *PublicGroup) Context() *GroupContext { return g.context }

// InterimTranscriptHash returns the interim transcript hash carried
// forward from the last merged commit.
func (g *PublicGroup) InterimTranscriptHash() []byte { return g.interimTranscriptHash }

// ConfirmationTag returns the confirmation tag of the last merged commit.
func (g *PublicGroup) ConfirmationTag() []byte { return g.confirmationTag }

// Ciphersuite, ProtocolVersion, GroupID, Epoch and Extensions are thin
// getters over the current GroupContext, supplementing the spec with the
// read accessors every consumer of a group (application layer, welcome
// construction, external commit validation) needs without reaching past
// this package's encapsulation.
func (g *PublicGroup) Ciphersuite() mcrypto.Ciphersuite { return g.context.Ciphersuite }
func (g *PublicGroup) ProtocolVersion() uint16          { return g.context.ProtocolVersion }
func (g *PublicGroup) GroupID() []byte                  { return g.context.GroupID }
func (g *PublicGroup) Epoch() uint64                    { return g.context.Epoch }
func (g *PublicGroup) Extensions() []Extension          { return g.context.Extensions }

// RequiredCapabilities returns the group's RequiredCapabilitiesExtension,
// if one is present among the group's extensions.
func (g *PublicGroup) RequiredCapabilities() (RequiredCapabilities, bool) {
	return requiredCapabilitiesFrom(g.context.Extensions)
}

// Member is one (index, LeafNode) pair, as yielded by Members.
type Member struct {
	Index LeafIndex
	Leaf  *LeafNode
}

// Members iterates every non-blank leaf in ascending index order. This is
// a convenience supplementing the spec's tree-level FullLeafMembers with
// the member-oriented view most application callers actually want (spec
// section 9).
func (g *PublicGroup) Members() []Member {
	full := g.tree.FullLeafMembers()
	out := make([]Member, len(full))
	for i, m := range full {
		out[i] = Member{Index: m.Index, Leaf: m.Leaf}
	}
	return out
}

// FreeLeafIndex delegates to the tree: the left-most free leaf slot, the
// placement rule an ordinary Add proposal uses. The external-commit resync
// rule is TreeSync.ExternalResyncLeafIndex.
func (g *PublicGroup) FreeLeafIndex() LeafIndex { return g.tree.FreeLeafIndex() }

// EmptyDiff returns a PublicGroupDiff with no pending changes, ready for
// the commit pipeline to apply proposals into.
func (g *PublicGroup) EmptyDiff() *PublicGroupDiff {
	return &PublicGroupDiff{
		group:      g,
		tree:       g.tree.EmptyTreeDiff(),
		extensions: append([]Extension(nil), g.context.Extensions...),
	}
}

// MergeDiff atomically swaps in a staged diff's tree, group context,
// interim transcript hash and confirmation tag. This is the ONLY place a
// PublicGroup's state is mutated; every other operation in this package
// that looks like a mutation in fact builds a new value and hands it here.
func (g *PublicGroup) MergeDiff(staged *StagedPublicGroupDiff) {
	g.tree = staged.tree
	g.context = staged.context
	g.interimTranscriptHash = staged.interimTranscriptHash
	g.confirmationTag = staged.confirmationTag
}
