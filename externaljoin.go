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

// NodeResolver lazily supplies the serialized bytes of a tree node that
// FromExternalWithResolver found absent from the wire-level node list (a
// blank placeholder the caller expects to back-fill from cached or partial
// tree state), mirroring the on-demand resolution shape the corpus's
// NodeResolverFn gives a partial/cached VerkleNode.Get. A resolver that
// cannot supply node x should return (nil, false); the slot is then left
// blank rather than causing an error, since a genuinely blank slot is valid
// tree state.
type NodeResolver func(x NodeIndex) ([]byte, bool)

// FromExternal reconstructs a PublicGroup from wire data: a node list (as
// carried by a GroupInfo's ratchet_tree extension or an out-of-band
// transfer) and a signed, not-yet-verified GroupInfo. This is the only
// entry point into a group's state that does not start from NewPublicGroup
// plus a chain of merged commits; it is how an external joiner or a
// third-party observer (e.g. a delivery service) begins tracking a group it
// did not create.
//
// Per spec section 4.E, the steps are: build the tree; locate the signer's
// leaf in it; verify the GroupInfo's signature against that leaf's
// signature key; check the rebuilt tree hash against the one the GroupInfo
// claims; check the protocol version; and reconstruct the interim
// transcript hash (empty at epoch 0, otherwise folding in the GroupInfo's
// confirmation tag per the same formula Stage uses for an ordinary commit).
func FromExternal(provider mcrypto.Provider, cs mcrypto.Ciphersuite, nodes []*treeNode, info VerifiableGroupInfo) (*PublicGroup, []Extension, error) {
	return fromExternal(provider, cs, nodes, nil, info)
}

// FromExternalWithResolver is FromExternal, but any nil entry in nodes is
// first offered to resolver for lazy back-filling before the tree is built.
func FromExternalWithResolver(provider mcrypto.Provider, cs mcrypto.Ciphersuite, nodes []*treeNode, resolver NodeResolver, info VerifiableGroupInfo) (*PublicGroup, []Extension, error) {
	return fromExternal(provider, cs, nodes, resolver, info)
}

func fromExternal(provider mcrypto.Provider, cs mcrypto.Ciphersuite, nodes []*treeNode, resolver NodeResolver, info VerifiableGroupInfo) (*PublicGroup, []Extension, error) {
	if resolver != nil {
		nodes = resolveBlankNodes(nodes, resolver)
	}

	// Step 1: build the tree from the wire-level node list.
	tree, err := FromNodes(provider, cs, nodes)
	if err != nil {
		return nil, nil, err
	}

	scheme, ok := cs.Params()
	if !ok {
		return nil, nil, ErrCiphersuiteMismatch
	}

	// Step 2: locate the signer's leaf.
	signerLeaf := tree.Leaf(info.Signer)
	if signerLeaf == nil {
		return nil, nil, ErrUnknownSender
	}

	// Step 3: verify the group info's signature against that leaf's
	// signature key.
	if err := info.verify(provider, scheme.Signature, signerLeaf.SignatureKey); err != nil {
		return nil, nil, err
	}

	// Step 4: the rebuilt tree hash must match the one the group info
	// claims.
	treeHash, err := tree.TreeHash()
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(treeHash, info.GroupContext.TreeHash) {
		return nil, nil, ErrTreeHashMismatch
	}

	// Step 5: protocol version check.
	if info.GroupContext.ProtocolVersion != protocolVersionMLS10 {
		return nil, nil, ErrUnsupportedMlsVersion
	}

	// Step 6: reconstruct the interim transcript hash.
	var interimTranscriptHash []byte
	if info.GroupContext.Epoch != 0 {
		interimTranscriptHash, err = computeInterimTranscriptHash(provider, cs.HashAlgorithm(), info.GroupContext.ConfirmedTranscriptHash, info.ConfirmationTag)
		if err != nil {
			return nil, nil, err
		}
	}

	group := &PublicGroup{
		provider:              provider,
		tree:                  tree,
		context:               info.GroupContext.clone(),
		interimTranscriptHash: interimTranscriptHash,
		confirmationTag:       append([]byte(nil), info.ConfirmationTag...),
	}
	return group, info.Extensions, nil
}

// resolveBlankNodes offers every nil entry in nodes to resolver, parsing
// whatever bytes it returns as a single wire-encoded tree node (the same
// {tag, body} shape TreeSync.unmarshal reads per slot). Entries the
// resolver cannot supply, or that fail to parse, are left blank: a blank
// slot is valid tree state, so resolution failure is not itself an error
// here. FromNodes checks only the node count and that each node sits in a
// slot of its kind; a blank signer leaf is reported later, as
// ErrUnknownSender.
func resolveBlankNodes(nodes []*treeNode, resolver NodeResolver) []*treeNode {
	out := make([]*treeNode, len(nodes))
	copy(out, nodes)
	for i, n := range out {
		if n != nil {
			continue
		}
		raw, ok := resolver(NodeIndex(i))
		if !ok || len(raw) == 0 {
			continue
		}
		resolved, err := parseTreeNode(raw)
		if err != nil {
			continue
		}
		out[i] = resolved
	}
	return out
}

// parseTreeNode decodes a single {tag, body} wire-encoded tree node, the
// same per-slot shape TreeSync.marshal/unmarshal use inside their outer
// vector framing.
func parseTreeNode(raw []byte) (*treeNode, error) {
	s := cryptobyte.String(raw)
	var tag uint8
	if !s.ReadUint8(&tag) {
		return nil, errShortRead
	}
	switch tag {
	case 0:
		return &treeNode{}, nil
	case 1:
		var l LeafNode
		if err := l.unmarshal(&s); err != nil {
			return nil, err
		}
		return &treeNode{kind: nodeKindLeaf, leaf: &l}, nil
	case 2:
		var p ParentNode
		if err := p.unmarshal(&s); err != nil {
			return nil, err
		}
		return &treeNode{kind: nodeKindParent, parent: &p}, nil
	default:
		return nil, ErrMalformedTree
	}
}
