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

// proposalRefLen is the digest size used for proposal references
// (SHA-256 truncated is not used; the full hash-algorithm output is kept,
// sized to the largest ciphersuite hash this module supports).
const proposalRefLen = 64

// ProposalRef identifies a proposal by the hash of its canonical encoding,
// as sent in a Commit's by-reference ProposalOrRef. It is a fixed-size
// array, not a slice, specifically so it can be used directly as a map
// key in ProposalStore.
type ProposalRef [proposalRefLen]byte

// computeProposalRef hashes a proposal's canonical encoding to produce its
// reference. Only the first alg.Size() bytes of the digest are
// significant; the remainder of the array is zero-padded.
func computeProposalRef(provider mcrypto.Provider, alg mcrypto.HashID, p *Proposal) (ProposalRef, error) {
	data, err := marshal(p)
	if err != nil {
		return ProposalRef{}, libraryError("computeProposalRef", err)
	}
	digest, err := provider.Hash(alg, data)
	if err != nil {
		return ProposalRef{}, err
	}
	var ref ProposalRef
	copy(ref[:], digest)
	return ref, nil
}

// QueuedProposal is a Proposal together with the sender leaf that
// introduced it and the reference a later Commit can point back to.
type QueuedProposal struct {
	Ref      ProposalRef
	Sender   LeafIndex
	Proposal Proposal
}

// ProposalStore holds every proposal a member has received for the
// current epoch, keyed by reference so a Commit's by-reference entries
// resolve in O(1). Receivers MUST accept a commit that resolves only a
// subset of the stored proposals (spec section 4.D); ProposalStore makes
// no attempt to enforce "all proposals get committed eventually".
type ProposalStore struct {
	byRef map[ProposalRef]*QueuedProposal
	order []ProposalRef
}

// NewProposalStore returns an empty store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{byRef: make(map[ProposalRef]*QueuedProposal)}
}

// Add inserts a proposal, computing its reference. Re-adding a proposal
// with an identical canonical encoding (and hence identical ref) is a
// no-op, since the store dedups by reference.
func (s *ProposalStore) Add(provider mcrypto.Provider, alg mcrypto.HashID, sender LeafIndex, p Proposal) (ProposalRef, error) {
	ref, err := computeProposalRef(provider, alg, &p)
	if err != nil {
		return ProposalRef{}, err
	}
	if _, ok := s.byRef[ref]; !ok {
		s.byRef[ref] = &QueuedProposal{Ref: ref, Sender: sender, Proposal: p}
		s.order = append(s.order, ref)
	}
	return ref, nil
}

// Get looks up a proposal by reference.
func (s *ProposalStore) Get(ref ProposalRef) (*QueuedProposal, bool) {
	q, ok := s.byRef[ref]
	return q, ok
}

// Remove deletes a proposal by reference, e.g. once its commit has merged.
func (s *ProposalStore) Remove(ref ProposalRef) {
	if _, ok := s.byRef[ref]; !ok {
		return
	}
	delete(s.byRef, ref)
	for i, r := range s.order {
		if r == ref {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// All returns every stored proposal, in insertion order.
func (s *ProposalStore) All() []*QueuedProposal {
	out := make([]*QueuedProposal, 0, len(s.order))
	for _, ref := range s.order {
		out = append(out, s.byRef[ref])
	}
	return out
}

// resolveProposals turns a Commit's ProposalOrRef list into concrete, sender-
// attributed proposals: inline values are attributed to the committer
// itself (per the framing they arrived under), by-reference entries are
// looked up in the store and attributed to whichever member originally
// proposed them. Returns ErrProposalNotFound if any reference is unknown.
func resolveProposals(store *ProposalStore, committer LeafIndex, refs []ProposalOrRef) ([]QueuedProposal, error) {
	out := make([]QueuedProposal, 0, len(refs))
	for _, por := range refs {
		if por.Value != nil {
			out = append(out, QueuedProposal{Sender: committer, Proposal: *por.Value})
			continue
		}
		q, ok := store.Get(*por.Ref)
		if !ok {
			return nil, ErrProposalNotFound
		}
		out = append(out, *q)
	}
	return out, nil
}
