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
	"errors"
	"testing"
)

func addProposalFor(m *testMember, t *testing.T, identity string) ProposalOrRef {
	kp := m.keyPackage(t, identity)
	return ProposalOrRef{Value: &Proposal{Type: ProposalAdd, Add: &AddProposal{KeyPackage: kp}}}
}

// TestCommitAddOnlyAdvancesEpoch exercises the full pipeline - Validate,
// Stage, MergeDiff - for the simplest possible commit: a single Add, which
// requires no UpdatePath (spec section 4.C).
func TestCommitAddOnlyAdvancesEpoch(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-add-only")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, msg, founder)

	v, err := g.ValidateCommit(testProvider, store, msg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit: %v", err)
	}
	staged, err := g.Stage(v, msg, []byte("confirmation-key"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	g.MergeDiff(staged)

	if g.Epoch() != 1 {
		t.Fatalf("epoch = %d, want 1", g.Epoch())
	}
	members := g.Members()
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if !bytes.Equal(members[1].Leaf.Credential.Identity, []byte("member")) {
		t.Fatalf("added member identity = %q", members[1].Leaf.Credential.Identity)
	}
}

// TestCommitRejectsSelfRemoval is ValSem200.
func TestCommitRejectsSelfRemoval(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-self-remove")
	store := NewProposalStore()

	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit: Commit{Proposals: []ProposalOrRef{
			{Value: &Proposal{Type: ProposalRemove, Remove: &RemoveProposal{Removed: 0}}},
		}},
	}
	signCommit(t, msg, founder)

	_, err := g.ValidateCommit(testProvider, store, msg, 0, nil, nil, nil, 0)
	var ic *InvalidCommitError
	if !errors.As(err, &ic) || !errors.Is(err, ErrAttemptedSelfRemoval) {
		t.Fatalf("err = %v, want InvalidCommitError wrapping ErrAttemptedSelfRemoval", err)
	}
}

// TestCommitRejectsConflictingProposals checks that two Remove proposals
// targeting the same leaf are rejected, regardless of what resolved them.
func TestCommitRejectsConflictingProposals(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-conflict")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit: Commit{Proposals: []ProposalOrRef{
			{Value: &Proposal{Type: ProposalRemove, Remove: &RemoveProposal{Removed: 1}}},
			{Value: &Proposal{Type: ProposalRemove, Remove: &RemoveProposal{Removed: 1}}},
		}},
	}
	signCommit(t, msg, founder)

	_, err = g.ValidateCommit(testProvider, store, msg, 0, nil, nil, nil, 0)
	if !errors.Is(err, ErrConflictingProposals) {
		t.Fatalf("err = %v, want ErrConflictingProposals", err)
	}
}

// TestCommitRequiresPathForUpdate is ValSem201: a lone Update proposal
// forces an UpdatePath, since it carries no path secret of its own.
func TestCommitRequiresPathForUpdate(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-path-required")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	updatedLeaf := member.leafNode(t, "member", LeafNodeFromKeyPackage)
	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 1},
		Commit: Commit{Proposals: []ProposalOrRef{
			{Value: &Proposal{Type: ProposalUpdate, Update: &UpdateProposal{LeafNode: updatedLeaf}}},
		}},
	}
	signCommit(t, msg, member)

	_, err = g.ValidateCommit(testProvider, store, msg, 1, nil, nil, nil, 0)
	if !errors.Is(err, ErrRequiredPathNotFound) {
		t.Fatalf("err = %v, want ErrRequiredPathNotFound", err)
	}
}

// TestCommitSelfPathAdvancesEpoch exercises a committer validating its own
// path (receiver == sender): the commit secret comes straight from
// DerivePathSecrets. With a single leaf the direct path is empty, so this
// covers commit-secret derivation and the zero-length path check; no
// derived public key is compared.
func TestCommitSelfPathAdvancesEpoch(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-self-path")
	store := NewProposalStore()

	n := g.Tree().leafCount // 1; founder is the only leaf, direct path is empty
	leafSecret, err := testProvider.RandomVec(32)
	if err != nil {
		t.Fatalf("RandomVec: %v", err)
	}
	secrets, err := g.Tree().DerivePathSecrets(0, leafSecret)
	if err != nil {
		t.Fatalf("DerivePathSecrets: %v", err)
	}
	if len(directPath(0, n)) != 0 {
		t.Fatalf("expected a lone founder to have an empty direct path, got %d", len(directPath(0, n)))
	}

	updatedLeaf := founder.leafNode(t, "founder", LeafNodeFromCommit)
	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Path: &UpdatePath{LeafNode: updatedLeaf}},
	}
	signCommit(t, msg, founder)

	v, err := g.ValidateCommit(testProvider, store, msg, 0, leafSecret, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit: %v", err)
	}
	if !bytes.Equal(v.CommitSecret, secrets.CommitSecret) {
		t.Fatalf("commit secret mismatch")
	}
	staged, err := g.Stage(v, msg, []byte("k"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	g.MergeDiff(staged)
	if g.Epoch() != 1 {
		t.Fatalf("epoch = %d, want 1", g.Epoch())
	}
}

// TestConfirmationTagMismatchRejected is ValSem205.
func TestConfirmationTagMismatchRejected(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-conftag")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, msg, founder)
	v, err := g.ValidateCommit(testProvider, store, msg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit: %v", err)
	}
	staged, err := g.Stage(v, msg, []byte("confirmation-key"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if err := staged.VerifyConfirmationTag(staged.confirmationTag); err != nil {
		t.Fatalf("VerifyConfirmationTag(own tag): %v", err)
	}
	tampered := append([]byte(nil), staged.confirmationTag...)
	tampered[0] ^= 0xff
	if err := staged.VerifyConfirmationTag(tampered); !errors.Is(err, ErrConfirmationTagMismatch) {
		t.Fatalf("err = %v, want ErrConfirmationTagMismatch", err)
	}
}

// TestValidateAndApplyPathRejectsWrongLength is ValSem202.
func TestValidateAndApplyPathRejectsWrongLength(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-path-length")
	store := NewProposalStore()

	member := newTestMember(t, "member")
	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	// Now the tree has 2 leaves, so founder's direct path has length 1; an
	// UpdatePath with zero nodes must be rejected.
	leafSecret, err := testProvider.RandomVec(32)
	if err != nil {
		t.Fatalf("RandomVec: %v", err)
	}
	updatedLeaf := founder.leafNode(t, "founder", LeafNodeFromCommit)
	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Path: &UpdatePath{LeafNode: updatedLeaf}},
	}
	signCommit(t, msg, founder)

	_, err = g.ValidateCommit(testProvider, store, msg, 0, leafSecret, nil, nil, 0)
	var upErr *UpdatePathError
	if !errors.As(err, &upErr) || upErr.Kind != PathLengthMismatch {
		t.Fatalf("err = %v, want UpdatePathError{PathLengthMismatch}", err)
	}
}

// TestValidateAndApplyPathRejectsTamperedKey is ValSem204: a published
// encryption key that does not match what this receiver independently
// derives from the (here, directly supplied) path secret must be rejected.
func TestValidateAndApplyPathRejectsTamperedKey(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-path-tamper")
	store := NewProposalStore()

	leafSecret, err := testProvider.RandomVec(32)
	if err != nil {
		t.Fatalf("RandomVec: %v", err)
	}

	member := newTestMember(t, "member")
	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	secrets, err := g.Tree().DerivePathSecrets(0, leafSecret)
	if err != nil {
		t.Fatalf("DerivePathSecrets: %v", err)
	}
	pub, err := testProvider.HpkeDerivePublicKey(testCS, secrets.NodeSecrets[0])
	if err != nil {
		t.Fatalf("HpkeDerivePublicKey: %v", err)
	}
	pub[0] ^= 0xff // tamper

	updatedLeaf := founder.leafNode(t, "founder", LeafNodeFromCommit)
	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Path: &UpdatePath{LeafNode: updatedLeaf, Nodes: []UpdatePathNode{{EncryptionKey: pub}}}},
	}
	signCommit(t, msg, founder)

	_, err = g.ValidateCommit(testProvider, store, msg, 0, leafSecret, nil, nil, 0)
	var upErr *UpdatePathError
	if !errors.As(err, &upErr) || upErr.Kind != PathMismatch {
		t.Fatalf("err = %v, want UpdatePathError{PathMismatch}", err)
	}
}

// TestPathRequiredClassifier is ValSem201, table-driven across spec section
// 4.C's full taxonomy: Update/Remove/GroupContextExtensions each force a
// path on their own, Add-only and PreSharedKey-only never do.
func TestPathRequiredClassifier(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-path-classifier")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	cases := []struct {
		name     string
		proposal Proposal
		wantPath bool
	}{
		{"add-only", Proposal{Type: ProposalAdd, Add: &AddProposal{KeyPackage: newTestMember(t, "other").keyPackage(t, "other")}}, false},
		{"psk-only", Proposal{Type: ProposalPreSharedKey, PreSharedKey: &PreSharedKeyProposal{PSKID: []byte("psk")}}, false},
		{"update-only", Proposal{Type: ProposalUpdate, Update: &UpdateProposal{LeafNode: member.leafNode(t, "member", LeafNodeFromUpdate)}}, true},
		{"remove-only", Proposal{Type: ProposalRemove, Remove: &RemoveProposal{Removed: 1}}, true},
		{"gce-only", Proposal{Type: ProposalGroupContextExtensions, GroupContextExtensions: &GroupContextExtensionsProposal{Extensions: []Extension{{Type: 1, Data: []byte("x")}}}}, true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			msg := &CommitMessage{
				GroupID: g.GroupID(),
				Epoch:   g.Epoch(),
				Sender:  Sender{Type: SenderMember, Leaf: 0},
				Commit:  Commit{Proposals: []ProposalOrRef{{Value: &c.proposal}}},
			}
			signCommit(t, msg, founder)
			_, err := g.ValidateCommit(testProvider, store, msg, 0, nil, nil, nil, 0)
			if c.wantPath {
				if !errors.Is(err, ErrRequiredPathNotFound) {
					t.Fatalf("%s: err = %v, want ErrRequiredPathNotFound", c.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", c.name, err)
			}
		})
	}
}

// TestPartialProposalCommitLeavesRemainderInStore is seed case 7 (spec
// section 8): a committer may include only a subset of the proposals a
// receiver holds in its store. The receiver applies exactly that subset;
// the complement is left for a future epoch's commit.
func TestPartialProposalCommitLeavesRemainderInStore(t *testing.T) {
	t.Parallel()

	g, founder := newTestGroup(t, "group-partial-commit")
	member := newTestMember(t, "member")
	store := NewProposalStore()

	addMsg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit:  Commit{Proposals: []ProposalOrRef{addProposalFor(member, t, "member")}},
	}
	signCommit(t, addMsg, founder)
	v, err := g.ValidateCommit(testProvider, store, addMsg, 0, nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (add): %v", err)
	}
	staged, err := g.Stage(v, addMsg, []byte("k1"))
	if err != nil {
		t.Fatalf("Stage (add): %v", err)
	}
	g.MergeDiff(staged)

	// The store holds two pending proposals: Remove(member) and
	// Update(founder). The founder commits only the Remove and validates
	// its own commit.
	removeRef, err := store.Add(testProvider, testCS.HashAlgorithm(), 0, Proposal{
		Type: ProposalRemove, Remove: &RemoveProposal{Removed: 1},
	})
	if err != nil {
		t.Fatalf("store.Add (remove): %v", err)
	}
	updatedFounder := founder.leafNode(t, "founder", LeafNodeFromUpdate)
	updateRef, err := store.Add(testProvider, testCS.HashAlgorithm(), 0, Proposal{
		Type: ProposalUpdate, Update: &UpdateProposal{LeafNode: updatedFounder},
	})
	if err != nil {
		t.Fatalf("store.Add (update): %v", err)
	}

	leafSecret, err := testProvider.RandomVec(32)
	if err != nil {
		t.Fatalf("RandomVec: %v", err)
	}
	pathLeaf := founder.leafNode(t, "founder", LeafNodeFromCommit)
	secrets, err := g.Tree().DerivePathSecrets(0, leafSecret)
	if err != nil {
		t.Fatalf("DerivePathSecrets: %v", err)
	}
	pub, err := testProvider.HpkeDerivePublicKey(testCS, secrets.NodeSecrets[0])
	if err != nil {
		t.Fatalf("HpkeDerivePublicKey: %v", err)
	}

	msg := &CommitMessage{
		GroupID: g.GroupID(),
		Epoch:   g.Epoch(),
		Sender:  Sender{Type: SenderMember, Leaf: 0},
		Commit: Commit{
			Proposals: []ProposalOrRef{{Ref: &removeRef}},
			Path:      &UpdatePath{LeafNode: pathLeaf, Nodes: []UpdatePathNode{{EncryptionKey: pub}}},
		},
	}
	signCommit(t, msg, founder)

	v2, err := g.ValidateCommit(testProvider, store, msg, 0, leafSecret, nil, nil, 0)
	if err != nil {
		t.Fatalf("ValidateCommit (partial): %v", err)
	}
	staged2, err := g.Stage(v2, msg, []byte("k2"))
	if err != nil {
		t.Fatalf("Stage (partial): %v", err)
	}
	g.MergeDiff(staged2)
	store.Remove(removeRef)

	if g.Tree().Leaf(1) != nil {
		t.Fatalf("removed member's leaf is still present after a committed Remove")
	}
	if _, ok := store.Get(removeRef); ok {
		t.Fatalf("committed Remove proposal was not removed from the store")
	}
	if _, ok := store.Get(updateRef); !ok {
		t.Fatalf("uncommitted Update proposal should remain in the store")
	}
}

