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
	"context"

	mcrypto "github.com/go-mls/mlscore/crypto"
	bitfield "github.com/prysmaticlabs/go-bitfield"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/sync/errgroup"
)

// SenderType distinguishes who is attributed as the origin of a commit.
type SenderType uint8

const (
	SenderMember         SenderType = 1
	SenderNewMemberCommit SenderType = 2 // external commit, see externaljoin.go
)

// Sender identifies a commit's origin.
type Sender struct {
	Type SenderType
	Leaf LeafIndex
}

// Commit is the unsigned content of a commit message: the proposals it
// resolves (inline or by reference) and, when required, the UpdatePath
// rewrapping the tree.
type Commit struct {
	Proposals []ProposalOrRef
	Path      *UpdatePath
}

func (c *Commit) marshal(b *cryptobyte.Builder) {
	writeVector16(b, len(c.Proposals), func(b *cryptobyte.Builder, i int) { c.Proposals[i].marshal(b) })
	if c.Path != nil {
		b.AddUint8(1)
		c.Path.marshal(b)
	} else {
		b.AddUint8(0)
	}
}

func (c *Commit) unmarshal(s *cryptobyte.String) error {
	*c = Commit{}
	if err := readVector16(s, func(s *cryptobyte.String) error {
		var por ProposalOrRef
		if err := por.unmarshal(s); err != nil {
			return err
		}
		c.Proposals = append(c.Proposals, por)
		return nil
	}); err != nil {
		return err
	}
	var hasPath uint8
	if !s.ReadUint8(&hasPath) {
		return errShortRead
	}
	if hasPath == 1 {
		var p UpdatePath
		if err := p.unmarshal(s); err != nil {
			return err
		}
		c.Path = &p
	}
	return nil
}

// CommitMessage is the framed, signed, and tagged content a committer
// sends and every other member processes.
type CommitMessage struct {
	GroupID       []byte
	Epoch         uint64
	Sender        Sender
	Commit        Commit
	Signature     []byte
	MembershipTag []byte
}

// tbs returns the bytes covered by the committer's signature: group id,
// epoch, sender, and the commit content itself.
func (m *CommitMessage) tbs() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	writeOpaqueVec8(b, m.GroupID)
	b.AddUint64(m.Epoch)
	b.AddUint8(uint8(m.Sender.Type))
	b.AddUint32(uint32(m.Sender.Leaf))
	m.Commit.marshal(b)
	return b.Bytes()
}

// PathDecrypter supplies the one HPKE decryption a processing member must
// perform to recover a committer's path secret: decryption itself needs
// the receiving member's own HPKE private key, which belongs to the
// private core-group layer this module treats as an external collaborator
// (spec section 1 Non-goals). A processing member's caller implements this
// against whatever private-key store it keeps.
type PathDecrypter interface {
	DecryptPathSecret(cs mcrypto.Ciphersuite, ct HpkeCiphertext) ([]byte, error)
}

// copathIndexFor returns the index into directPath(sender, n) of the
// ancestor whose copath resolution receiver belongs to: the node where
// receiver's own direct path first meets sender's. A processing member
// decrypts exactly this one ciphertext; every node above it on sender's
// path is then re-derived forward by the "path" label chain (ValSem204
// checks the derived keys against the published ones for the remainder of
// the path).
func copathIndexFor(sender, receiver LeafIndex, n uint32) (int, bool) {
	if sender == receiver {
		return 0, false
	}
	ancestor := commonAncestor(sender, receiver, n)
	for i, x := range directPath(sender, n) {
		if x == ancestor {
			return i, true
		}
	}
	return 0, false
}

// resolutionRecipientIndex returns the position of receiver within the
// resolution of the copath node at direct-path index i, i.e. which
// HpkeCiphertext in that UpdatePathNode targets receiver, mirroring
// UpdatePathNode::decrypt in the original source. The position is found by
// a linear scan of the resolution; for resolutions of up to 64 members the
// scan also marks the match in a bitfield.Bitlist64, which the result does
// not read.
func resolutionRecipientIndex(tree *TreeSync, sender LeafIndex, i int, receiver LeafIndex) (int, bool) {
	copathNodes := copath(sender, tree.leafCount)
	if i >= len(copathNodes) {
		return 0, false
	}
	res := tree.resolution(copathNodes[i])
	if len(res) > 64 {
		// Large resolutions are scanned without the Bitlist64, which
		// holds at most 64 bits.
		target := leafToNode(receiver)
		for idx, x := range res {
			if x == target {
				return idx, true
			}
		}
		return 0, false
	}
	var members bitfield.Bitlist64
	target := leafToNode(receiver)
	targetPos := -1
	for idx, x := range res {
		if x == target {
			members.SetBitAt(uint64(idx), true)
			targetPos = idx
		}
	}
	if targetPos < 0 {
		return 0, false
	}
	// recipient index is simply targetPos: ciphertexts are ordered the same
	// way resolution() enumerates members, one-to-one.
	_ = members
	return targetPos, true
}

// CommitValidation is the outcome of steps 1-4 of the pipeline: the
// resolved, order-applied proposal set and the derived commit secret,
// ready to be folded into a StagedPublicGroupDiff by Stage.
type CommitValidation struct {
	Resolved     []QueuedProposal
	CommitSecret []byte
	Diff         *PublicGroupDiff
}

// ValidateCommit runs pipeline steps 1-4: framing/signature verification,
// proposal resolution, ValSem200-205 semantic checks (all but the final
// confirmation-tag check, which needs the new transcript hash Stage
// computes), and staged application of proposals in the fixed order. It
// does not touch g; all results live in the returned CommitValidation
// until Stage and MergeDiff are called.
//
// receiver is the processing member's own leaf index. When receiver equals
// msg.Sender.Leaf, leafSecret must be the committer's own path-secret seed
// and decrypter is ignored. Otherwise leafSecret is ignored and decrypter
// must be supplied whenever msg.Commit.Path is non-nil.
func (g *PublicGroup) ValidateCommit(provider mcrypto.Provider, store *ProposalStore, msg *CommitMessage, receiver LeafIndex, leafSecret []byte, decrypter PathDecrypter, membershipKey []byte, now int64) (*CommitValidation, error) {
	// Step 1: framing and signature.
	if !bytes.Equal(msg.GroupID, g.context.GroupID) {
		return nil, ErrWrongGroupID
	}
	if msg.Epoch != g.context.Epoch {
		return nil, ErrWrongEpoch
	}
	var senderSignatureKey []byte
	switch msg.Sender.Type {
	case SenderMember:
		senderLeaf := g.tree.Leaf(msg.Sender.Leaf)
		if senderLeaf == nil {
			return nil, ErrSenderNotMember
		}
		senderSignatureKey = senderLeaf.SignatureKey
	case SenderNewMemberCommit:
		// An external joiner is not yet in the tree: its signature key is
		// whatever LeafNode it installs via its own path, not one looked
		// up from an existing slot. ExternalInit always requires a path
		// (see requiresPath), so its absence here is already fatal.
		if msg.Commit.Path == nil {
			return nil, invalidCommit(ErrRequiredPathNotFound)
		}
		senderSignatureKey = msg.Commit.Path.LeafNode.SignatureKey
	default:
		return nil, ErrUnknownSender
	}
	scheme, ok := g.context.Ciphersuite.Params()
	if !ok {
		return nil, ErrCiphersuiteMismatch
	}
	tbs, err := msg.tbs()
	if err != nil {
		return nil, libraryError("ValidateCommit", err)
	}
	if err := provider.Verify(scheme.Signature, senderSignatureKey, tbs, msg.Signature); err != nil {
		return nil, ErrInvalidSignature
	}
	if membershipKey != nil {
		tag, err := mcrypto.HMACSum(g.context.Ciphersuite.HashAlgorithm(), membershipKey, append(tbs, msg.Signature...))
		if err != nil {
			return nil, libraryError("ValidateCommit", err)
		}
		if !bytes.Equal(tag, msg.MembershipTag) {
			return nil, ErrMembershipTagMismatch
		}
	}

	// Step 2: proposal resolution.
	resolved, err := resolveProposals(store, msg.Sender.Leaf, msg.Commit.Proposals)
	if err != nil {
		return nil, invalidCommit(err)
	}

	// Step 3: ValSem200, conflict, and Add-batch checks.
	//
	// ValSem200 only makes sense for an existing member committing against
	// its own current leaf; an external joiner's Sender.Leaf is the slot
	// it is about to occupy; a resync's own Remove legitimately targets
	// that same slot (see ExternalResyncLeafIndex below) and must not be
	// mistaken for self-removal.
	if msg.Sender.Type == SenderMember {
		if err := checkSelfRemoval(msg.Sender.Leaf, resolved); err != nil {
			return nil, invalidCommit(err)
		}
	}
	if err := checkNoConflicts(resolved); err != nil {
		return nil, invalidCommit(err)
	}
	if err := g.validateAddBatch(provider, scheme.Signature, resolved, now); err != nil {
		return nil, invalidCommit(err)
	}
	if msg.Sender.Type == SenderNewMemberCommit {
		want := g.tree.ExternalResyncLeafIndex(proposalTypesOf(resolved))
		if msg.Sender.Leaf != want {
			return nil, invalidCommit(ErrExternalCommitLeafIndex)
		}
	}

	requiresPath := pathRequired(proposalTypesOf(resolved))
	if requiresPath && msg.Commit.Path == nil {
		return nil, invalidCommit(ErrRequiredPathNotFound)
	}

	// Step 4: stage proposal application in the fixed order, then the path.
	diff := g.EmptyDiff()
	applyResolvedProposals(diff, resolved)

	var commitSecret []byte
	if msg.Commit.Path != nil {
		secret, err := g.validateAndApplyPath(provider, diff, msg.Sender.Leaf, msg.Commit.Path, receiver, leafSecret, decrypter)
		if err != nil {
			return nil, invalidCommit(err)
		}
		commitSecret = secret
	} else {
		commitSecret = make([]byte, g.context.Ciphersuite.HashAlgorithm().Size())
	}

	return &CommitValidation{Resolved: resolved, CommitSecret: commitSecret, Diff: diff}, nil
}

func proposalTypesOf(qs []QueuedProposal) []Proposal {
	out := make([]Proposal, len(qs))
	for i, q := range qs {
		out[i] = q.Proposal
	}
	return out
}

// checkSelfRemoval is ValSem200: a commit may not remove its own sender.
func checkSelfRemoval(sender LeafIndex, resolved []QueuedProposal) error {
	for _, q := range resolved {
		if q.Proposal.Type == ProposalRemove && q.Proposal.Remove.Removed == sender {
			return ErrAttemptedSelfRemoval
		}
	}
	return nil
}

// checkNoConflicts rejects a proposal set where more than one proposal
// targets the same leaf by Update or Remove; Adds never conflict with each
// other by leaf since they each claim a fresh slot.
func checkNoConflicts(resolved []QueuedProposal) error {
	touched := make(map[LeafIndex]bool)
	for _, q := range resolved {
		var target LeafIndex
		switch q.Proposal.Type {
		case ProposalUpdate:
			target = q.Sender
		case ProposalRemove:
			target = q.Proposal.Remove.Removed
		default:
			continue
		}
		if touched[target] {
			return ErrConflictingProposals
		}
		touched[target] = true
	}
	return nil
}

// validateAddBatch validates every Add proposal's KeyPackage concurrently:
// signature, lifetime, ciphersuite, and (when the group has one) required-
// capabilities intersection, plus a duplicate-credential scan against both
// the other Adds in this batch and the existing tree membership. Providers
// are required to be safe for concurrent use (spec section 5), so this is
// the one place the pipeline fans work out across goroutines; no tree or
// diff mutation happens until every check has returned cleanly.
func (g *PublicGroup) validateAddBatch(provider mcrypto.Provider, scheme mcrypto.SignatureScheme, resolved []QueuedProposal, now int64) error {
	var adds []*AddProposal
	for _, q := range resolved {
		if q.Proposal.Type == ProposalAdd {
			adds = append(adds, q.Proposal.Add)
		}
	}
	if len(adds) == 0 {
		return nil
	}

	existing := make(map[string]bool)
	for _, m := range g.tree.FullLeafMembers() {
		existing[string(m.Leaf.Credential.Identity)] = true
	}
	seen := make(map[string]bool, len(adds))
	for _, a := range adds {
		id := string(a.KeyPackage.Leaf.Credential.Identity)
		if existing[id] || seen[id] {
			return ErrDuplicateCredential
		}
		seen[id] = true
	}

	required, hasRequired := g.RequiredCapabilities()

	grp, ctx := errgroup.WithContext(context.Background())
	for _, a := range adds {
		a := a
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := a.KeyPackage.Validate(provider, scheme, g.context.Ciphersuite, now); err != nil {
				return err
			}
			if hasRequired && !a.KeyPackage.Leaf.Capabilities.Intersects(required) {
				return ErrInvalidKeyPackage
			}
			return nil
		})
	}
	return grp.Wait()
}

// applyResolvedProposals applies every proposal in fixed order (updates,
// removes, adds, psks, gce, reinit, externalinit), per
// proposalApplyOrder; wire order within the commit is irrelevant.
func applyResolvedProposals(diff *PublicGroupDiff, resolved []QueuedProposal) {
	for _, want := range proposalApplyOrder {
		for _, q := range resolved {
			if q.Proposal.Type != want {
				continue
			}
			switch q.Proposal.Type {
			case ProposalUpdate:
				diff.ApplyUpdate(q.Sender, q.Proposal.Update.LeafNode)
			case ProposalRemove:
				diff.ApplyRemove(q.Proposal.Remove.Removed)
			case ProposalAdd:
				diff.ApplyAdd(q.Proposal.Add.KeyPackage)
			case ProposalGroupContextExtensions:
				diff.ApplyGroupContextExtensions(q.Proposal.GroupContextExtensions.Extensions)
			}
		}
	}
}

// validateAndApplyPath handles ValSem202-204 and installs the committer's
// path into diff, returning the commit secret derived from the root.
func (g *PublicGroup) validateAndApplyPath(provider mcrypto.Provider, diff *PublicGroupDiff, sender LeafIndex, path *UpdatePath, receiver LeafIndex, leafSecret []byte, decrypter PathDecrypter) ([]byte, error) {
	n := diff.tree.leafCount
	if uint32(sender) >= n {
		// An external commit's sender may be claiming a slot one past the
		// tree's current width (ExternalResyncLeafIndex's left-most-free
		// case); the extension only actually lands once ApplyPath below
		// calls SetLeaf, so compute the direct path against the width it
		// implies rather than the width that precedes it.
		n = uint32(sender) + 1
	}
	wantLen := len(directPath(sender, n))
	if len(path.Nodes) != wantLen {
		return nil, newUpdatePathError(PathLengthMismatch, nil)
	}

	alg := g.context.Ciphersuite.HashAlgorithm()
	var secrets *PathSecrets

	if receiver == sender {
		ps, err := g.tree.DerivePathSecrets(sender, leafSecret)
		if err != nil {
			return nil, err
		}
		secrets = ps
	} else if decrypter != nil {
		idx, ok := copathIndexFor(sender, receiver, n)
		if !ok {
			// receiver is outside every copath resolution (can happen for a
			// lone-leaf tree); nothing to decrypt, commit secret cannot be
			// independently verified by this receiver.
			secrets = &PathSecrets{}
		} else {
			recvIdx, ok := resolutionRecipientIndex(diff.tree.base, sender, idx, receiver)
			if !ok || recvIdx >= len(path.Nodes[idx].Ciphertexts) {
				return nil, newUpdatePathError(UnableToDecrypt, nil)
			}
			seed, err := decrypter.DecryptPathSecret(g.context.Ciphersuite, path.Nodes[idx].Ciphertexts[recvIdx])
			if err != nil {
				return nil, newUpdatePathError(UnableToDecrypt, err)
			}
			secrets = &PathSecrets{Secrets: make([][]byte, wantLen-idx), NodeSecrets: make([][]byte, wantLen-idx)}
			secret := seed
			for i := 0; i < wantLen-idx; i++ {
				ns, err := deriveNodeSecret(provider, alg, secret)
				if err != nil {
					return nil, libraryError("validateAndApplyPath", err)
				}
				secrets.Secrets[i] = secret
				secrets.NodeSecrets[i] = ns
				next, err := derivePathSecret(provider, alg, secret)
				if err != nil {
					return nil, libraryError("validateAndApplyPath", err)
				}
				secret = next
			}
			secrets.CommitSecret = secret
		}
	}

	// ValSem204: verify whatever public keys this receiver derived against
	// the published path, for the suffix it was able to decrypt.
	if secrets != nil && len(secrets.NodeSecrets) > 0 {
		offset := wantLen - len(secrets.NodeSecrets)
		for i, seed := range secrets.NodeSecrets {
			pub, err := derivePublicKeyFromSeed(provider, g.context.Ciphersuite, seed)
			if err != nil {
				return nil, libraryError("validateAndApplyPath", err)
			}
			if !bytes.Equal(pub, path.Nodes[offset+i].EncryptionKey) {
				return nil, newUpdatePathError(PathMismatch, ErrPublicKeyMismatch)
			}
		}
	}

	diff.ApplyPath(sender, path)

	if secrets != nil && secrets.CommitSecret != nil {
		return secrets.CommitSecret, nil
	}
	return make([]byte, alg.Size()), nil
}

// derivePublicKeyFromSeed recovers the HPKE public key a path node's seed
// corresponds to, via the provider's KEM-level deterministic key
// derivation, so this comparison never needs to materialize a private key
// outside the provider (ValSem204).
func derivePublicKeyFromSeed(provider mcrypto.Provider, cs mcrypto.Ciphersuite, seed []byte) ([]byte, error) {
	return provider.HpkeDerivePublicKey(cs, seed)
}

// Stage finishes the pipeline: it computes the new tree hash, the new
// confirmed transcript hash (folding in this commit's TBS content over the
// prior interim transcript hash), bumps the epoch, computes the new
// confirmation tag (ValSem205), and returns an immutable
// StagedPublicGroupDiff. It does not mutate g; call PublicGroup.MergeDiff
// with the result to actually advance the group.
func (g *PublicGroup) Stage(v *CommitValidation, msg *CommitMessage, confirmationKey []byte) (*StagedPublicGroupDiff, error) {
	tree := MergeTreeDiff(v.Diff.tree)
	treeHash, err := tree.TreeHash()
	if err != nil {
		return nil, err
	}

	tbs, err := msg.tbs()
	if err != nil {
		return nil, libraryError("Stage", err)
	}
	alg := g.context.Ciphersuite.HashAlgorithm()
	confirmedInput := cryptobyte.NewBuilder(nil)
	transcriptHashInput(confirmedInput, g.interimTranscriptHash, append(tbs, msg.Signature...))
	confirmedBytes, err := confirmedInput.Bytes()
	if err != nil {
		return nil, libraryError("Stage", err)
	}
	confirmedTranscriptHash, err := provider(g.provider).Hash(alg, confirmedBytes)
	if err != nil {
		return nil, err
	}

	newContext := &GroupContext{
		ProtocolVersion:         g.context.ProtocolVersion,
		Ciphersuite:             g.context.Ciphersuite,
		GroupID:                 g.context.GroupID,
		Epoch:                   g.context.Epoch + 1,
		TreeHash:                treeHash,
		ConfirmedTranscriptHash: confirmedTranscriptHash,
		Extensions:              v.Diff.extensions,
	}

	confirmationTag, err := mcrypto.HMACSum(alg, confirmationKey, confirmedTranscriptHash)
	if err != nil {
		return nil, libraryError("Stage", err)
	}

	// ValSem205: VerifyConfirmationTag compares this independently computed
	// tag with the one the committer attached; Stage itself does not compare
	// tags. The tag is folded into the next interim transcript hash here.
	interimTranscriptHash, err := computeInterimTranscriptHash(g.provider, alg, confirmedTranscriptHash, confirmationTag)
	if err != nil {
		return nil, err
	}

	return &StagedPublicGroupDiff{
		tree:                  tree,
		context:               newContext,
		interimTranscriptHash: interimTranscriptHash,
		confirmationTag:       confirmationTag,
	}, nil
}

// VerifyConfirmationTag checks a just-computed StagedPublicGroupDiff's
// confirmation tag against the one the committer attached, the final
// ValSem205 check. Call this before MergeDiff whenever msg carries a
// committer-attested tag.
func (staged *StagedPublicGroupDiff) VerifyConfirmationTag(attested []byte) error {
	if !bytes.Equal(staged.confirmationTag, attested) {
		return ErrConfirmationTagMismatch
	}
	return nil
}

// StagedPublicGroupDiff is the immutable result of Stage: the fully
// computed next-epoch tree, group context, interim transcript hash, and
// confirmation tag, ready to be merged.
type StagedPublicGroupDiff struct {
	tree                  *TreeSync
	context               *GroupContext
	interimTranscriptHash []byte
	confirmationTag       []byte
}

// provider is a tiny adapter so Stage (a PublicGroup method) can reach the
// crypto provider without repeating g.provider at every call; kept as a
// named conversion rather than a field alias so its one caller reads
// cleanly.
func provider(p mcrypto.Provider) mcrypto.Provider { return p }
