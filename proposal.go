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
	"golang.org/x/crypto/cryptobyte"
)

// ProposalType tags which variant a Proposal carries. Proposals are
// modeled as a tagged union (one struct with an exported field per
// variant, all but one left zero) rather than an interface hierarchy,
// matching how the wire format itself is a tagged union and avoiding a
// type-switch at every call site that touches a proposal.
type ProposalType uint16

const (
	ProposalAdd                   ProposalType = 1
	ProposalUpdate                ProposalType = 2
	ProposalRemove                ProposalType = 3
	ProposalPreSharedKey           ProposalType = 4
	ProposalReInit                ProposalType = 5
	ProposalExternalInit          ProposalType = 6
	ProposalGroupContextExtensions ProposalType = 7
)

// AddProposal introduces a new member via their KeyPackage.
type AddProposal struct {
	KeyPackage KeyPackage
}

// UpdateProposal replaces the sender's own LeafNode (self-update).
type UpdateProposal struct {
	LeafNode LeafNode
}

// RemoveProposal evicts a member by leaf index.
type RemoveProposal struct {
	Removed LeafIndex
}

// PreSharedKeyProposal injects an out-of-band PSK into the key schedule.
// PSK derivation itself is outside this module's scope; only proposal
// shape and ordering are modeled here.
type PreSharedKeyProposal struct {
	PSKID []byte
}

// ReInitProposal requests the group be reinitialized under a new group id/
// ciphersuite/extension set. A commit containing only ReInit proposals (and
// optionally Add/PSK) does not require a path; see DESIGN.md's Open
// Question log.
type ReInitProposal struct {
	GroupID     []byte
	Version     uint16
	Ciphersuite uint16
	Extensions  []Extension
}

// ExternalInitProposal carries the kem_output an external joiner used to
// inject themselves into the group's init secret.
type ExternalInitProposal struct {
	KemOutput []byte
}

// GroupContextExtensionsProposal replaces the group's extension list.
type GroupContextExtensionsProposal struct {
	Extensions []Extension
}

// Proposal is the tagged union of every proposal variant. Exactly one of
// the pointer fields matching Type is non-nil.
type Proposal struct {
	Type ProposalType

	Add                   *AddProposal
	Update                *UpdateProposal
	Remove                *RemoveProposal
	PreSharedKey          *PreSharedKeyProposal
	ReInit                *ReInitProposal
	ExternalInit          *ExternalInitProposal
	GroupContextExtensions *GroupContextExtensionsProposal
}

func (p *Proposal) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(p.Type))
	switch p.Type {
	case ProposalAdd:
		p.Add.KeyPackage.marshal(b)
	case ProposalUpdate:
		p.Update.LeafNode.marshal(b)
	case ProposalRemove:
		b.AddUint32(uint32(p.Remove.Removed))
	case ProposalPreSharedKey:
		writeOpaqueVec16(b, p.PreSharedKey.PSKID)
	case ProposalReInit:
		writeOpaqueVec8(b, p.ReInit.GroupID)
		b.AddUint16(p.ReInit.Version)
		b.AddUint16(p.ReInit.Ciphersuite)
		writeVector16(b, len(p.ReInit.Extensions), func(b *cryptobyte.Builder, i int) { p.ReInit.Extensions[i].marshal(b) })
	case ProposalExternalInit:
		writeOpaqueVec16(b, p.ExternalInit.KemOutput)
	case ProposalGroupContextExtensions:
		writeVector16(b, len(p.GroupContextExtensions.Extensions), func(b *cryptobyte.Builder, i int) {
			p.GroupContextExtensions.Extensions[i].marshal(b)
		})
	}
}

func (p *Proposal) unmarshal(s *cryptobyte.String) error {
	*p = Proposal{}
	var typ uint16
	if !s.ReadUint16(&typ) {
		return errShortRead
	}
	p.Type = ProposalType(typ)
	switch p.Type {
	case ProposalAdd:
		p.Add = &AddProposal{}
		return p.Add.KeyPackage.unmarshal(s)
	case ProposalUpdate:
		p.Update = &UpdateProposal{}
		return p.Update.LeafNode.unmarshal(s)
	case ProposalRemove:
		p.Remove = &RemoveProposal{}
		var idx uint32
		if !s.ReadUint32(&idx) {
			return errShortRead
		}
		p.Remove.Removed = LeafIndex(idx)
		return nil
	case ProposalPreSharedKey:
		p.PreSharedKey = &PreSharedKeyProposal{}
		if !readOpaqueVec16(s, &p.PreSharedKey.PSKID) {
			return errShortRead
		}
		return nil
	case ProposalReInit:
		p.ReInit = &ReInitProposal{}
		if !readOpaqueVec8(s, &p.ReInit.GroupID) {
			return errShortRead
		}
		if !s.ReadUint16(&p.ReInit.Version) || !s.ReadUint16(&p.ReInit.Ciphersuite) {
			return errShortRead
		}
		return readVector16(s, func(s *cryptobyte.String) error {
			var ext Extension
			if err := ext.unmarshal(s); err != nil {
				return err
			}
			p.ReInit.Extensions = append(p.ReInit.Extensions, ext)
			return nil
		})
	case ProposalExternalInit:
		p.ExternalInit = &ExternalInitProposal{}
		if !readOpaqueVec16(s, &p.ExternalInit.KemOutput) {
			return errShortRead
		}
		return nil
	case ProposalGroupContextExtensions:
		p.GroupContextExtensions = &GroupContextExtensionsProposal{}
		return readVector16(s, func(s *cryptobyte.String) error {
			var ext Extension
			if err := ext.unmarshal(s); err != nil {
				return err
			}
			p.GroupContextExtensions.Extensions = append(p.GroupContextExtensions.Extensions, ext)
			return nil
		})
	default:
		return ErrMalformedTree
	}
}

// requiresPath reports whether this single proposal type forces a commit
// to carry an UpdatePath (ValSem201). Update, Remove, ExternalInit, and
// GroupContextExtensions each force a path on their own; Add, PSK, and
// ReInit never do in isolation (see DESIGN.md's Open Question log for why
// ReInit joins Add/PSK in pathRequired's exempt set).
func (t ProposalType) requiresPath() bool {
	switch t {
	case ProposalUpdate, ProposalRemove, ProposalExternalInit, ProposalGroupContextExtensions:
		return true
	default:
		return false
	}
}

// proposalApplyOrder is the fixed order in which a staged commit applies
// its resolved proposals, regardless of the order they appeared on the
// wire: Updates, then Removes, then Adds, then PSKs, then
// GroupContextExtensions, then ReInit, then ExternalInit.
var proposalApplyOrder = []ProposalType{
	ProposalUpdate,
	ProposalRemove,
	ProposalAdd,
	ProposalPreSharedKey,
	ProposalGroupContextExtensions,
	ProposalReInit,
	ProposalExternalInit,
}

// pathRequired classifies a full set of proposals per spec section 4.C: a
// path is required unless the set is empty, or consists solely of Add,
// PSK, and/or ReInit proposals (see DESIGN.md for why ReInit joins that
// exempt set), and is required unconditionally if any proposal in the set
// individually forces one.
func pathRequired(proposals []Proposal) bool {
	if len(proposals) == 0 {
		return false
	}
	exempt := true
	for _, p := range proposals {
		if p.Type.requiresPath() {
			return true
		}
		if p.Type != ProposalAdd && p.Type != ProposalPreSharedKey && p.Type != ProposalReInit {
			exempt = false
		}
	}
	return !exempt
}

// ProposalOrRef is how a Commit references a proposal: either inline
// (Value non-nil) or by reference to a previously sent proposal (Ref
// non-nil).
type ProposalOrRef struct {
	Value *Proposal
	Ref   *ProposalRef
}

func (por *ProposalOrRef) marshal(b *cryptobyte.Builder) {
	if por.Value != nil {
		b.AddUint8(1)
		por.Value.marshal(b)
		return
	}
	b.AddUint8(2)
	writeOpaqueVec8(b, por.Ref[:])
}

func (por *ProposalOrRef) unmarshal(s *cryptobyte.String) error {
	*por = ProposalOrRef{}
	var tag uint8
	if !s.ReadUint8(&tag) {
		return errShortRead
	}
	switch tag {
	case 1:
		var p Proposal
		if err := p.unmarshal(s); err != nil {
			return err
		}
		por.Value = &p
	case 2:
		var raw []byte
		if !readOpaqueVec8(s, &raw) {
			return errShortRead
		}
		if len(raw) != proposalRefLen {
			return ErrMalformedTree
		}
		var ref ProposalRef
		copy(ref[:], raw)
		por.Ref = &ref
	default:
		return ErrMalformedTree
	}
	return nil
}
