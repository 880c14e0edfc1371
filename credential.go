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

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"golang.org/x/crypto/cryptobyte"
)

// CredentialType distinguishes the shape of the identity bytes a Credential
// carries.
type CredentialType uint16

const (
	CredentialBasic CredentialType = 1
	CredentialX509  CredentialType = 2
)

// Credential is a member's identity, as carried by a LeafNode.
type Credential struct {
	Type     CredentialType
	Identity []byte // BasicCredential identity, or a DER cert chain for X509
}

func (c *Credential) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(c.Type))
	writeOpaqueVec16(b, c.Identity)
}

func (c *Credential) unmarshal(s *cryptobyte.String) error {
	var typ uint16
	if !s.ReadUint16(&typ) {
		return errShortRead
	}
	c.Type = CredentialType(typ)
	var identity []byte
	if !readOpaqueVec16(s, &identity) {
		return errShortRead
	}
	c.Identity = identity
	return nil
}

func (c *Credential) equal(other *Credential) bool {
	return c.Type == other.Type && bytes.Equal(c.Identity, other.Identity)
}

// Capability bit positions within a Capabilities bitlist. Extensions and
// proposal types beyond these are represented by the Extensions/Proposals
// fields directly rather than packed into the fixed bitlist, mirroring how
// a credential-type/version capability set is naturally small and fixed
// while extension numbers are not.
const (
	capBasicCredential = iota
	capX509Credential
	capReInit
	capExternalInit
	capNumBits
)

// Capabilities advertises what a member's LeafNode supports: ciphersuites,
// extensions, proposal types, and credential types. The fixed, densely
// packed subset (credential types, and the handful of protocol-level
// proposal features every client must declare) is stored in a
// go-bitfield.Bitlist. Intersects checks a required credential type with a
// single bit lookup and checks required extensions and proposal types
// against the slices through a set lookup.
type Capabilities struct {
	Ciphersuites []uint16
	Extensions   []uint16
	ProposalTypes []uint16
	flags        bitfield.Bitlist
}

// NewCapabilities builds a Capabilities value with the fixed credential/
// protocol-feature flags set according to supportsX509 and supportsReInit.
func NewCapabilities(ciphersuites, extensions, proposalTypes []uint16, supportsX509, supportsReInit, supportsExternalInit bool) Capabilities {
	flags := bitfield.NewBitlist(uint64(capNumBits))
	flags.SetBitAt(uint64(capBasicCredential), true)
	flags.SetBitAt(uint64(capX509Credential), supportsX509)
	flags.SetBitAt(uint64(capReInit), supportsReInit)
	flags.SetBitAt(uint64(capExternalInit), supportsExternalInit)
	return Capabilities{
		Ciphersuites:  ciphersuites,
		Extensions:    extensions,
		ProposalTypes: proposalTypes,
		flags:         flags,
	}
}

// SupportsCredential reports whether this capability set declares support
// for the given credential type.
func (c Capabilities) SupportsCredential(t CredentialType) bool {
	switch t {
	case CredentialBasic:
		return c.flags.BitAt(uint64(capBasicCredential))
	case CredentialX509:
		return c.flags.BitAt(uint64(capX509Credential))
	default:
		return false
	}
}

// Intersects reports whether this capability set satisfies a group's
// required-capabilities extension: every required extension, proposal
// type, and credential type must be present in c.
func (c Capabilities) Intersects(required RequiredCapabilities) bool {
	if required.CredentialType != 0 && !c.SupportsCredential(required.CredentialType) {
		return false
	}
	if !containsAll(c.Extensions, required.Extensions) {
		return false
	}
	if !containsAll(c.ProposalTypes, required.ProposalTypes) {
		return false
	}
	return true
}

func containsAll(have, want []uint16) bool {
	haveSet := make(map[uint16]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}
	for _, w := range want {
		if !haveSet[w] {
			return false
		}
	}
	return true
}

func (c *Capabilities) marshal(b *cryptobyte.Builder) {
	writeVector16(b, len(c.Ciphersuites), func(b *cryptobyte.Builder, i int) { b.AddUint16(c.Ciphersuites[i]) })
	writeVector16(b, len(c.Extensions), func(b *cryptobyte.Builder, i int) { b.AddUint16(c.Extensions[i]) })
	writeVector16(b, len(c.ProposalTypes), func(b *cryptobyte.Builder, i int) { b.AddUint16(c.ProposalTypes[i]) })
	writeOpaqueVec8(b, []byte(c.flags))
}

func (c *Capabilities) unmarshal(s *cryptobyte.String) error {
	if err := readU16Vector(s, &c.Ciphersuites); err != nil {
		return err
	}
	if err := readU16Vector(s, &c.Extensions); err != nil {
		return err
	}
	if err := readU16Vector(s, &c.ProposalTypes); err != nil {
		return err
	}
	var raw []byte
	if !readOpaqueVec8(s, &raw) {
		return errShortRead
	}
	c.flags = bitfield.Bitlist(raw)
	return nil
}

func readU16Vector(s *cryptobyte.String, out *[]uint16) error {
	return readVector16(s, func(s *cryptobyte.String) error {
		var v uint16
		if !s.ReadUint16(&v) {
			return errShortRead
		}
		*out = append(*out, v)
		return nil
	})
}

// RequiredCapabilities mirrors a group's RequiredCapabilitiesExtension.
type RequiredCapabilities struct {
	Extensions     []uint16
	ProposalTypes  []uint16
	CredentialType CredentialType
}

// Lifetime bounds the validity window of a LeafNode's KeyPackage, as Unix
// timestamps (seconds).
type Lifetime struct {
	NotBefore int64
	NotAfter  int64
}

// ValidAt reports whether now falls within [NotBefore, NotAfter].
func (l Lifetime) ValidAt(now int64) bool {
	return now >= l.NotBefore && now <= l.NotAfter
}

func (l *Lifetime) marshal(b *cryptobyte.Builder) {
	b.AddUint64(uint64(l.NotBefore))
	b.AddUint64(uint64(l.NotAfter))
}

func (l *Lifetime) unmarshal(s *cryptobyte.String) error {
	var nb, na uint64
	if !s.ReadUint64(&nb) || !s.ReadUint64(&na) {
		return errShortRead
	}
	l.NotBefore, l.NotAfter = int64(nb), int64(na)
	return nil
}
