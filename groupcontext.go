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

// GroupContext is the piece of group state that enters every signature and
// MAC: the tree hash and transcript hash bind a commit to the exact state
// it was issued against, so it must have one canonical encoding shared by
// every implementation bit-for-bit.
type GroupContext struct {
	ProtocolVersion        uint16
	Ciphersuite            mcrypto.Ciphersuite
	GroupID                []byte
	Epoch                  uint64
	TreeHash               []byte
	ConfirmedTranscriptHash []byte
	Extensions             []Extension
}

func (g *GroupContext) marshal(b *cryptobyte.Builder) {
	b.AddUint16(g.ProtocolVersion)
	b.AddUint16(uint16(g.Ciphersuite))
	writeOpaqueVec8(b, g.GroupID)
	b.AddUint64(g.Epoch)
	writeOpaqueVec8(b, g.TreeHash)
	writeOpaqueVec8(b, g.ConfirmedTranscriptHash)
	writeVector16(b, len(g.Extensions), func(b *cryptobyte.Builder, i int) { g.Extensions[i].marshal(b) })
}

func (g *GroupContext) unmarshal(s *cryptobyte.String) error {
	*g = GroupContext{}
	var version, cs uint16
	if !s.ReadUint16(&version) || !s.ReadUint16(&cs) {
		return errShortRead
	}
	g.ProtocolVersion = version
	g.Ciphersuite = mcrypto.Ciphersuite(cs)
	if !readOpaqueVec8(s, &g.GroupID) {
		return errShortRead
	}
	if !s.ReadUint64(&g.Epoch) {
		return errShortRead
	}
	if !readOpaqueVec8(s, &g.TreeHash) || !readOpaqueVec8(s, &g.ConfirmedTranscriptHash) {
		return errShortRead
	}
	return readVector16(s, func(s *cryptobyte.String) error {
		var ext Extension
		if err := ext.unmarshal(s); err != nil {
			return err
		}
		g.Extensions = append(g.Extensions, ext)
		return nil
	})
}

// Bytes returns the canonical encoding used wherever GroupContext enters a
// signature or MAC input.
func (g *GroupContext) Bytes() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	g.marshal(b)
	return b.Bytes()
}

func (g *GroupContext) clone() *GroupContext {
	c := *g
	c.GroupID = append([]byte(nil), g.GroupID...)
	c.TreeHash = append([]byte(nil), g.TreeHash...)
	c.ConfirmedTranscriptHash = append([]byte(nil), g.ConfirmedTranscriptHash...)
	c.Extensions = append([]Extension(nil), g.Extensions...)
	return &c
}

func (g *GroupContext) equal(o *GroupContext) bool {
	return g.ProtocolVersion == o.ProtocolVersion &&
		g.Ciphersuite == o.Ciphersuite &&
		bytes.Equal(g.GroupID, o.GroupID) &&
		g.Epoch == o.Epoch &&
		bytes.Equal(g.TreeHash, o.TreeHash) &&
		bytes.Equal(g.ConfirmedTranscriptHash, o.ConfirmedTranscriptHash)
}

// extensionValue returns the raw Data of the first extension of type t, or
// (nil, false) if none is present.
func extensionValue(exts []Extension, t uint16) ([]byte, bool) {
	for _, e := range exts {
		if e.Type == t {
			return e.Data, true
		}
	}
	return nil, false
}

// RequiredCapabilitiesExtension type, per spec section 9 (supplemented
// from the getters/required-capabilities support in the original
// implementation).
const extensionTypeRequiredCapabilities uint16 = 0x0003

// requiredCapabilitiesFrom decodes a group's RequiredCapabilitiesExtension
// from its GroupContext extensions, if present.
func requiredCapabilitiesFrom(exts []Extension) (RequiredCapabilities, bool) {
	data, ok := extensionValue(exts, extensionTypeRequiredCapabilities)
	if !ok {
		return RequiredCapabilities{}, false
	}
	s := cryptobyte.String(data)
	var rc RequiredCapabilities
	if err := readU16Vector(&s, &rc.ProposalTypes); err != nil {
		return RequiredCapabilities{}, false
	}
	if err := readU16Vector(&s, &rc.Extensions); err != nil {
		return RequiredCapabilities{}, false
	}
	var ct uint16
	if !s.ReadUint16(&ct) {
		return RequiredCapabilities{}, false
	}
	rc.CredentialType = CredentialType(ct)
	return rc, true
}
