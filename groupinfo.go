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

// GroupInfo is the signed advertisement a committer can publish so a new
// member may join a group without first observing its commit history: the
// group context it was issued against, the confirmation tag of that epoch,
// any extensions travelling outside the context proper (e.g. a ratchet_tree
// or external_pub extension), which leaf signed it, and the signature
// itself.
type GroupInfo struct {
	GroupContext    *GroupContext
	Extensions      []Extension
	ConfirmationTag []byte
	Signer          LeafIndex
	Signature       []byte
}

func (gi *GroupInfo) tbs(b *cryptobyte.Builder) {
	gi.GroupContext.marshal(b)
	writeVector16(b, len(gi.Extensions), func(b *cryptobyte.Builder, i int) { gi.Extensions[i].marshal(b) })
	writeOpaqueVec8(b, gi.ConfirmationTag)
	b.AddUint32(uint32(gi.Signer))
}

func (gi *GroupInfo) tbsBytes() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	gi.tbs(b)
	return b.Bytes()
}

func (gi *GroupInfo) marshal(b *cryptobyte.Builder) {
	gi.tbs(b)
	writeOpaqueVec16(b, gi.Signature)
}

func (gi *GroupInfo) unmarshal(s *cryptobyte.String) error {
	*gi = GroupInfo{GroupContext: &GroupContext{}}
	if err := gi.GroupContext.unmarshal(s); err != nil {
		return err
	}
	if err := readVector16(s, func(s *cryptobyte.String) error {
		var ext Extension
		if err := ext.unmarshal(s); err != nil {
			return err
		}
		gi.Extensions = append(gi.Extensions, ext)
		return nil
	}); err != nil {
		return err
	}
	if !readOpaqueVec8(s, &gi.ConfirmationTag) {
		return errShortRead
	}
	var signer uint32
	if !s.ReadUint32(&signer) {
		return errShortRead
	}
	gi.Signer = LeafIndex(signer)
	if !readOpaqueVec16(s, &gi.Signature) {
		return errShortRead
	}
	return nil
}

// Sign computes gi.Signature over the group info's TBS content using the
// signer leaf's own signature key.
func (gi *GroupInfo) Sign(p mcrypto.Provider, scheme mcrypto.SignatureScheme, sk []byte) error {
	tbs, err := gi.tbsBytes()
	if err != nil {
		return libraryError("GroupInfo.Sign", err)
	}
	sig, err := p.Sign(scheme, sk, tbs)
	if err != nil {
		return err
	}
	gi.Signature = sig
	return nil
}

// VerifiableGroupInfo is a GroupInfo that has not yet had its signature
// checked against a tree: From­External needs to look the signer's leaf up
// in the accompanying node list before it has a signature public key to
// verify against, so the two steps (lookup, then verify) are kept distinct
// rather than folded into a single constructor.
type VerifiableGroupInfo struct {
	GroupInfo
}

// verify checks the wrapped GroupInfo's signature against signerKey.
func (v *VerifiableGroupInfo) verify(p mcrypto.Provider, scheme mcrypto.SignatureScheme, signerKey []byte) error {
	tbs, err := v.tbsBytes()
	if err != nil {
		return libraryError("VerifiableGroupInfo.verify", err)
	}
	if err := p.Verify(scheme, signerKey, tbs, v.Signature); err != nil {
		return ErrInvalidGroupInfoSig
	}
	return nil
}
