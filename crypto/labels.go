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

package crypto

// HKDF labels used by the ratchet tree's direct-path secret derivation
// (section 4.A "derive_path_secrets" of the group state machine). These are
// not secret; they're domain-separation strings mixed into the "mls10 "
// prefixed ExpandWithLabel construction.
const (
	LabelPath   = "path"
	LabelNode   = "node"
	LabelCommit = "commit"
)

// ExpandWithLabel implements MLS's KDF.ExpandWithLabel: a length-prefixed,
// domain-separated wrapper around Provider.HkdfExpand. label is prefixed
// with "mls10 " per the wire format; context is the operation-specific
// bound data (often empty for tree secrets).
func ExpandWithLabel(p Provider, alg HashID, secret []byte, label string, context []byte, length int) ([]byte, error) {
	info, err := encodeKdfLabel(label, context, length)
	if err != nil {
		return nil, err
	}
	return p.HkdfExpand(alg, secret, info, length)
}

// encodeKdfLabel builds the canonical KDFLabel structure:
//
//	struct {
//	  uint16 length;
//	  opaque label<V> = "mls10 " + Label;
//	  opaque context<V>;
//	} KDFLabel;
//
// encoded with the same length-prefixed vector rules as the rest of the
// wire format (see the mls package's codec.go).
func encodeKdfLabel(label string, context []byte, length int) ([]byte, error) {
	full := "mls10 " + label
	if len(full) > 255 || len(context) > 0xffff {
		return nil, ErrKdfLabelTooLarge
	}
	out := make([]byte, 0, 2+1+len(full)+2+len(context))
	out = append(out, byte(length>>8), byte(length))
	out = append(out, byte(len(full)))
	out = append(out, full...)
	out = append(out, byte(len(context)>>8), byte(len(context)))
	out = append(out, context...)
	return out, nil
}
