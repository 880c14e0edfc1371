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
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// The wire format is TLS presentation-language style: big-endian fixed
// width integers, and variable-length vectors prefixed with a length
// field sized to the vector's maximum. Everything that enters a signature
// or a MAC (GroupContext, FramedContentTBS, the persisted PublicGroup
// layout) goes through these helpers so that two honest implementations
// produce byte-identical output.

func writeOpaqueVec16(b *cryptobyte.Builder, data []byte) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(data)
	})
}

func readOpaqueVec16(s *cryptobyte.String, out *[]byte) bool {
	return s.ReadUint16LengthPrefixed((*cryptobyte.String)(out))
}

func writeOpaqueVec8(b *cryptobyte.Builder, data []byte) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(data)
	})
}

func readOpaqueVec8(s *cryptobyte.String, out *[]byte) bool {
	return s.ReadUint8LengthPrefixed((*cryptobyte.String)(out))
}

// writeVector16 writes a uint16-length-prefixed vector of n elements, each
// encoded by write.
func writeVector16(b *cryptobyte.Builder, n int, write func(b *cryptobyte.Builder, i int)) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for i := 0; i < n; i++ {
			write(b, i)
		}
	})
}

// readVector16 reads a uint16-length-prefixed vector and invokes read for
// every remaining element in the inner cryptobyte.String.
func readVector16(s *cryptobyte.String, read func(s *cryptobyte.String) error) error {
	var inner cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&inner) {
		return io.ErrUnexpectedEOF
	}
	for !inner.Empty() {
		if err := read(&inner); err != nil {
			return err
		}
	}
	return nil
}

type marshaler interface {
	marshal(b *cryptobyte.Builder)
}

type unmarshaler interface {
	unmarshal(s *cryptobyte.String) error
}

func marshal(m marshaler) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	m.marshal(b)
	return b.Bytes()
}

func unmarshal(data []byte, u unmarshaler) error {
	s := cryptobyte.String(data)
	if err := u.unmarshal(&s); err != nil {
		return err
	}
	if !s.Empty() {
		return io.ErrUnexpectedEOF
	}
	return nil
}
