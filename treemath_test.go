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
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/davecgh/go-spew/spew"
)

// treeShape is a quick.Generator-friendly (n, x) pair: n is coerced to a
// small positive leaf count, x to a node index within that tree's width.
type treeShape struct {
	n uint32
	x uint32
}

func (treeShape) Generate(r *rand.Rand, size int) reflect.Value {
	n := uint32(r.Int63())%64 + 1
	x := uint32(r.Int63()) % nodeWidth(n)
	return reflect.ValueOf(treeShape{n: n, x: x})
}

// runDirectPathEndsAtRootBool coerces directPathEndsAtRoot's error result to
// a bool, for use in quick.Check.
func runDirectPathEndsAtRootBool(s treeShape) bool {
	return directPathEndsAtRoot(s) == nil
}

// directPathEndsAtRoot checks the invariant every direct path must satisfy:
// it is non-decreasing in level and its last element is the tree's root.
func directPathEndsAtRoot(s treeShape) error {
	path := directPath(nodeToLeaf(s.x), s.n)
	r := root(s.n)
	if isLeafNode(s.x) {
		if len(path) == 0 {
			if s.n != 1 {
				return fmt.Errorf("leaf %d has empty direct path in a tree of %d leaves", s.x, s.n)
			}
			return nil
		}
		if path[len(path)-1] != r {
			return fmt.Errorf("direct path of leaf %d does not end at root %d: %v", s.x, r, path)
		}
		prevLevel := uint64(0)
		for _, a := range path {
			l := level(a)
			if l < prevLevel {
				return fmt.Errorf("direct path of leaf %d is not non-decreasing in level: %v", s.x, path)
			}
			prevLevel = l
		}
	}
	return nil
}

func TestDirectPathEndsAtRoot(t *testing.T) {
	t.Parallel()

	if err := quick.Check(runDirectPathEndsAtRootBool, nil); err != nil {
		if cerr, ok := err.(*quick.CheckError); ok {
			t.Fatalf("iteration %d failed: %s", cerr.Count, spew.Sdump(cerr.In))
		}
		t.Fatal(err)
	}
}

// runCopathMatchesDirectPathLengthBool coerces the length-parity invariant
// between copath and directPath to a bool, for use in quick.Check.
func runCopathMatchesDirectPathLengthBool(s treeShape) bool {
	if !isLeafNode(s.x) {
		return true
	}
	l := nodeToLeaf(s.x)
	return len(copath(l, s.n)) == len(directPath(l, s.n))
}

func TestCopathMatchesDirectPathLength(t *testing.T) {
	t.Parallel()

	if err := quick.Check(runCopathMatchesDirectPathLengthBool, nil); err != nil {
		if cerr, ok := err.(*quick.CheckError); ok {
			t.Fatalf("iteration %d failed: %s", cerr.Count, spew.Sdump(cerr.In))
		}
		t.Fatal(err)
	}
}

// runSiblingOfNeverReturnsSelfBool checks that, for every non-root node,
// siblingOf never points a node back at itself.
func runSiblingOfNeverReturnsSelfBool(s treeShape) bool {
	if s.x == root(s.n) {
		return true
	}
	sib := siblingOf(s.x, s.n)
	return sib != s.x
}

func TestSiblingOfNeverReturnsSelf(t *testing.T) {
	t.Parallel()

	if err := quick.Check(runSiblingOfNeverReturnsSelfBool, nil); err != nil {
		if cerr, ok := err.(*quick.CheckError); ok {
			t.Fatalf("iteration %d failed: %s", cerr.Count, spew.Sdump(cerr.In))
		}
		t.Fatal(err)
	}
}

func TestCommonAncestorOfSelfIsLeaf(t *testing.T) {
	t.Parallel()

	for n := uint32(1); n < 32; n++ {
		for l := LeafIndex(0); uint32(l) < n; l++ {
			if got := commonAncestor(l, l, n); got != leafToNode(l) {
				t.Fatalf("commonAncestor(%d, %d, %d) = %d, want %d", l, l, n, got, leafToNode(l))
			}
		}
	}
}

func TestDirectPathLengthGrowsWithTreeSize(t *testing.T) {
	t.Parallel()

	// A one-leaf tree's only member has an empty direct path; past that,
	// every leaf's direct path reaches the root by construction.
	if got := directPath(0, 1); len(got) != 0 {
		t.Fatalf("directPath(0, 1) = %v, want empty", got)
	}
	if got := directPath(0, 2); len(got) != 1 {
		t.Fatalf("directPath(0, 2) = %v, want length 1", got)
	}
	if got := directPath(0, 2); got[0] != root(2) {
		t.Fatalf("directPath(0, 2) = %v, want [%d]", got, root(2))
	}
}
