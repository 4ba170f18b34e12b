package gsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndSuperset(t *testing.T) {
	a := NewAllocator()
	bitA := a.Alloc()
	bitB := a.Alloc()

	var sigA, sigB Signature
	sigA = sigA.Set(bitA)
	sigB = sigB.Set(bitB)

	join := sigA.Union(sigB)

	taskSig := Signature{}.Set(bitA).Set(bitB)
	assert.True(t, taskSig.IsSupersetOf(join))
	assert.False(t, sigA.IsSupersetOf(join), "sigA alone is not a member of A & B")
}

func TestEqualAndZero(t *testing.T) {
	var z Signature
	assert.True(t, z.IsZero())

	a := NewAllocator()
	s := Signature{}.Set(a.Alloc())
	assert.False(t, s.IsZero())
	assert.True(t, s.Equal(s))
	assert.False(t, s.Equal(z))
}

func TestAllocatorUniqueness(t *testing.T) {
	a := NewAllocator()
	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		b := a.Alloc()
		assert.False(t, seen[b])
		seen[b] = true
	}
}

func TestHashStableAcrossEqualSignatures(t *testing.T) {
	a := NewAllocator()
	bit := a.Alloc()
	s1 := Signature{}.Set(bit)
	s2 := Signature{}.Set(bit)
	assert.Equal(t, s1.Hash(), s2.Hash())
}

func TestUnionOfHighBitsDoesNotPanic(t *testing.T) {
	s := Signature{}.Set(0).Set(200)
	o := Signature{}.Set(64)
	u := s.Union(o)
	assert.True(t, u.IsSupersetOf(Signature{}.Set(0)))
	assert.True(t, u.IsSupersetOf(Signature{}.Set(64)))
	assert.True(t, u.IsSupersetOf(Signature{}.Set(200)))
}
