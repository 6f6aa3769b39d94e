package testutil

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeighted(t *testing.T) {
	rndm := rand.New(rand.NewSource(7))
	picker := NewWeighted(1, 3)

	counts := [2]int{}
	for range 4000 {
		counts[picker.Pick(rndm)]++
	}
	require.InDelta(t, 1000, counts[0], 150)
	require.InDelta(t, 3000, counts[1], 150)

	require.Equal(t, 0, NewWeighted(5).Pick(rndm))
	require.Panics(t, func() { NewWeighted() })
	require.Panics(t, func() { NewWeighted(1, 0) })
}

func TestCaseNumber(t *testing.T) {
	rndm := rand.New(rand.NewSource(7))
	for range 100 {
		require.Regexp(t, `^[A-Z]{2,4}/[0-9]+/[0-9]{4}$`, CaseNumber(rndm))
	}
	require.Regexp(t, `^[a-z]{9}$`, Letters(rndm, 9))
}
