// Package testutil generates the random inputs of randomized tests, always
// from a seeded source so failures can be replayed.
package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Weighted picks indexes with probability proportional to their weight,
// NewWeighted(7, 2, 1).Pick returns 0 seven times out of ten.
type Weighted struct {
	cumulative []int
}

// NewWeighted panics when weights is empty or holds a weight below 1.
func NewWeighted(weights ...int) Weighted {
	if len(weights) == 0 {
		panic("testutil: no weights")
	}
	cumulative := make([]int, len(weights))
	total := 0
	for i, w := range weights {
		if w < 1 {
			panic(fmt.Sprintf("testutil: weight %d of index %d is below 1", w, i))
		}
		total += w
		cumulative[i] = total
	}
	return Weighted{cumulative: cumulative}
}

func (w Weighted) Pick(rndm *rand.Rand) int {
	total := w.cumulative[len(w.cumulative)-1]
	return sort.SearchInts(w.cumulative, rndm.Intn(total)+1)
}

// Letters returns n random lowercase ascii letters.
func Letters(rndm *rand.Rand, n int) string {
	var out strings.Builder
	out.Grow(n)
	for range n {
		out.WriteByte(byte('a' + rndm.Intn(26)))
	}
	return out.String()
}

// CaseNumber returns a case number shaped like the ones portals serve,
// "CRLP/4821/2019".
func CaseNumber(rndm *rand.Rand) string {
	caseType := strings.ToUpper(Letters(rndm, 2+rndm.Intn(3)))
	return fmt.Sprintf("%s/%d/%d", caseType, 1+rndm.Intn(99999), 1990+rndm.Intn(36))
}
