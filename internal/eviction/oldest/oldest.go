package oldest

import (
	"slices"
	"strings"

	"github.com/lucasew/dircap/internal/eviction"
)

// Oldest implements the eviction.Strategy interface by picking the file
// with the earliest modification time. Equal times fall back to path order.
type Oldest struct{}

func init() {
	eviction.Register("oldest", func() eviction.Strategy {
		return New()
	})
}

func New() *Oldest {
	return &Oldest{}
}

func (o *Oldest) Victim(candidates []eviction.Candidate) (eviction.Candidate, bool) {
	if len(candidates) == 0 {
		return eviction.Candidate{}, false
	}
	return slices.MinFunc(candidates, compare), true
}

func compare(a, b eviction.Candidate) int {
	if c := a.ModTime.Compare(b.ModTime); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}
