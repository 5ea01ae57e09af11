package prompt

import "math/rand/v2"

// Selector hands out prompts without repeating one until every entry in
// the catalog has been used. A Selector lives as long as one session.
type Selector struct {
	catalog Catalog
	used    map[string]bool
	rng     *rand.Rand
}

// NewSelector returns a Selector over catalog. A nil rng falls back to a
// randomly seeded source.
func NewSelector(catalog Catalog, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		catalog: catalog,
		used:    make(map[string]bool, len(catalog)),
		rng:     rng,
	}
}

// Next picks uniformly among the unused prompts, clearing the used-set
// first when it covers the whole catalog. ok is false only when the
// catalog is empty.
func (s *Selector) Next() (p Prompt, ok bool) {
	if len(s.catalog) == 0 {
		return Prompt{}, false
	}

	candidates := s.unused()
	if len(candidates) == 0 {
		s.Reset()
		candidates = s.unused()
	}

	p = candidates[s.rng.IntN(len(candidates))]
	s.used[p.ID] = true
	return p, true
}

func (s *Selector) Reset() { clear(s.used) }

// Remaining reports how many prompts can still be drawn before a reset.
func (s *Selector) Remaining() int { return len(s.unused()) }

func (s *Selector) unused() []Prompt {
	out := make([]Prompt, 0, len(s.catalog))
	for _, p := range s.catalog {
		if !s.used[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
