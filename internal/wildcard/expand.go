package wildcard

import (
	"math/rand"
	"regexp"
)

// tagPattern matches "[...]" with any non-"]" body.
var tagPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// Rand is the random source used to pick candidates. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// Expand replaces every bracketed tag found in table with a random candidate,
// expanding the candidate itself with depth-1. Unknown tags and tags with no
// candidates are left untouched. At depth <= 0 the input is returned as is.
//
// A nil rng uses the package-level math/rand source.
func Expand(template string, table Table, depth int, rng Rand) string {
	if depth <= 0 {
		return template
	}
	if rng == nil {
		rng = globalRand{}
	}
	return tagPattern.ReplaceAllStringFunc(template, func(span string) string {
		candidates, ok := table.Lookup(span[1 : len(span)-1])
		if !ok || len(candidates) == 0 {
			return span
		}
		return Expand(candidates[rng.Intn(len(candidates))], table, depth-1, rng)
	})
}
