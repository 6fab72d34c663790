package wildcard

import (
	"errors"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandWithoutTagsIsIdentity(t *testing.T) {
	table := Table{"X": {"a"}}
	for _, in := range []string{"", "plain text", "a ] b", "unterminated [tag", "empty [] brackets"} {
		assert.Equal(t, in, Expand(in, table, 5, rand.New(rand.NewSource(1))))
	}
}

func TestExpandChoosesCandidate(t *testing.T) {
	table := Table{"X": {"a", "b"}}
	rng := rand.New(rand.NewSource(42))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := Expand("[X]", table, 5, rng)
		require.Contains(t, []string{"a", "b"}, got)
		seen[got] = true
	}
	assert.Len(t, seen, 2, "both candidates are reachable")
}

func TestExpandIsCaseInsensitive(t *testing.T) {
	table := Table{"COLOR": {"red"}}
	assert.Equal(t, "red red", Expand("[color] [Color]", table, 5, nil))
}

func TestExpandUnknownTagPassesThrough(t *testing.T) {
	table := Table{"X": {"a"}}
	assert.Equal(t, "keep [ZZZ] and a", Expand("keep [ZZZ] and [X]", table, 5, nil))
}

func TestExpandEmptyCandidateListFailsClosed(t *testing.T) {
	table := Table{"EMPTY": {}}
	assert.Equal(t, "x [EMPTY] y", Expand("x [EMPTY] y", table, 5, nil))
}

func TestExpandDepthZeroReturnsInput(t *testing.T) {
	table := Table{"X": {"a"}}
	assert.Equal(t, "[X]", Expand("[X]", table, 0, nil))
	assert.Equal(t, "[X]", Expand("[X]", table, -1, nil))
}

func TestExpandRecursesIntoCandidates(t *testing.T) {
	table := Table{
		"CHAR":  {"[STYLE] knight"},
		"STYLE": {"pixel"},
	}
	assert.Equal(t, "a pixel knight", Expand("a [CHAR]", table, 5, nil))
	// Depth 1 substitutes once and leaves the nested tag literal.
	assert.Equal(t, "a [STYLE] knight", Expand("a [CHAR]", table, 1, nil))
}

func TestExpandSelfReferenceTerminates(t *testing.T) {
	table := Table{"SELF": {"[SELF]"}}
	assert.Equal(t, "[SELF]", Expand("[SELF]", table, 5, nil))

	table = Table{"SELF": {"x[SELF]"}}
	assert.Equal(t, "xxx[SELF]", Expand("[SELF]", table, 3, nil))
}

func TestExpandSpansAreIndependent(t *testing.T) {
	table := Table{"X": {"a", "b"}}
	rng := rand.New(rand.NewSource(7))
	mixed := false
	for i := 0; i < 200 && !mixed; i++ {
		parts := strings.Split(Expand("[X] [X]", table, 5, rng), " ")
		mixed = parts[0] != parts[1]
	}
	assert.True(t, mixed, "each span draws its own candidate")
}

func TestExpandSeededIsReproducible(t *testing.T) {
	table := Table{"X": {"a", "b", "c", "d"}}
	a := Expand("[X][X][X][X]", table, 5, rand.New(rand.NewSource(99)))
	b := Expand("[X][X][X][X]", table, 5, rand.New(rand.NewSource(99)))
	assert.Equal(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^[abcd]{4}$`), a)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.txt"), []byte("  pixel art \n\n watercolor\n   \n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Empty.txt"), []byte("\n \n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SHOUT.TXT"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	table, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"EMPTY", "STYLE"}, table.Tags())
	assert.Equal(t, []string{"pixel art", "watercolor"}, table["STYLE"])

	c, ok := table.Lookup("empty")
	assert.True(t, ok)
	assert.Empty(t, c)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
