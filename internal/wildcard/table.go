package wildcard

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the extension of wildcard list files.
const Ext = ".txt"

// Table maps an uppercased tag to its candidates. It is read-only once built.
type Table map[string][]string

// LoadError reports a wildcard source that could not be read.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("wildcard: load %q: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Lookup returns the candidates for tag, case-insensitively.
func (t Table) Lookup(tag string) ([]string, bool) {
	c, ok := t[strings.ToUpper(tag)]
	return c, ok
}

// Tags returns the table keys in sorted order.
func (t Table) Tags() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load reads every *.txt file in dir. The file name without extension becomes
// the tag; every non-blank trimmed line becomes a candidate. Files without
// candidates stay in the table with an empty list.
func Load(dir string) (Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Err: err}
	}
	t := Table{}
	for _, e := range entries {
		// Only a lowercase .txt suffix counts; NOTES.TXT is skipped.
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		lines, err := readLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, &LoadError{Dir: dir, Err: err}
		}
		key := strings.ToUpper(strings.TrimSuffix(e.Name(), Ext))
		t[key] = lines
	}
	return t, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return lines, nil
}
