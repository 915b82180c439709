package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// LargeTestsEnabled reports whether FLATINDEX_LARGE_TESTS asks for the
// slow, large-dataset tests.
func LargeTestsEnabled() bool {
	v := strings.TrimSpace(os.Getenv("FLATINDEX_LARGE_TESTS"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// WriteDataFile writes raw content to dir/name and returns the path.
func WriteDataFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write data file %s: %v", path, err)
	}
	return path
}

// WriteLines writes each line followed by '\n'.
func WriteLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return WriteDataFile(t, dir, name, sb.String())
}

// RandomLines generates n records of the form "<key>:<i>" with keys drawn
// from a small alphabet so duplicates are common. Every tenth record is
// shorter than keyLength.
func RandomLines(seed int64, n, keyLength int) []string {
	rng := rand.New(rand.NewSource(seed))
	const alphabet = "ABCD"
	lines := make([]string, n)
	for i := range lines {
		if i%10 == 9 {
			lines[i] = strings.Repeat("z", rng.Intn(keyLength))
			continue
		}
		key := make([]byte, keyLength)
		for j := range key {
			key[j] = alphabet[rng.Intn(len(alphabet))]
		}
		lines[i] = fmt.Sprintf("%s:%d", key, i)
	}
	return lines
}

// SortedKeyed returns the lines that have a key, stably sorted by their key.
// Stable order keeps equal keys in data-file order.
func SortedKeyed(lines []string, keyLength int) []string {
	var keyed []string
	for _, l := range lines {
		if len(l) >= keyLength {
			keyed = append(keyed, l)
		}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return keyed[i][:keyLength] < keyed[j][:keyLength]
	})
	return keyed
}

// TempArtifacts lists files in dir that a build leaves only on failure.
func TempArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".spill") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}

// RequireNoTempArtifacts fails the test if dir holds temp or spill files.
// Build lock files are permanent and not counted.
func RequireNoTempArtifacts(t *testing.T, dir string) {
	t.Helper()
	files, err := TempArtifacts(dir)
	if err != nil {
		t.Fatalf("failed to list %s: %v", dir, err)
	}
	if len(files) > 0 {
		t.Fatalf("expected no temporary files in %s, found %v", dir, files)
	}
}
