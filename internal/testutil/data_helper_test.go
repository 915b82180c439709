package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_LargeTestsEnabled_Parse(t *testing.T) {
	t.Setenv("FLATINDEX_LARGE_TESTS", "true")
	if !LargeTestsEnabled() {
		t.Fatalf("expected true for 'true'")
	}
	t.Setenv("FLATINDEX_LARGE_TESTS", "0")
	if LargeTestsEnabled() {
		t.Fatalf("expected false for '0'")
	}
	t.Setenv("FLATINDEX_LARGE_TESTS", "maybe")
	if LargeTestsEnabled() {
		t.Fatalf("expected false for an unparsable value")
	}
}

func Test_RandomLines_Deterministic(t *testing.T) {
	a := RandomLines(7, 100, 3)
	b := RandomLines(7, 100, 3)
	if len(a) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("line %d differs between runs: %q vs %q", i, a[i], b[i])
		}
	}
	if len(a[9]) >= 3 {
		t.Fatalf("every tenth line should be unkeyed, got %q", a[9])
	}
}

func Test_SortedKeyed(t *testing.T) {
	got := SortedKeyed([]string{"BBB:2", "AAA:1", "X", "AAA:0"}, 3)
	want := []string{"AAA:1", "AAA:0", "BBB:2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func Test_TempArtifacts(t *testing.T) {
	dir := t.TempDir()
	RequireNoTempArtifacts(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "index.tmp"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	files, err := TempArtifacts(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one artifact, got %v", files)
	}
}
