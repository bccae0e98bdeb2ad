package inspect

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// scanFixture walks the standard tree into a list file and returns its path.
func scanFixture(t *testing.T) string {
	t.Helper()
	root := buildTree(t)
	fl := newTestList(t)

	var buf bytes.Buffer
	if _, err := Walk(root, &buf, fl); err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if err := fl.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	return fl.Path()
}

func TestScanReturnsMatchesInListOrder(t *testing.T) {
	listPath := scanFixture(t)

	matches, err := Scan(listPath, "hello")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %v, want 2 entries", matches)
	}
	if filepath.Base(matches[0]) != "a.txt" {
		t.Errorf("matches[0] = %q, want a.txt", matches[0])
	}
	if filepath.Base(matches[1]) != "c.txt" {
		t.Errorf("matches[1] = %q, want c.txt", matches[1])
	}
}

func TestScanNoMatches(t *testing.T) {
	listPath := scanFixture(t)

	matches, err := Scan(listPath, "xyz")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want none", matches)
	}
}

func TestScanSkipsUnreadableEntries(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	writeFile(t, good, "needle here")

	listPath := filepath.Join(dir, "list.txt")
	contents := filepath.Join(dir, "missing.txt") + "\n" + good + "\n"
	if err := os.WriteFile(listPath, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	matches, err := Scan(listPath, "needle")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(matches) != 1 || matches[0] != good {
		t.Errorf("matches = %v, want [%s]", matches, good)
	}
}

func TestScanMissingListFails(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent.txt"), "x")
	if err == nil {
		t.Fatal("Scan succeeded on missing list, want error")
	}
}

func TestScanBinaryContents(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(bin, []byte{0x00, 'n', 'e', 'e', 'd', 'l', 'e', 0xFF}, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	listPath := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(listPath, []byte(bin+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	matches, err := Scan(listPath, "needle")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %v, want the binary file", matches)
	}
}
