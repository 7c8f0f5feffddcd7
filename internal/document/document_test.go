package document

import (
	"strings"
	"testing"
)

// TestSanitize verifies NUL bytes are replaced with the replacement character.
func TestSanitize(t *testing.T) {
	in := "hello\x00world"
	out := Sanitize(in)

	if strings.ContainsRune(out, 0) {
		t.Error("Sanitized content still contains NUL bytes")
	}
	if out != "hello�world" {
		t.Errorf("Expected replacement character, got %q", out)
	}

	// Clean content passes through untouched
	if Sanitize("clean") != "clean" {
		t.Error("Clean content should not change")
	}
}

// TestHashContent_Deterministic verifies identical sanitized content always
// hashes identically, and distinct content hashes differently.
func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent("The quick brown fox")
	b := HashContent("The quick brown fox")
	if a != b {
		t.Errorf("Same content produced different hashes: %s vs %s", a, b)
	}

	c := HashContent("A different sentence")
	if a == c {
		t.Error("Distinct content produced identical hashes")
	}

	// NUL-carrying content hashes the same as its sanitized form
	if HashContent(Sanitize("abc\x00def")) != HashContent("abc�def") {
		t.Error("Sanitized and pre-sanitized content should hash identically")
	}
}

// TestPrepare verifies id and name derivation from the content hash.
func TestPrepare(t *testing.T) {
	doc := &Document{Content: "some content"}
	doc.Prepare()

	if doc.ContentHash == "" {
		t.Fatal("Prepare did not compute a content hash")
	}
	if doc.ID != doc.ContentHash {
		t.Errorf("Expected ID derived from hash, got %q", doc.ID)
	}
	if doc.Name != doc.ID {
		t.Errorf("Expected Name to default to ID, got %q", doc.Name)
	}

	// Explicit identity survives Prepare
	doc2 := &Document{ID: "d1", Name: "notes", Content: "some content"}
	doc2.Prepare()
	if doc2.ID != "d1" || doc2.Name != "notes" {
		t.Errorf("Prepare overwrote explicit identity: %q/%q", doc2.ID, doc2.Name)
	}
	if doc2.ContentHash != doc.ContentHash {
		t.Error("Same content should hash identically regardless of identity")
	}
}

// TestUsage_UpdateAccess verifies the counter and the bounded score window.
func TestUsage_UpdateAccess(t *testing.T) {
	var u Usage

	u.UpdateAccess(0.9)
	if u.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", u.AccessCount)
	}
	if u.LastAccessed.IsZero() {
		t.Error("LastAccessed not set")
	}
	if len(u.Scores) != 1 || u.Scores[0] != 0.9 {
		t.Errorf("Unexpected scores: %v", u.Scores)
	}

	// Window stays bounded
	for i := 0; i < 25; i++ {
		u.UpdateAccess(float64(i))
	}
	if u.AccessCount != 26 {
		t.Errorf("Expected access count 26, got %d", u.AccessCount)
	}
	if len(u.Scores) != maxScoreWindow {
		t.Errorf("Expected score window of %d, got %d", maxScoreWindow, len(u.Scores))
	}
	if u.Scores[len(u.Scores)-1] != 24 {
		t.Errorf("Expected newest score last, got %v", u.Scores)
	}
}
