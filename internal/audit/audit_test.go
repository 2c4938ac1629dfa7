package audit

import (
	"testing"
	"time"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("wheelhouse-abc")
	b := Fingerprint("wheelhouse-abc")
	c := Fingerprint("wheelhouse-abd")

	if a != b {
		t.Error("Fingerprint must be deterministic")
	}
	if a == c {
		t.Error("different credentials must not collide")
	}
	if a == "wheelhouse-abc" || len(a) == 0 {
		t.Errorf("Fingerprint(%q) = %q, want an opaque digest", "wheelhouse-abc", a)
	}
}

func TestInMemoryAuditorGetRecent(t *testing.T) {
	auditor := NewInMemoryAuditor()
	for i, id := range []string{"a", "b", "c"} {
		err := auditor.Log(core.AuditEntry{
			ID:     id,
			Time:   time.Now().Add(time.Duration(i) * time.Second),
			Action: "token.mint",
		})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	entries, err := auditor.GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "b" || entries[1].ID != "c" {
		t.Errorf("GetRecent(2) = %v, want the two newest entries", entries)
	}

	entries, err = auditor.GetRecent(10)
	if err != nil || len(entries) != 3 {
		t.Errorf("GetRecent(10) = (%v, %v), want all three entries", entries, err)
	}
}

func TestInMemoryAuditorFind(t *testing.T) {
	auditor := NewInMemoryAuditor()
	for _, e := range []core.AuditEntry{
		{ID: "1", PublisherID: "pub-a", Success: true},
		{ID: "2", PublisherID: "pub-b", Success: false},
		{ID: "3", PublisherID: "pub-a", Success: false},
	} {
		if err := auditor.Log(e); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	entries, err := auditor.Find(func(e core.AuditEntry) bool { return e.PublisherID == "pub-a" }, 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "1" || entries[1].ID != "3" {
		t.Errorf("Find() = %v, want entries 1 and 3", entries)
	}

	entries, err = auditor.Find(func(e core.AuditEntry) bool { return !e.Success }, 1)
	if err != nil || len(entries) != 1 || entries[0].ID != "3" {
		t.Errorf("Find() with limit = (%v, %v), want only the newest failure", entries, err)
	}
}
