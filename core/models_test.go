package core

import (
	"testing"
	"time"
)

func TestChecksumFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{name: "text", content: []byte("lecture notes")},
		{name: "empty", content: []byte{}},
		{name: "binary", content: []byte{0x00, 0xff, 0x10, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ChecksumFromContent(tt.content)
			b := ChecksumFromContent(tt.content)
			if a != b {
				t.Errorf("ChecksumFromContent() not deterministic: %s vs %s", a, b)
			}
			if len(a) != 16 {
				t.Errorf("ChecksumFromContent() length = %d, want 16", len(a))
			}
		})
	}
}

func TestChecksumFromContent_Different(t *testing.T) {
	if ChecksumFromContent([]byte("chapter 1")) == ChecksumFromContent([]byte("chapter 2")) {
		t.Errorf("ChecksumFromContent() produced same checksum for different content")
	}
}

func TestNewShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewShortID()
		if len(id) != 8 {
			t.Fatalf("NewShortID() = %q, want 8 characters", id)
		}
		if seen[id] {
			t.Fatalf("NewShortID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestVectorKey(t *testing.T) {
	if got := VectorKey("ab12cd34", 0); got != "ab12cd34_0" {
		t.Errorf("VectorKey() = %q", got)
	}
	if got := VectorKey("doc", 17); got != "doc_17" {
		t.Errorf("VectorKey() = %q", got)
	}
}

func TestConversationRecord_Summary(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	record := &ConversationRecord{
		ID: "c0ffee00",
		Messages: []Message{
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}

	s := record.Summary()
	if s.ID != "c0ffee00" || s.MessageCount != 2 {
		t.Errorf("Summary() = %+v", s)
	}
	if !s.CreatedAt.Equal(created) || !s.UpdatedAt.Equal(updated) {
		t.Errorf("Summary() timestamps = %v / %v", s.CreatedAt, s.UpdatedAt)
	}
}

func TestMode_Valid(t *testing.T) {
	for _, m := range Modes {
		if !m.Valid() {
			t.Errorf("Mode(%q).Valid() = false", m)
		}
	}
	if Mode("essay").Valid() {
		t.Errorf("Mode(essay).Valid() = true")
	}
}
