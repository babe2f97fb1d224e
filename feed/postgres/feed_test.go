package postgres

import (
	"testing"

	"github.com/courseflow/class-sync/classsync"
)

func TestDecodeEvent(t *testing.T) {
	payload := `{
		"event_type": "update",
		"collection": "content",
		"new": {"id": "content-1", "title": "Fractions"},
		"old": {"id": "content-1", "title": "Fraction"}
	}`

	event, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if event.Type != classsync.ChangeUpdate {
		t.Errorf("type = %s, want update", event.Type)
	}
	if event.Collection != "content" {
		t.Errorf("collection = %s, want content", event.Collection)
	}
	if event.New["id"] != "content-1" {
		t.Errorf("new.id = %v", event.New["id"])
	}
	if event.Old["title"] != "Fraction" {
		t.Errorf("old.title = %v", event.Old["title"])
	}
}

func TestDecodeEvent_InsertWithoutOld(t *testing.T) {
	payload := `{"event_type": "insert", "collection": "class_groups", "new": {"id": "g1", "auto_sync_enabled": true}}`

	event, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if event.Type != classsync.ChangeInsert {
		t.Errorf("type = %s, want insert", event.Type)
	}
	if event.Old != nil {
		t.Errorf("old should be nil for inserts, got %v", event.Old)
	}
	if v, ok := event.New["auto_sync_enabled"].(bool); !ok || !v {
		t.Errorf("auto_sync_enabled = %v", event.New["auto_sync_enabled"])
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"event_type":`},
		{"missing event type", `{"collection": "content"}`},
		{"empty payload", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeEvent(tt.payload); err == nil {
				t.Fatalf("expected error for %q", tt.payload)
			}
		})
	}
}

func TestNewFeed_RequiresConninfo(t *testing.T) {
	if _, err := NewFeed(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}
