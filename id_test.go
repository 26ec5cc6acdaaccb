package smartermodel

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	time.Sleep(time.Millisecond)
	id2 := NewID()

	if !IsValidID(id1) || !IsValidID(id2) {
		t.Fatalf("NewID generated invalid ids: %s, %s", id1, id2)
	}
	if id1 == id2 {
		t.Error("NewID generated duplicate ids")
	}
	if id1 > id2 {
		t.Error("ids should sort by creation time")
	}
	if parsed := uuid.MustParse(id1); parsed.Version() != 7 {
		t.Errorf("version = %d, want 7", parsed.Version())
	}
}

func TestIsValidID(t *testing.T) {
	if IsValidID("not-a-uuid") {
		t.Error("IsValidID accepted garbage")
	}
	if IsValidID("") {
		t.Error("IsValidID accepted the empty string")
	}
}
