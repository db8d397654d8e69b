package store

import (
	"encoding/json"
	"testing"

	"github.com/surveydesk/surveydesk/internal/models"
)

func TestMemoryStoreUnknownCollectionIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Read("nope")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %d records", len(got))
	}
}

func TestMemoryStoreWriteReplacesCollection(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Write("c", map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`2`),
	}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := s.Write("c", map[string]json.RawMessage{"b": json.RawMessage(`3`)}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	got, err := s.Read("c")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(got) != 1 || string(got["b"]) != "3" {
		t.Fatalf("expected replaced collection {b:3}, got %v", got)
	}
}

func TestMemoryStoreReadReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Write("c", map[string]json.RawMessage{"a": json.RawMessage(`"x"`)}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	first, _ := s.Read("c")
	first["a"][1] = 'y'
	delete(first, "a")
	second, _ := s.Read("c")
	if string(second["a"]) != `"x"` {
		t.Fatalf("store state mutated through returned map: %s", second["a"])
	}
}

func TestTypedCodecRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	users := map[string]models.User{
		"admin": {ID: "admin", Password: "admin123", Role: models.RoleAdmin},
		"alice": {ID: "alice", Password: "pw1", Role: models.RoleUser},
	}
	if err := WriteUsers(s, users); err != nil {
		t.Fatalf("WriteUsers returned error: %v", err)
	}
	got, err := ReadUsers(s)
	if err != nil {
		t.Fatalf("ReadUsers returned error: %v", err)
	}
	if len(got) != 2 || got["alice"].Role != models.RoleUser || got["admin"].Password != "admin123" {
		t.Fatalf("unexpected users after round trip: %+v", got)
	}

	key := models.AssignmentKey("s1", "alice")
	assignments := map[string]models.Assignment{
		key: {SurveyID: "s1", UserID: "alice", Answers: map[int]string{1: "5"}},
	}
	if err := WriteAssignments(s, assignments); err != nil {
		t.Fatalf("WriteAssignments returned error: %v", err)
	}
	back, err := ReadAssignments(s)
	if err != nil {
		t.Fatalf("ReadAssignments returned error: %v", err)
	}
	if back[key].Answers[1] != "5" || back[key].Completed {
		t.Fatalf("unexpected assignment after round trip: %+v", back[key])
	}
}

func TestCodecReportsCorruptRecord(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Write(CollectionSurveys, map[string]json.RawMessage{
		"bad": json.RawMessage(`{not json`),
	}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := ReadSurveys(s); err == nil {
		t.Fatalf("expected decode error for corrupt survey record")
	}
}
