package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/store"
)

type engineFixture struct {
	store   *store.MemoryStore
	reg     *UserRegistry
	catalog *SurveyCatalog
	engine  *AssignmentEngine
}

func newEngineFixture(t *testing.T, userIDs ...string) *engineFixture {
	t.Helper()
	ms := store.NewMemoryStore()
	reg := NewUserRegistry(ms, SchemePlain)
	if err := reg.EnsureAdmin("admin123"); err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	for _, id := range userIDs {
		if _, err := reg.AddUser(id, "pw"); err != nil {
			t.Fatalf("AddUser(%s) returned error: %v", id, err)
		}
	}
	catalog := NewSurveyCatalog(ms)
	engine := NewAssignmentEngine(ms)
	engine.now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	return &engineFixture{store: ms, reg: reg, catalog: catalog, engine: engine}
}

func (f *engineFixture) mustSurvey(t *testing.T, name string) *models.Survey {
	t.Helper()
	sv, err := f.catalog.CreateSurvey(name, []QuestionInput{
		{Type: models.QuestionRating, Text: "Rate it"},
		{Type: models.QuestionText, Text: "Comments"},
	})
	if err != nil {
		t.Fatalf("CreateSurvey returned error: %v", err)
	}
	return sv
}

func TestAssignSurveyOpenExclusivity(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	s2 := f.mustSurvey(t, "S2")

	a, err := f.engine.AssignSurvey(s1.ID, "alice")
	if err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	if a.Completed || len(a.Answers) != 0 {
		t.Fatalf("new assignment should be open and empty: %+v", a)
	}

	// Same survey again while open: blocked.
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); !HasCode(err, ErrorConflict) {
		t.Fatalf("expected conflict for re-assign while open, got %v", err)
	}
	// Different survey while open: still blocked, the invariant is user-scoped.
	if _, err := f.engine.AssignSurvey(s2.ID, "alice"); !HasCode(err, ErrorConflict) {
		t.Fatalf("expected conflict for second survey while open, got %v", err)
	}

	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "4"}); err != nil {
		t.Fatalf("SubmitSurvey returned error: %v", err)
	}
	// Completed assignment no longer blocks a new one.
	if _, err := f.engine.AssignSurvey(s2.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey after completion returned error: %v", err)
	}
}

func TestAssignSurveyReferentialChecks(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "ghost"); !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found for unknown user, got %v", err)
	}
	if _, err := f.engine.AssignSurvey("ghost", "alice"); !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found for unknown survey, got %v", err)
	}
}

func TestSubmitRequiresAssignment(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")

	err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "3"})
	if !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found for unassigned submit, got %v", err)
	}
	assignments, _ := store.ReadAssignments(f.store)
	if len(assignments) != 0 {
		t.Fatalf("failed submit must not mutate state: %+v", assignments)
	}
}

func TestSubmitReplacesAnswersWholesale(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	// Partial answer set is accepted as-is.
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{2: "fine"}); err != nil {
		t.Fatalf("SubmitSurvey returned error: %v", err)
	}
	assignments, _ := store.ReadAssignments(f.store)
	a := assignments[models.AssignmentKey(s1.ID, "alice")]
	if !a.Completed {
		t.Fatalf("expected completed=true after submit")
	}
	if len(a.Answers) != 1 || a.Answers[2] != "fine" {
		t.Fatalf("answers must equal exactly the supplied mapping: %+v", a.Answers)
	}

	// Resubmission overwrites; no merge with the prior set.
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "5"}); err != nil {
		t.Fatalf("resubmit returned error: %v", err)
	}
	assignments, _ = store.ReadAssignments(f.store)
	a = assignments[models.AssignmentKey(s1.ID, "alice")]
	if len(a.Answers) != 1 || a.Answers[1] != "5" {
		t.Fatalf("resubmit must replace answers: %+v", a.Answers)
	}
}

func TestSubmitValidatesAnswerValues(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	cases := map[string]map[int]string{
		"rating below range":  {1: "0"},
		"rating above range":  {1: "6"},
		"rating not numeric":  {1: "great"},
		"unknown question id": {99: "5"},
	}
	for name, answers := range cases {
		if err := f.engine.SubmitSurvey(s1.ID, "alice", answers); !HasCode(err, ErrorInvalid) {
			t.Fatalf("%s: expected invalid, got %v", name, err)
		}
	}
	// Still open after all the rejected submissions.
	assignments, _ := store.ReadAssignments(f.store)
	if a := assignments[models.AssignmentKey(s1.ID, "alice")]; a.Completed {
		t.Fatalf("rejected submit must not complete the assignment")
	}
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "5", 2: "text"}); err != nil {
		t.Fatalf("valid submit returned error: %v", err)
	}
}

func TestReassignResetsAnswers(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "2"}); err != nil {
		t.Fatalf("SubmitSurvey returned error: %v", err)
	}
	a, err := f.engine.AssignSurvey(s1.ID, "alice")
	if err != nil {
		t.Fatalf("re-assign after completion returned error: %v", err)
	}
	if a.Completed || len(a.Answers) != 0 {
		t.Fatalf("re-assignment must reset to open with empty answers: %+v", a)
	}
}

func TestReassignArchivesWhenRetainHistory(t *testing.T) {
	f := newEngineFixture(t, "alice")
	f.engine.RetainHistory = true
	f.engine.idGen = func() string { return "hist1" }
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "2"}); err != nil {
		t.Fatalf("SubmitSurvey returned error: %v", err)
	}
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("re-assign returned error: %v", err)
	}
	history, err := f.store.Read(store.CollectionHistory)
	if err != nil {
		t.Fatalf("Read history returned error: %v", err)
	}
	if len(history) != 1 || history["hist1"] == nil {
		t.Fatalf("expected one archived record, got %v", history)
	}
}

func TestUserSurveysJoin(t *testing.T) {
	f := newEngineFixture(t, "alice", "bob")
	s1 := f.mustSurvey(t, "S1")
	s2 := f.mustSurvey(t, "S2")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	if err := f.engine.SubmitSurvey(s1.ID, "alice", map[int]string{1: "3"}); err != nil {
		t.Fatalf("SubmitSurvey returned error: %v", err)
	}
	if _, err := f.engine.AssignSurvey(s2.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	if _, err := f.engine.AssignSurvey(s1.ID, "bob"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}

	got, err := f.engine.UserSurveys("alice")
	if err != nil {
		t.Fatalf("UserSurveys returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments for alice, got %d", len(got))
	}
	for _, us := range got {
		if us.Assignment.UserID != "alice" {
			t.Fatalf("foreign assignment in listing: %+v", us.Assignment)
		}
		if us.Survey == nil || us.Survey.ID != us.Assignment.SurveyID {
			t.Fatalf("join did not resolve survey: %+v", us)
		}
	}
}

func TestUserSurveysToleratesDanglingSurvey(t *testing.T) {
	f := newEngineFixture(t, "alice")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	// Simulate a dangling reference by clearing the surveys collection.
	if err := store.WriteSurveys(f.store, map[string]models.Survey{}); err != nil {
		t.Fatalf("WriteSurveys returned error: %v", err)
	}
	got, err := f.engine.UserSurveys("alice")
	if err != nil {
		t.Fatalf("UserSurveys returned error: %v", err)
	}
	if len(got) != 1 || got[0].Survey != nil {
		t.Fatalf("dangling survey must yield nil Survey, got %+v", got)
	}
}

func TestAvailableUsersMatchesAssignGuard(t *testing.T) {
	f := newEngineFixture(t, "alice", "bob")
	s1 := f.mustSurvey(t, "S1")
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); err != nil {
		t.Fatalf("AssignSurvey returned error: %v", err)
	}
	all, err := f.reg.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	avail, err := f.engine.AvailableUsers(all)
	if err != nil {
		t.Fatalf("AvailableUsers returned error: %v", err)
	}
	if len(avail) != 1 || avail[0] != "bob" {
		t.Fatalf("expected only bob available, got %v", avail)
	}
	// A listed user can be assigned; an unlisted one cannot.
	if _, err := f.engine.AssignSurvey(s1.ID, "bob"); err != nil {
		t.Fatalf("AssignSurvey for available user returned error: %v", err)
	}
	if _, err := f.engine.AssignSurvey(s1.ID, "alice"); !HasCode(err, ErrorConflict) {
		t.Fatalf("expected conflict for unavailable user, got %v", err)
	}
}

// Randomized assign/submit sequences must never leave a user with two open
// assignments, and availability must always agree with the guard.
func TestOpenExclusivityUnderRandomSequences(t *testing.T) {
	users := []string{"u1", "u2", "u3"}
	f := newEngineFixture(t, users...)
	surveys := []*models.Survey{
		f.mustSurvey(t, "S1"),
		f.mustSurvey(t, "S2"),
		f.mustSurvey(t, "S3"),
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		uid := users[rng.Intn(len(users))]
		sid := surveys[rng.Intn(len(surveys))].ID
		if rng.Intn(2) == 0 {
			_, err := f.engine.AssignSurvey(sid, uid)
			if err != nil && !HasCode(err, ErrorConflict) {
				t.Fatalf("unexpected assign error: %v", err)
			}
		} else {
			err := f.engine.SubmitSurvey(sid, uid, map[int]string{1: "3"})
			if err != nil && !HasCode(err, ErrorNotFound) {
				t.Fatalf("unexpected submit error: %v", err)
			}
		}

		assignments, err := store.ReadAssignments(f.store)
		if err != nil {
			t.Fatalf("ReadAssignments returned error: %v", err)
		}
		openCount := map[string]int{}
		for _, a := range assignments {
			if !a.Completed {
				openCount[a.UserID]++
			}
		}
		for uid, n := range openCount {
			if n > 1 {
				t.Fatalf("step %d: user %s has %d open assignments", i, uid, n)
			}
		}
		avail, err := f.engine.AvailableUsers(users)
		if err != nil {
			t.Fatalf("AvailableUsers returned error: %v", err)
		}
		for _, id := range avail {
			if openCount[id] > 0 {
				t.Fatalf("step %d: available listing contains user %s with open assignment", i, id)
			}
		}
	}
}
