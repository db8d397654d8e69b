package services

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/store"
)

// AssignmentEngine owns the assignment state machine. Per (survey, user)
// pair the states are: unassigned -> open (completed=false) -> completed
// (terminal). The central invariant is user-scoped: a user holds at most one
// open assignment across all surveys.
type AssignmentEngine struct {
	mu    sync.Mutex
	store store.RecordStore
	now   func() time.Time
	idGen func() string

	// RetainHistory archives the prior completed record before a
	// re-assignment resets it, instead of silently discarding the answers.
	RetainHistory bool
}

// UserSurvey joins an assignment with its survey. Survey is nil when the
// referenced survey no longer resolves.
type UserSurvey struct {
	Assignment models.Assignment `json:"assignment"`
	Survey     *models.Survey    `json:"survey"`
}

// ArchivedAssignment is a completed record displaced by a re-assignment,
// kept in the assignment_history collection when RetainHistory is on.
type ArchivedAssignment struct {
	models.Assignment
	ArchivedAt time.Time `json:"archived_at"`
}

func NewAssignmentEngine(rs store.RecordStore) *AssignmentEngine {
	return &AssignmentEngine{
		store: rs,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// AssignSurvey opens an assignment for the user. It fails with a conflict
// while the user holds any open assignment, on any survey. Re-assigning a
// previously completed pair resets it to open with empty answers.
func (e *AssignmentEngine) AssignSurvey(surveyID, userID string) (*models.Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	users, err := store.ReadUsers(e.store)
	if err != nil {
		return nil, err
	}
	if _, ok := users[userID]; !ok {
		return nil, NewNotFoundError("user not found")
	}
	surveys, err := store.ReadSurveys(e.store)
	if err != nil {
		return nil, err
	}
	if _, ok := surveys[surveyID]; !ok {
		return nil, NewNotFoundError("survey not found")
	}

	assignments, err := store.ReadAssignments(e.store)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if a.UserID == userID && !a.Completed {
			return nil, NewConflictError("user already has an open survey")
		}
	}

	key := models.AssignmentKey(surveyID, userID)
	if prev, ok := assignments[key]; ok && prev.Completed && e.RetainHistory {
		if err := e.archive(prev); err != nil {
			return nil, err
		}
	}
	a := models.Assignment{SurveyID: surveyID, UserID: userID, Answers: map[int]string{}}
	assignments[key] = a
	if err := store.WriteAssignments(e.store, assignments); err != nil {
		return nil, err
	}
	return &a, nil
}

// SubmitSurvey completes the assignment under the composite key, replacing
// its answers wholesale with the supplied mapping. Partial answer sets are
// accepted; missing answers are never fabricated.
func (e *AssignmentEngine) SubmitSurvey(surveyID, userID string, answers map[int]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignments, err := store.ReadAssignments(e.store)
	if err != nil {
		return err
	}
	key := models.AssignmentKey(surveyID, userID)
	a, ok := assignments[key]
	if !ok {
		return NewNotFoundError("survey not assigned to user")
	}

	surveys, err := store.ReadSurveys(e.store)
	if err != nil {
		return err
	}
	if sv, ok := surveys[surveyID]; ok {
		if err := validateAnswers(sv, answers); err != nil {
			return err
		}
	}

	a.Completed = true
	a.Answers = make(map[int]string, len(answers))
	for qid, v := range answers {
		a.Answers[qid] = v
	}
	assignments[key] = a
	return store.WriteAssignments(e.store, assignments)
}

// UserSurveys returns the user's assignments joined with their surveys,
// ordered by composite key. A dangling survey id leaves Survey nil rather
// than failing the whole listing.
func (e *AssignmentEngine) UserSurveys(userID string) ([]UserSurvey, error) {
	assignments, err := store.ReadAssignments(e.store)
	if err != nil {
		return nil, err
	}
	surveys, err := store.ReadSurveys(e.store)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(assignments))
	for k, a := range assignments {
		if a.UserID == userID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]UserSurvey, 0, len(keys))
	for _, k := range keys {
		a := assignments[k]
		us := UserSurvey{Assignment: a}
		if sv, ok := surveys[a.SurveyID]; ok {
			cp := sv
			us.Survey = &cp
		}
		out = append(out, us)
	}
	return out, nil
}

// AvailableUsers lists the non-admin users eligible for a new assignment:
// everyone without an open assignment. This is the same predicate
// AssignSurvey enforces, so the two can never disagree.
func (e *AssignmentEngine) AvailableUsers(allUsers []string) ([]string, error) {
	assignments, err := store.ReadAssignments(e.store)
	if err != nil {
		return nil, err
	}
	open := map[string]bool{}
	for _, a := range assignments {
		if !a.Completed {
			open[a.UserID] = true
		}
	}
	out := make([]string, 0, len(allUsers))
	for _, id := range allUsers {
		if !open[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *AssignmentEngine) archive(prev models.Assignment) error {
	history, err := e.store.Read(store.CollectionHistory)
	if err != nil {
		return err
	}
	b, err := json.Marshal(ArchivedAssignment{Assignment: prev, ArchivedAt: e.now()})
	if err != nil {
		return err
	}
	history[e.idGen()] = b
	return e.store.Write(store.CollectionHistory, history)
}

// validateAnswers checks supplied answers against the survey's declared
// question types: unknown question ids are rejected, rating answers must be
// integer strings within the question's range.
func validateAnswers(sv models.Survey, answers map[int]string) error {
	byID := make(map[int]models.Question, len(sv.Questions))
	for _, q := range sv.Questions {
		byID[q.ID] = q
	}
	for qid, v := range answers {
		q, ok := byID[qid]
		if !ok {
			return NewInvalidError("answer for unknown question " + strconv.Itoa(qid))
		}
		if q.Type == models.QuestionRating {
			n, err := strconv.Atoi(v)
			if err != nil || n < q.Min || n > q.Max {
				return NewInvalidError("rating answer out of range for question " + strconv.Itoa(qid))
			}
		}
	}
	return nil
}
