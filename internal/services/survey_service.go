package services

import (
	"strings"
	"sync"
	"time"

	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/store"
)

// Rating answers are fixed to a five-point range.
const (
	RatingMin = 1
	RatingMax = 5
)

// QuestionInput is the caller-facing question definition; ids and rating
// bounds are assigned by the catalog.
type QuestionInput struct {
	Type models.QuestionType `json:"type"`
	Text string              `json:"text"`
}

// SurveyCatalog owns the surveys collection. Surveys are immutable once
// created; there is no edit or delete operation.
type SurveyCatalog struct {
	mu    sync.Mutex
	store store.RecordStore
	now   func() time.Time
	idGen func() string
}

func NewSurveyCatalog(rs store.RecordStore) *SurveyCatalog {
	return &SurveyCatalog{
		store: rs,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(8) },
	}
}

// CreateSurvey stores a new survey. Every stored survey must be answerable:
// zero questions, a blank name or blank question text are rejected.
func (c *SurveyCatalog) CreateSurvey(name string, questions []QuestionInput) (*models.Survey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidError("survey name required")
	}
	if len(questions) == 0 {
		return nil, NewInvalidError("survey needs at least one question")
	}
	qs := make([]models.Question, 0, len(questions))
	for i, in := range questions {
		if strings.TrimSpace(in.Text) == "" {
			return nil, NewInvalidError("question text required")
		}
		q := models.Question{ID: i + 1, Text: in.Text}
		switch in.Type {
		case models.QuestionRating:
			q.Type = models.QuestionRating
			q.Min = RatingMin
			q.Max = RatingMax
		case models.QuestionText, "":
			q.Type = models.QuestionText
		default:
			return nil, NewInvalidError("unknown question type " + string(in.Type))
		}
		qs = append(qs, q)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	surveys, err := store.ReadSurveys(c.store)
	if err != nil {
		return nil, err
	}
	id := c.idGen()
	for surveys[id].ID != "" {
		id = c.idGen()
	}
	sv := models.Survey{ID: id, Name: name, Questions: qs, CreatedAt: c.now()}
	surveys[id] = sv
	if err := store.WriteSurveys(c.store, surveys); err != nil {
		return nil, err
	}
	return &sv, nil
}

// GetAllSurveys returns the id->survey mapping.
func (c *SurveyCatalog) GetAllSurveys() (map[string]models.Survey, error) {
	return store.ReadSurveys(c.store)
}

// GetSurvey returns the survey, or nil when absent.
func (c *SurveyCatalog) GetSurvey(id string) (*models.Survey, error) {
	surveys, err := store.ReadSurveys(c.store)
	if err != nil {
		return nil, err
	}
	sv, ok := surveys[id]
	if !ok {
		return nil, nil
	}
	return &sv, nil
}
