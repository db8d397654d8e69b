package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"

	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/store"
)

// ResponseAggregator is a read-only projection over assignment state.
type ResponseAggregator struct {
	store store.RecordStore
}

func NewResponseAggregator(rs store.RecordStore) *ResponseAggregator {
	return &ResponseAggregator{store: rs}
}

// SurveyResponses returns the completed assignments for a survey. Order
// follows store iteration and is not significant; callers treat the result
// as a set.
func (g *ResponseAggregator) SurveyResponses(surveyID string) ([]models.Assignment, error) {
	assignments, err := store.ReadAssignments(g.store)
	if err != nil {
		return nil, err
	}
	out := []models.Assignment{}
	for _, a := range assignments {
		if a.SurveyID == surveyID && a.Completed {
			out = append(out, a)
		}
	}
	return out, nil
}

// ExportResponsesCSV renders a survey's completed responses as long-format
// CSV: one row per (user, question) with the question text for context.
// Rows are ordered by user id then question id for stable output.
func (g *ResponseAggregator) ExportResponsesCSV(sv models.Survey, responses []models.Assignment) ([]byte, error) {
	sorted := append([]models.Assignment(nil), responses...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"user_id", "question_id", "question", "answer"})
	for _, a := range sorted {
		for _, q := range sv.Questions {
			v, ok := a.Answers[q.ID]
			if !ok {
				continue
			}
			rec := []string{a.UserID, strconv.Itoa(q.ID), q.Text, v}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
