package store

import (
	"encoding/json"
	"fmt"

	"github.com/surveydesk/surveydesk/internal/models"
)

// Typed read/write helpers over the raw collection API. Decode failures are
// reported with the offending key so a corrupt record is identifiable.

func ReadUsers(s RecordStore) (map[string]models.User, error) {
	raw, err := s.Read(CollectionUsers)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.User, len(raw))
	for k, v := range raw {
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, fmt.Errorf("decode user %q: %w", k, err)
		}
		out[k] = u
	}
	return out, nil
}

func WriteUsers(s RecordStore, users map[string]models.User) error {
	raw := make(map[string]json.RawMessage, len(users))
	for k, u := range users {
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user %q: %w", k, err)
		}
		raw[k] = b
	}
	return s.Write(CollectionUsers, raw)
}

func ReadSurveys(s RecordStore) (map[string]models.Survey, error) {
	raw, err := s.Read(CollectionSurveys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Survey, len(raw))
	for k, v := range raw {
		var sv models.Survey
		if err := json.Unmarshal(v, &sv); err != nil {
			return nil, fmt.Errorf("decode survey %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func WriteSurveys(s RecordStore, surveys map[string]models.Survey) error {
	raw := make(map[string]json.RawMessage, len(surveys))
	for k, sv := range surveys {
		b, err := json.Marshal(sv)
		if err != nil {
			return fmt.Errorf("encode survey %q: %w", k, err)
		}
		raw[k] = b
	}
	return s.Write(CollectionSurveys, raw)
}

func ReadAssignments(s RecordStore) (map[string]models.Assignment, error) {
	raw, err := s.Read(CollectionAssignments)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Assignment, len(raw))
	for k, v := range raw {
		var a models.Assignment
		if err := json.Unmarshal(v, &a); err != nil {
			return nil, fmt.Errorf("decode assignment %q: %w", k, err)
		}
		out[k] = a
	}
	return out, nil
}

func WriteAssignments(s RecordStore, assignments map[string]models.Assignment) error {
	raw := make(map[string]json.RawMessage, len(assignments))
	for k, a := range assignments {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode assignment %q: %w", k, err)
		}
		raw[k] = b
	}
	return s.Write(CollectionAssignments, raw)
}
