package models

import "time"

// Role distinguishes the administrator account from regular accounts.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// AdminID is the reserved id of the seeded administrator account.
const AdminID = "admin"

// User is an account record. Exactly one admin user exists at all times;
// it is seeded on first run and can never be removed.
type User struct {
	ID        string    `json:"id"`
	Password  string    `json:"password"` // plain or bcrypt hash depending on the registry scheme
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionType selects how a question is answered.
type QuestionType string

const (
	QuestionRating QuestionType = "rating" // numeric string "1".."5"
	QuestionText   QuestionType = "text"   // free text
)

// Question belongs to a survey. Min/Max are set only for rating questions.
type Question struct {
	ID   int          `json:"id"`
	Type QuestionType `json:"type"`
	Text string       `json:"text"`
	Min  int          `json:"min,omitempty"`
	Max  int          `json:"max,omitempty"`
}

// Survey is an ordered, non-empty list of questions. Immutable after creation.
type Survey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// Assignment links one survey to one user. The composite key
// "{surveyID}-{userID}" identifies it in the store. Answers map question
// ids to answer values ("1".."5" for rating, free text otherwise).
type Assignment struct {
	SurveyID  string         `json:"surveyId"`
	UserID    string         `json:"userId"`
	Completed bool           `json:"completed"`
	Answers   map[int]string `json:"answers"`
}

// AssignmentKey builds the composite store key for a (survey, user) pair.
func AssignmentKey(surveyID, userID string) string {
	return surveyID + "-" + userID
}
