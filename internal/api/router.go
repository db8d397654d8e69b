package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/surveydesk/surveydesk/internal/middleware"
	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/services"
)

const tokenTTL = 30 * 24 * time.Hour

// Router translates HTTP requests into service calls and service errors
// into status codes. All business rules live in the services.
type Router struct {
	registry   *services.UserRegistry
	catalog    *services.SurveyCatalog
	engine     *services.AssignmentEngine
	aggregator *services.ResponseAggregator
}

func NewRouter(reg *services.UserRegistry, cat *services.SurveyCatalog, eng *services.AssignmentEngine, agg *services.ResponseAggregator) *Router {
	return &Router{registry: reg, catalog: cat, engine: eng, aggregator: agg}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/login", rt.handleLogin)                                                          // POST
	mux.Handle("/api/users", middleware.RequireAdmin(http.HandlerFunc(rt.handleUsers)))                        // GET, POST
	mux.Handle("/api/users/", middleware.RequireAuth(http.HandlerFunc(rt.handleUserScoped)))                   // DELETE {id}, GET {id}/surveys
	mux.Handle("/api/surveys", middleware.RequireAuth(http.HandlerFunc(rt.handleSurveys)))                     // GET, POST
	mux.Handle("/api/surveys/", middleware.RequireAuth(http.HandlerFunc(rt.handleSurveyScoped)))               // GET {id}, GET {id}/responses[/export]
	mux.Handle("/api/assignments", middleware.RequireAdmin(http.HandlerFunc(rt.handleAssign)))                 // POST
	mux.Handle("/api/assignments/available-users", middleware.RequireAdmin(http.HandlerFunc(rt.handleAvailableUsers))) // GET
	mux.Handle("/api/assignments/submit", middleware.RequireAuth(http.HandlerFunc(rt.handleSubmit)))           // POST
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		}
	}
	http.Error(w, err.Error(), status)
}

func isAdmin(r *http.Request) bool {
	role, ok := middleware.RoleFromContext(r.Context())
	return ok && role == string(models.RoleAdmin)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID       string `json:"id"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := rt.registry.Authenticate(req.ID, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, err := middleware.SignToken(u.ID, string(u.Role), tokenTTL)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token, "user_id": u.ID, "role": u.Role})
}

// GET|POST /api/users
func (rt *Router) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids, err := rt.registry.ListUsers()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"users": ids})
	case http.MethodPost:
		var req struct {
			ID       string `json:"id"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u, err := rt.registry.AddUser(req.ID, req.Password)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": u.ID, "role": u.Role})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DELETE /api/users/{id}, GET /api/users/{id}/surveys
func (rt *Router) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if err := rt.registry.RemoveUser(parts[0]); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	case len(parts) == 2 && parts[1] == "surveys" && r.Method == http.MethodGet:
		uid, _ := middleware.UserIDFromContext(r.Context())
		if parts[0] != uid && !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		list, err := rt.engine.UserSurveys(parts[0])
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"surveys": list})
	default:
		http.NotFound(w, r)
	}
}

// GET|POST /api/surveys
func (rt *Router) handleSurveys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := rt.catalog.GetAllSurveys()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, all)
	case http.MethodPost:
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			Name      string                   `json:"name"`
			Questions []services.QuestionInput `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sv, err := rt.catalog.CreateSurvey(req.Name, req.Questions)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, sv)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/surveys/{id}, GET /api/surveys/{id}/responses, GET /api/surveys/{id}/responses/export
func (rt *Router) handleSurveyScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/surveys/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		sv, err := rt.catalog.GetSurvey(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if sv == nil {
			http.Error(w, "survey not found", http.StatusNotFound)
			return
		}
		writeJSON(w, sv)
	case len(parts) == 2 && parts[1] == "responses":
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		responses, err := rt.aggregator.SurveyResponses(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"responses": responses})
	case len(parts) == 3 && parts[1] == "responses" && parts[2] == "export":
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		sv, err := rt.catalog.GetSurvey(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if sv == nil {
			http.Error(w, "survey not found", http.StatusNotFound)
			return
		}
		responses, err := rt.aggregator.SurveyResponses(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		b, err := rt.aggregator.ExportResponsesCSV(*sv, responses)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=responses.csv")
		_, _ = w.Write(b)
	default:
		http.NotFound(w, r)
	}
}

// POST /api/assignments
func (rt *Router) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SurveyID string `json:"survey_id"`
		UserID   string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := rt.engine.AssignSurvey(req.SurveyID, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, a)
}

// GET /api/assignments/available-users
func (rt *Router) handleAvailableUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	all, err := rt.registry.ListUsers()
	if err != nil {
		writeErr(w, err)
		return
	}
	avail, err := rt.engine.AvailableUsers(all)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"users": avail})
}

// POST /api/assignments/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SurveyID string         `json:"survey_id"`
		Answers  map[int]string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	uid, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := rt.engine.SubmitSurvey(req.SurveyID, uid, req.Answers); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
