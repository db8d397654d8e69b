package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/surveydesk/surveydesk/internal/api"
	"github.com/surveydesk/surveydesk/internal/middleware"
	"github.com/surveydesk/surveydesk/internal/services"
	"github.com/surveydesk/surveydesk/internal/utils"
)

func main() {
	addr := utils.SafeEnv("SURVEYDESK_ADDR", ":8080")
	commit := os.Getenv("SURVEYDESK_COMMIT")
	buildTime := os.Getenv("SURVEYDESK_BUILD_TIME")

	rs, err := openRecordStore()
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}

	scheme := services.PasswordScheme(utils.SafeEnv("SURVEYDESK_PASSWORD_SCHEME", string(services.SchemePlain)))
	registry := services.NewUserRegistry(rs, scheme)
	// Admin account must exist before anything else touches the store.
	if err := registry.EnsureAdmin(utils.SafeEnv("SURVEYDESK_ADMIN_PASSWORD", "admin123")); err != nil {
		log.Fatalf("seed admin account: %v", err)
	}

	catalog := services.NewSurveyCatalog(rs)
	engine := services.NewAssignmentEngine(rs)
	if utils.SafeEnv("SURVEYDESK_RETAIN_HISTORY", "") == "true" {
		engine.RetainHistory = true
	}
	aggregator := services.NewResponseAggregator(rs)

	mux := http.NewServeMux()
	api.NewRouter(registry, catalog, engine, aggregator).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "SurveyDesk API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.SecureHeaders(middleware.NoStore(middleware.WithAuth(mux)))

	log.Printf("SurveyDesk server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
