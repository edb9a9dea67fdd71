package api

import (
	"net/http"
	"time"

	"github.com/sqlscout/sqlscout/internal/store"
)

type schemaResponse struct {
	Tables     []store.Table `json:"tables"`
	SchemaText string        `json:"schema_text"`
	CreatedAt  time.Time     `json:"created_at"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema provider is not configured", false, nil)
		return
	}

	snapshot, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		Tables:     snapshot.Tables,
		SchemaText: snapshot.Text,
		CreatedAt:  snapshot.CreatedAt,
	})
}

func handleSchemaInvalidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema provider is not configured", false, nil)
		return
	}
	deps.Schema.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated"})
}
