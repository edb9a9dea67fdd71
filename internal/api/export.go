package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlscout/sqlscout/internal/export"
)

type exportRequest struct {
	Question string `json:"question"`
	Format   string `json:"format"`
}

func handleQueryExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}

	var request exportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	format := strings.ToLower(strings.TrimSpace(request.Format))
	if format == "" {
		format = export.FormatCSV
	}
	contentType, ok := export.ContentType(format)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be csv or parquet", false, map[string]any{"format": request.Format})
		return
	}

	answer, stageErr := deps.Pipeline.Answer(r.Context(), request.Question)
	if stageErr != nil {
		writeStageError(w, r, stageErr)
		return
	}

	// Encode into memory first so a mid-stream failure can still produce a
	// proper error response.
	var buf bytes.Buffer
	if err := export.Encode(&buf, format, answer.Result); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), false, map[string]any{"format": format})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="result.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
