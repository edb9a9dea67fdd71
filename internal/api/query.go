package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlscout/sqlscout/internal/pipeline"
)

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Question          string         `json:"question"`
	SQL               string         `json:"sql"`
	Columns           []string       `json:"columns"`
	Rows              [][]any        `json:"rows"`
	RowCount          int            `json:"row_count"`
	Truncated         bool           `json:"truncated"`
	Explanation       string         `json:"explanation"`
	ExplanationSource string         `json:"explanation_source"`
	Stats             map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	answer, ok := answerQuestion(deps, w, r)
	if !ok {
		return
	}

	source := "template"
	if answer.ExplanationFromAI {
		source = "ai"
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Question:          answer.Question,
		SQL:               answer.SQL,
		Columns:           answer.Result.Columns,
		Rows:              answer.Result.Rows,
		RowCount:          answer.Result.RowCount,
		Truncated:         answer.Result.Truncated,
		Explanation:       answer.Explanation,
		ExplanationSource: source,
		Stats: map[string]any{
			"duration_ms":   answer.Result.Duration.Milliseconds(),
			"generation_ms": answer.GenerationLatency.Milliseconds(),
			"provider":      answer.Provider,
			"model":         answer.Model,
		},
	})
}

// answerQuestion decodes the request, runs the pipeline and writes the error
// response itself when anything fails. The bool reports success.
func answerQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request) (pipeline.Answer, bool) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return pipeline.Answer{}, false
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return pipeline.Answer{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return pipeline.Answer{}, false
	}

	answer, stageErr := deps.Pipeline.Answer(r.Context(), request.Question)
	if stageErr != nil {
		writeStageError(w, r, stageErr)
		return pipeline.Answer{}, false
	}
	return answer, true
}

func writeStageError(w http.ResponseWriter, r *http.Request, stageErr *pipeline.StageError) {
	status := http.StatusInternalServerError
	retryable := stageErr.Retryable()
	switch stageErr.Code {
	case pipeline.CodeStoreUnavailable:
		status = http.StatusServiceUnavailable
		retryable = true
	case pipeline.CodeBackendUnreachable, pipeline.CodeBackendError:
		status = http.StatusBadGateway
	case pipeline.CodeBackendTimeout, pipeline.CodeExecutionTimeout:
		status = http.StatusGatewayTimeout
		retryable = true
	case pipeline.CodeUnsafeQuery:
		status = http.StatusUnprocessableEntity
	case pipeline.CodeExecutionError:
		status = http.StatusBadRequest
	}

	extra := map[string]any{"stage": stageErr.Stage}
	if stageErr.SQL != "" {
		extra["sql"] = stageErr.SQL
	}
	writeError(r.Context(), w, status, stageErr.Code, stageErr.Reason, retryable, extra)
}
