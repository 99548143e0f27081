package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeAskRequest(deps, w, r)
	if !ok {
		return
	}

	answer := deps.Chat.Ask(r.Context(), request.SessionID, request.Question)
	status := http.StatusOK
	if !answer.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, answer)
}

// handleAskStream reports pipeline progress as newline-delimited JSON. Each
// event is flushed as soon as the pipeline produces it; the terminal event
// carries the full answer.
func handleAskStream(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	request, ok := decodeAskRequest(deps, w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for event := range deps.Chat.AskStream(r.Context(), request.SessionID, request.Question) {
		if err := encoder.Encode(event); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func decodeAskRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return askRequest{}, false
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return askRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return askRequest{}, false
	}
	return request, true
}
