package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

// Stream frame types, in emission order. The client renders status lines
// while waiting, then sources, then the answer text, then suggestions.
const (
	frameStatus      = "status"
	frameSources     = "sources"
	frameContent     = "content"
	frameSuggestions = "suggestions"
	frameDone        = "done"
	frameError       = "error"
)

type streamFrame struct {
	Type            string                `json:"type"`
	Message         string                `json:"message,omitempty"`
	Sources         []domain.EvidenceItem `json:"sources,omitempty"`
	MatchedCategory string                `json:"matched_category,omitempty"`
	Emergency       bool                  `json:"emergency,omitempty"`
	Augmented       bool                  `json:"augmented,omitempty"`
	Content         string                `json:"content,omitempty"`
	Suggestions     []string              `json:"suggestions,omitempty"`
	Error           string                `json:"error,omitempty"`
}

func streamConsult(
	w http.ResponseWriter,
	r *http.Request,
	svc ports.ConsultService,
	req domain.ConsultRequest,
	chunkChars int,
	record func(*domain.ConsultResult, error),
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		record(nil, fmt.Errorf("streaming unsupported"))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(frame streamFrame) bool {
		payload, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(streamFrame{Type: frameStatus, Message: "正在分析您的问题..."}) {
		record(nil, fmt.Errorf("client disconnected"))
		return
	}

	result, err := svc.Consult(r.Context(), req)
	record(result, err)
	if err != nil {
		send(streamFrame{Type: frameError, Error: err.Error()})
		return
	}

	send(streamFrame{
		Type:            frameSources,
		Sources:         result.Sources,
		MatchedCategory: result.MatchedCategory,
		Emergency:       result.Emergency,
		Augmented:       result.Augmented,
	})

	for _, part := range splitByRunes(result.Answer, chunkChars) {
		if !send(streamFrame{Type: frameContent, Content: part}) {
			return
		}
	}

	if len(result.Suggestions) > 0 {
		send(streamFrame{Type: frameSuggestions, Suggestions: result.Suggestions})
	}
	send(streamFrame{Type: frameDone})
}

func splitByRunes(text string, chunkChars int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}
	if chunkChars <= 0 || utf8.RuneCountInString(text) <= chunkChars {
		return []string{text}
	}

	parts := make([]string, 0, utf8.RuneCountInString(text)/chunkChars+1)
	runes := []rune(text)
	for start := 0; start < len(runes); start += chunkChars {
		end := start + chunkChars
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
