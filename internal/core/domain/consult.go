package domain

import "time"

// Message is one dialogue turn used as rewrite context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConsultRequest captures one user question. Immutable once captured:
// Question feeds answer generation and history, never the retrieval query
// directly (that goes through the optimizer).
type ConsultRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ConsultResult is the full consult outcome returned to the transport layer.
type ConsultResult struct {
	Answer          string         `json:"answer"`
	Sources         []EvidenceItem `json:"sources"`
	Suggestions     []string       `json:"suggestions"`
	MatchedCategory string         `json:"matched_category,omitempty"`
	Emergency       bool           `json:"emergency,omitempty"`
	Augmented       bool           `json:"augmented"`
}

// SessionMessage is a persisted dialogue turn.
type SessionMessage struct {
	ID        string
	SessionID string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}
