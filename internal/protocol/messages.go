package protocol

import "time"

// SessionStarted opens a capture session in the event history.
type SessionStarted struct {
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Engine    string    `json:"engine"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Partial   bool      `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

// Recommendation carries the locations offered for a final transcript.
type Recommendation struct {
	SessionID  string    `json:"session_id"`
	Transcript string    `json:"transcript"`
	Keywords   []string  `json:"keywords,omitempty"`
	Matched    int       `json:"matched"`
	Fallback   bool      `json:"fallback"`
	Locations  []string  `json:"locations"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectRecommendation    = "wayfinder.recommendation"
)

// Event types recorded in the event store.
const (
	EventSessionStarted    = "session.started"
	EventTranscriptPartial = "transcript.partial"
	EventTranscriptFinal   = "transcript.final"
	EventRecommendation    = "recommendation"
)
