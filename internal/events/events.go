// Package events publishes analysis telemetry to Kafka and applies cache
// invalidations received from it.
package events

import "time"

type EventType string

const (
	EventAnalysisStarted EventType = "analysis_started"
)

// AnalysisEvent is emitted once per resolve that needs the engine.
type AnalysisEvent struct {
	Type      EventType `json:"type"`
	Engine    string    `json:"engine"`
	Language  string    `json:"language"`
	Status    string    `json:"status"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InvalidateEvent asks every analyzer instance to drop cached results. An
// empty Engine or Language matches all.
type InvalidateEvent struct {
	Engine    string    `json:"engine,omitempty"`
	Language  string    `json:"language,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Matches reports whether the event targets the given engine and language.
func (e InvalidateEvent) Matches(engine, language string) bool {
	return (e.Engine == "" || e.Engine == engine) &&
		(e.Language == "" || e.Language == language)
}
