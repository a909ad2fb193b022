package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/types/common"
)

// Base topic names.  The configured topic prefix is applied by the
// Producer at publish time, so these stay environment-agnostic.
const (
	TopicCatalogSaved     = "catalog.version_saved"
	TopicCompoundPromoted = "compound.promoted"
	TopicConflictRaised   = "identity.conflict_raised"
	TopicRunCompleted     = "curation.run_completed"
)

// sourceService identifies this producer in event headers.
const sourceService = "mskb-curation"

// EventEnvelope standardizes curation event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// CatalogSavedPayload announces that a catalog version was persisted.
type CatalogSavedPayload struct {
	Version  string    `json:"version"`
	Verified int       `json:"verified"`
	Orphans  int       `json:"orphans"`
	SavedAt  time.Time `json:"saved_at"`
}

// CompoundPromotedPayload announces an orphan resolved to a CAS number.
type CompoundPromotedPayload struct {
	IdentityKey   string    `json:"identity_key"`
	CASNumber     string    `json:"cas_number"`
	PreferredName string    `json:"preferred_name"`
	Source        string    `json:"source"`
	PromotedAt    time.Time `json:"promoted_at"`
}

// ConflictRaisedPayload announces a same-tier identity disagreement that
// needs human review.
type ConflictRaisedPayload struct {
	CompoundKey     string    `json:"compound_key"`
	Field           string    `json:"field"`
	CompetingValues []string  `json:"competing_values"`
	RaisedAt        time.Time `json:"raised_at"`
}

// RunCompletedPayload carries the summary counters of a finished phase run.
type RunCompletedPayload struct {
	RunID      common.ID        `json:"run_id"`
	Phase      string           `json:"phase"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Counters   []common.Counter `json:"counters,omitempty"`
}

// NewEventEnvelope wraps a payload for publication.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        sourceService,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal event payload")
	}
	return nil
}
