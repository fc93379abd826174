package kafka

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EnvelopeVersion is the newest envelope layout this package understands.
const EnvelopeVersion = 1

var (
	errMissingEventType = errors.New("event envelope has no event_type")
	errEmptyData        = errors.New("event has no data payload")
)

// ErrUnsupportedVersion marks an envelope written by a newer producer.
var ErrUnsupportedVersion = errors.New("unsupported event envelope version")

// Event is the envelope every catalog message travels in. Data holds the
// event-specific payload and is decoded lazily by the handler.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds a current-version envelope around data.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
	}, nil
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes an envelope. A missing version is read as version 1;
// envelopes without a type or from a newer layout are rejected.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if event.EventType == "" {
		return nil, errMissingEventType
	}
	if event.Version == 0 {
		event.Version = 1
	}
	if event.Version > EnvelopeVersion {
		return nil, fmt.Errorf("%w: %s has version %d, newest known is %d",
			ErrUnsupportedVersion, event.EventType, event.Version, EnvelopeVersion)
	}
	return &event, nil
}

// UnmarshalData decodes the payload into target. An absent or null payload
// is an error so handlers never act on a zero value.
func (e *Event) UnmarshalData(target any) error {
	if raw := bytes.TrimSpace(e.Data); len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%s %s: %w", e.EventType, e.EventID, errEmptyData)
	}
	return json.Unmarshal(e.Data, target)
}
