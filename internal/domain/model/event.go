// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Params is the open-ended parameter mapping attached to an event.
// Values are JSON-like: scalars, objects, and arrays.
type Params map[string]interface{}

// Event is a named, parameterized record of something that happened in the
// host application, enriched with identity and timing fields at record time.
// Immutable once serialized.
type Event struct {
	Name      string
	Params    Params
	UserID    string
	SessionID string
	EventUUID string
	// Timestamp is nil when no wall clock was available at record time;
	// the serialized form then omits eventTimestamp.
	Timestamp *time.Time
}

// NewEvent builds an enriched event. A fresh UUID is generated per call.
func NewEvent(name string, params Params, userID, sessionID string, ts *time.Time) Event {
	return Event{
		Name:      name,
		Params:    params,
		UserID:    userID,
		SessionID: sessionID,
		EventUUID: uuid.NewString(),
		Timestamp: ts,
	}
}

// eventTimestampFormat is the wire format for eventTimestamp, always UTC.
const eventTimestampFormat = "2006-01-02 15:04:05.000"

// Serialize encodes the event as the wire object sent inside the upload
// envelope. The returned bytes are the event's immutable serialized form.
func (e Event) Serialize() ([]byte, error) {
	obj := map[string]interface{}{
		"eventName": e.Name,
		"userID":    e.UserID,
		"sessionID": e.SessionID,
		"eventUUID": e.EventUUID,
	}
	if e.Timestamp != nil {
		obj["eventTimestamp"] = e.Timestamp.UTC().Format(eventTimestampFormat)
	}
	if len(e.Params) > 0 {
		obj["eventParams"] = e.Params
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("serialize event %s: %w", e.Name, err)
	}
	return data, nil
}

// BuildEnvelope concatenates pre-serialized events into the upload envelope
// {"eventList":[...]}. Events are included in the given order.
func BuildEnvelope(events [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"eventList":[`)
	for i, ev := range events {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(ev)
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}
