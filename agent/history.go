package agent

import "encoding/json"

// EventRecord is the serialized form of a Frame.
// Used for persistence (frame logs) and notifications (WebSocket).
type EventRecord struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ToRecord returns the persisted form of the frame.
func (f Frame) ToRecord() EventRecord {
	data := f.Raw
	if len(data) == 0 && f.Payload != nil {
		data, _ = json.Marshal(f.Payload)
	}
	return EventRecord{Type: f.Type, Data: data}
}

// ToFrame re-validates a persisted record. Records written by an older schema
// that no longer validate return ErrInvalidPayload.
func (r EventRecord) ToFrame() (Frame, error) {
	p, err := ParsePayload(r.Type, r.Data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: r.Type, Payload: p, Raw: r.Data}, nil
}
