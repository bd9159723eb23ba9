package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the label line of a frame on the activity stream.
type EventType string

const (
	EventTypeStatus        EventType = "status"
	EventTypeToolCall      EventType = "tool_call"
	EventTypeToolResult    EventType = "tool_result"
	EventTypeThinking      EventType = "thinking"
	EventTypeText          EventType = "text"
	EventTypeComplete      EventType = "complete"
	EventTypeError         EventType = "error"
	EventTypeSession       EventType = "session"
	EventTypeStoryboard    EventType = "storyboard"
	EventTypeSlideStart    EventType = "slide_start"
	EventTypeSlideComplete EventType = "slide_complete"
	EventTypeProgress      EventType = "progress"
)

// DefaultEventType is the label of a frame that carries no event line.
const DefaultEventType EventType = "message"

// IsTerminal reports whether frames of this type end a session.
func (t EventType) IsTerminal() bool {
	return t == EventTypeComplete || t == EventTypeError
}

// IsNote reports whether frames of this type are progress notes folded into
// the thinking channel.
func (t EventType) IsNote() bool {
	switch t {
	case EventTypeStatus, EventTypeStoryboard, EventTypeSlideStart, EventTypeSlideComplete, EventTypeProgress:
		return true
	default:
		return false
	}
}

// ErrInvalidPayload is returned when a frame's data does not match the schema
// declared for its label.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the typed body of a frame.
type Payload interface {
	EventType() EventType
}

// Note is implemented by payloads that render as a progress note.
type Note interface {
	Payload
	NoteText() string
	// ProgressRatio returns the completion ratio in [0,1] when the note carries one.
	ProgressRatio() (float64, bool)
}

// Frame is one decoded (label, payload) unit of the stream.
type Frame struct {
	Type    EventType
	Payload Payload
	Raw     json.RawMessage
}

// NewFrame builds a frame from a typed payload, filling Raw with its JSON form.
func NewFrame(p Payload) Frame {
	raw, err := json.Marshal(p)
	if err != nil {
		raw = nil
	}
	return Frame{Type: p.EventType(), Payload: p, Raw: raw}
}

type StatusPayload struct {
	Message  string   `json:"message"`
	Phase    string   `json:"phase,omitempty"`
	Progress *float64 `json:"progress,omitempty"` // percent
}

func (StatusPayload) EventType() EventType { return EventTypeStatus }
func (p StatusPayload) NoteText() string { return p.Message }
func (p StatusPayload) ProgressRatio() (float64, bool) {
	if p.Progress == nil {
		return 0, false
	}
	return clampRatio(*p.Progress / 100), true
}

type ToolCallPayload struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
	ID   string          `json:"id,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventTypeToolCall }

type ToolResultPayload struct {
	Tool    string          `json:"tool,omitempty"`
	ID      string          `json:"id,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (ToolResultPayload) EventType() EventType { return EventTypeToolResult }

// DeltaPayload carries an incremental text fragment. Label distinguishes
// commentary (thinking) from answer text (text).
type DeltaPayload struct {
	Label EventType `json:"-"`
	Text  string    `json:"text"`
}

func (p DeltaPayload) EventType() EventType {
	if p.Label == "" {
		return EventTypeText
	}
	return p.Label
}

// Document is the generated document attached to a document session's
// completion frame.
type Document struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	DiagramURL *string `json:"diagram_url,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// Video is the generated video attached to a video session's completion frame.
type Video struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Status     string  `json:"status"`
	VideoURL   *string `json:"video_url,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type CompletePayload struct {
	Document *Document `json:"document,omitempty"`
	Video    *Video    `json:"video,omitempty"`
	Success  *bool     `json:"success,omitempty"`
}

func (CompletePayload) EventType() EventType { return EventTypeComplete }

type ErrorPayload struct {
	Message string `json:"message"`
	VideoID string `json:"videoId,omitempty"`
}

func (ErrorPayload) EventType() EventType { return EventTypeError }

type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

func (SessionPayload) EventType() EventType { return EventTypeSession }

type StoryboardPayload struct {
	Slides int    `json:"slides"`
	Title  string `json:"title,omitempty"`
}

func (StoryboardPayload) EventType() EventType { return EventTypeStoryboard }
func (p StoryboardPayload) NoteText() string {
	if p.Title != "" {
		return fmt.Sprintf("Storyboard ready: %s (%d slides)", p.Title, p.Slides)
	}
	return fmt.Sprintf("Storyboard ready: %d slides", p.Slides)
}
func (StoryboardPayload) ProgressRatio() (float64, bool) { return 0, false }

// SlidePayload is shared by slide_start and slide_complete. Index is 1-based.
type SlidePayload struct {
	Label EventType `json:"-"`
	Index int       `json:"index"`
	Total int       `json:"total,omitempty"`
	Title string    `json:"title,omitempty"`
}

func (p SlidePayload) EventType() EventType {
	if p.Label == "" {
		return EventTypeSlideStart
	}
	return p.Label
}

func (p SlidePayload) NoteText() string {
	pos := fmt.Sprintf("%d", p.Index)
	if p.Total > 0 {
		pos = fmt.Sprintf("%d/%d", p.Index, p.Total)
	}
	if p.EventType() == EventTypeSlideComplete {
		return fmt.Sprintf("Slide %s complete", pos)
	}
	if p.Title == "" {
		return fmt.Sprintf("Slide %s", pos)
	}
	return fmt.Sprintf("Slide %s: %s", pos, p.Title)
}

func (p SlidePayload) ProgressRatio() (float64, bool) {
	if p.EventType() != EventTypeSlideComplete || p.Total <= 0 {
		return 0, false
	}
	return clampRatio(float64(p.Index) / float64(p.Total)), true
}

type ProgressPayload struct {
	Ratio    *float64 `json:"ratio,omitempty"`
	Progress *float64 `json:"progress,omitempty"` // percent
	Message  string   `json:"message,omitempty"`
}

func (ProgressPayload) EventType() EventType { return EventTypeProgress }

func (p ProgressPayload) NoteText() string {
	if p.Message != "" {
		return p.Message
	}
	if r, ok := p.ProgressRatio(); ok {
		return fmt.Sprintf("Rendering %.0f%%", r*100)
	}
	return ""
}

func (p ProgressPayload) ProgressRatio() (float64, bool) {
	switch {
	case p.Ratio != nil:
		return clampRatio(*p.Ratio), true
	case p.Progress != nil:
		return clampRatio(*p.Progress / 100), true
	default:
		return 0, false
	}
}

// UnknownPayload wraps frames whose label is not part of the vocabulary.
type UnknownPayload struct {
	Label EventType
}

func (p UnknownPayload) EventType() EventType { return p.Label }

// ParsePayload validates data against the schema of the given label.
// Unknown labels are not an error; they yield an UnknownPayload.
func ParsePayload(eventType EventType, data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)

	if eventType == EventTypeComplete && (len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))) {
		return CompletePayload{}, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s data is not an object", ErrInvalidPayload, eventType)
	}

	switch eventType {
	case EventTypeStatus:
		var p StatusPayload
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		if p.Message == "" {
			return nil, fmt.Errorf("%w: status without message", ErrInvalidPayload)
		}
		return p, nil
	case EventTypeToolCall:
		var p ToolCallPayload
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		if p.Tool == "" {
			return nil, fmt.Errorf("%w: tool_call without tool", ErrInvalidPayload)
		}
		return p, nil
	case EventTypeToolResult:
		var p ToolResultPayload
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		if isJSONNull(p.Output) {
			p.Output = nil
		}
		return p, nil
	case EventTypeThinking, EventTypeText:
		p := DeltaPayload{Label: eventType}
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeComplete:
		return decodeAs[CompletePayload](trimmed)
	case EventTypeError:
		return decodeAs[ErrorPayload](trimmed)
	case EventTypeSession:
		var p SessionPayload
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("%w: session without sessionId", ErrInvalidPayload)
		}
		return p, nil
	case EventTypeStoryboard:
		return decodeAs[StoryboardPayload](trimmed)
	case EventTypeSlideStart, EventTypeSlideComplete:
		p := SlidePayload{Label: eventType}
		if err := decode(trimmed, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeProgress:
		return decodeAs[ProgressPayload](trimmed)
	default:
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: %s data is not valid JSON", ErrInvalidPayload, eventType)
		}
		return UnknownPayload{Label: eventType}, nil
	}
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
