package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event types.
const (
	EventUpdate           = "update"
	EventSentenceComplete = "sentence_complete"
	EventError            = "error"
	EventCallEnded        = "call_ended"
	EventCallStarted      = "call_started"
	EventAgentStart       = "agent_start_talking"
	EventAgentStop        = "agent_stop_talking"
	EventMetadata         = "metadata"
)

// Outbound event types.
const (
	EventStartCall = "start_call"
	EventStopCall  = "stop_call"
)

// Utterance is one transcript entry of an update.
type Utterance struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is a decoded inbound frame.
type Event struct {
	Type       string          `json:"event_type"`
	Transcript []Utterance     `json:"transcript,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// StartCall opens the call on an established channel.
type StartCall struct {
	Type                string `json:"event_type"`
	AccessToken         string `json:"access_token"`
	SampleRate          int    `json:"sample_rate"`
	CaptureDeviceID     string `json:"capture_device_id,omitempty"`
	EmitRawAudioSamples bool   `json:"emit_raw_audio_samples"`
}

// StopCall asks the remote side to hang up.
type StopCall struct {
	Type string `json:"event_type"`
}

var errMissingType = errors.New("realtime: event missing type")

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.Type == "" {
		return Event{}, errMissingType
	}
	return ev, nil
}

// LastUtterance returns the newest transcript entry; only it carries new text.
func (e Event) LastUtterance() (Utterance, bool) {
	if len(e.Transcript) == 0 {
		return Utterance{}, false
	}
	return e.Transcript[len(e.Transcript)-1], true
}

// ResponseText extracts the response as either a bare string or an object
// with content or text.
func (e Event) ResponseText() (string, bool) {
	raw := strings.TrimSpace(string(e.Response))
	if raw == "" || raw == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Response, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Content *string `json:"content"`
		Text    *string `json:"text"`
	}
	if err := json.Unmarshal(e.Response, &obj); err != nil {
		return "", false
	}
	if obj.Content != nil && *obj.Content != "" {
		return *obj.Content, true
	}
	if obj.Text != nil && *obj.Text != "" {
		return *obj.Text, true
	}
	return "", false
}
