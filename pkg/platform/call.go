package platform

import "time"

// Call is a past or ongoing call as reported by the platform.
type Call struct {
	CallID              string        `json:"call_id"`
	AgentID             string        `json:"agent_id"`
	CallType            string        `json:"call_type"`
	Status              string        `json:"call_status"`
	StartTimestamp      int64         `json:"start_timestamp"`
	EndTimestamp        int64         `json:"end_timestamp"`
	Transcript          string        `json:"transcript"`
	DisconnectionReason string        `json:"disconnection_reason"`
	Analysis            *CallAnalysis `json:"call_analysis,omitempty"`
}

// CallAnalysis is the platform's post-call analysis.
type CallAnalysis struct {
	Summary       string `json:"call_summary"`
	UserSentiment string `json:"user_sentiment"`
	Successful    bool   `json:"call_successful"`
	InVoicemail   bool   `json:"in_voicemail"`
}

// StartedAt converts the millisecond start timestamp.
func (c Call) StartedAt() time.Time {
	if c.StartTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.StartTimestamp)
}

// Duration is zero while the call has not ended.
func (c Call) Duration() time.Duration {
	if c.StartTimestamp == 0 || c.EndTimestamp < c.StartTimestamp {
		return 0
	}
	return time.Duration(c.EndTimestamp-c.StartTimestamp) * time.Millisecond
}
