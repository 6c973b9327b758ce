package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRecognitionStart ReasonCode = "recognition_start"
	ReasonRecognitionError ReasonCode = "recognition_error"
	ReasonAudioCapture     ReasonCode = "audio_capture"

	ReasonCredentialFetch ReasonCode = "credential_fetch"
	ReasonChannelOpen     ReasonCode = "channel_open"
	ReasonChannelSend     ReasonCode = "channel_send"
	ReasonChannelClose    ReasonCode = "channel_close"
	ReasonRemoteError     ReasonCode = "remote_error"
	ReasonIdleTimeout     ReasonCode = "idle_timeout"

	ReasonHistoryList  ReasonCode = "history_list"
	ReasonHistoryFetch ReasonCode = "history_fetch"

	ReasonConfig ReasonCode = "config"
)
