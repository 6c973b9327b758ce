package activation

import "context"

// ErrorKind classifies recognition engine failures.
type ErrorKind string

const (
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAborted      ErrorKind = "aborted"
	ErrorNetwork      ErrorKind = "network"
	ErrorNotAllowed   ErrorKind = "not-allowed"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorStartFailed  ErrorKind = "start-failed"
)

// Benign reports whether the kind is an expected condition that is never surfaced.
func (k ErrorKind) Benign() bool {
	return k == ErrorNoSpeech || k == ErrorAborted
}

// RecognizerHandler receives engine events for one recognition run.
// Implementations must tolerate calls from any goroutine.
type RecognizerHandler interface {
	// OnResult delivers the current batch of interim/final transcripts.
	OnResult(transcripts []string)
	// OnError reports an engine failure.
	OnError(kind ErrorKind)
	// OnEnd reports that the engine stopped on its own or after Stop.
	OnEnd()
}

// Recognizer is a continuous, interim-result speech recognition engine.
// Start must return once recognition is running; Stop must be idempotent.
type Recognizer interface {
	Name() string
	Start(ctx context.Context, h RecognizerHandler) error
	Stop() error
}

// Listener observes the monitor's outward signals.
type Listener interface {
	OnActivated()
	OnRecognitionError(kind ErrorKind)
}
