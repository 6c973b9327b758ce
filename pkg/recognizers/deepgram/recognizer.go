package deepgram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/wakecall/pkg/activation"
	"github.com/harunnryd/wakecall/pkg/audio"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
	Logger     *slog.Logger
}

// Recognizer streams microphone audio to Deepgram live transcription with
// interim results enabled.
type Recognizer struct {
	cfg    Config
	source audio.Source
	logger *slog.Logger

	mu     sync.Mutex
	run    *run
	closed bool
}

// run holds the resources of one Start..Stop cycle.
type run struct {
	cancel  context.CancelFunc
	stream  audio.Stream
	dg      *client.WSCallback
	endOnce sync.Once
	handler activation.RecognizerHandler
}

func (r *run) end() {
	r.endOnce.Do(r.handler.OnEnd)
}

func New(cfg Config, source audio.Source) *Recognizer {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	return &Recognizer{
		cfg:    cfg,
		source: source,
		logger: logging.NewComponentLogger(cfg.Logger, "deepgram_recognizer"),
	}
}

func (r *Recognizer) Name() string { return "deepgram" }

func (r *Recognizer) Start(ctx context.Context, h activation.RecognizerHandler) error {
	if h == nil {
		return errors.New("deepgram: nil handler")
	}
	if r.cfg.APIKey == "" {
		return errorsx.Newf(errorsx.ReasonRecognitionStart, "deepgram: api key required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	if r.run != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := r.source.Open(runCtx)
	if err != nil {
		cancel()
		return err
	}

	cur := &run{cancel: cancel, stream: stream, handler: h}
	cb := &callback{parent: r, run: cur}

	clientOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: true,
		SmartFormat:    true,
	}

	dg, err := client.NewWSUsingCallback(runCtx, r.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		cancel()
		_ = stream.Close()
		return errorsx.Newf(errorsx.ReasonRecognitionStart, "deepgram client: %w", err)
	}
	if !dg.Connect() {
		cancel()
		_ = stream.Close()
		return errorsx.Newf(errorsx.ReasonRecognitionStart, "deepgram connection failed")
	}
	cur.dg = dg

	r.mu.Lock()
	r.run = cur
	r.mu.Unlock()

	r.logger.Info("deepgram_connected",
		slog.String("model", r.cfg.Model),
		slog.String("language", r.cfg.Language))

	go func() {
		if err := dg.Stream(stream); err != nil && runCtx.Err() == nil {
			r.logger.Warn("deepgram_stream_error", slog.String("error", err.Error()))
			h.OnError(activation.ErrorNetwork)
		}
		r.release(cur)
		cur.end()
	}()
	return nil
}

// Stop ends the current run. Safe to call when idle.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	cur := r.run
	r.run = nil
	r.mu.Unlock()
	if cur == nil {
		return nil
	}
	return r.teardown(cur)
}

func (r *Recognizer) release(cur *run) {
	r.mu.Lock()
	if r.run != cur {
		r.mu.Unlock()
		return
	}
	r.run = nil
	r.mu.Unlock()
	_ = r.teardown(cur)
}

func (r *Recognizer) teardown(cur *run) error {
	cur.cancel()
	err := cur.stream.Close()
	if cur.dg != nil {
		cur.dg.Stop()
	}
	r.logger.Info("deepgram_stopped")
	return err
}

type callback struct {
	parent *Recognizer
	run    *run
}

func (c *callback) Open(*msginterfaces.OpenResponse) error {
	c.parent.logger.Debug("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	transcripts := make([]string, 0, len(mr.Channel.Alternatives))
	for _, alt := range mr.Channel.Alternatives {
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			transcripts = append(transcripts, text)
		}
	}
	if len(transcripts) == 0 {
		return nil
	}
	c.parent.logger.Debug("transcript_received",
		slog.String("transcript", redact.Text(transcripts[0])),
		slog.Bool("is_final", mr.IsFinal))
	c.run.handler.OnResult(transcripts)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.logger.Debug("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(*msginterfaces.CloseResponse) error {
	c.parent.logger.Debug("deepgram_connection_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Warn("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.run.handler.OnError(errorKind(er.ErrCode))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event", slog.Int("bytes", len(byData)))
	return nil
}

// errorKind maps Deepgram error codes onto recognition error kinds.
func errorKind(code string) activation.ErrorKind {
	code = strings.ToUpper(code)
	switch {
	case strings.Contains(code, "AUTH"), strings.Contains(code, "FORBIDDEN"), strings.Contains(code, "401"), strings.Contains(code, "403"):
		return activation.ErrorNotAllowed
	case strings.Contains(code, "AUDIO"), strings.Contains(code, "DATA"):
		return activation.ErrorAudioCapture
	default:
		return activation.ErrorNetwork
	}
}

var _ activation.Recognizer = (*Recognizer)(nil)
var _ msginterfaces.LiveMessageCallback = (*callback)(nil)
