package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
)

// Source opens a raw PCM microphone stream.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Close must be idempotent.
type Stream interface {
	io.ReadCloser
}

// Config describes the capture device and PCM layout (s16le).
type Config struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
	// StartupGrace is how long the process must survive before capture counts as started.
	StartupGrace time.Duration
	StopTimeout  time.Duration
	Logger       *slog.Logger
}

// FFmpegSource captures microphone audio by running ffmpeg and reading stdout.
type FFmpegSource struct {
	cfg    Config
	logger *slog.Logger
}

func NewFFmpegSource(cfg Config) *FFmpegSource {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 250 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 1200 * time.Millisecond
	}
	return &FFmpegSource{cfg: cfg, logger: logging.NewComponentLogger(cfg.Logger, "audio_capture")}
}

func (s *FFmpegSource) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.cfg.InputFormat,
		"-i", s.cfg.InputDevice,
		"-ac", strconv.Itoa(s.cfg.Channels),
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func (s *FFmpegSource) Open(ctx context.Context) (Stream, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, s.cfg.Command, s.args()...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errorsx.Newf(errorsx.ReasonAudioCapture, "ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errorsx.Newf(errorsx.ReasonAudioCapture, "start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, errorsx.Newf(errorsx.ReasonAudioCapture, "ffmpeg exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errorsx.Newf(errorsx.ReasonAudioCapture, "ffmpeg exited before capture started")
	case <-time.After(s.cfg.StartupGrace):
	}

	s.logger.Info("capture_started",
		slog.String("device", s.cfg.InputDevice),
		slog.Int("sample_rate", s.cfg.SampleRate))

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		timeout: s.cfg.StopTimeout,
		logger:  s.logger,
	}, nil
}

type ffmpegStream struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error
	timeout time.Duration
	logger  *slog.Logger

	once    sync.Once
	stopErr error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close interrupts ffmpeg, escalating to kill after the stop timeout.
func (s *ffmpegStream) Close() error {
	s.once.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = ignoreExitErr(err)
			}
		case <-time.After(s.timeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = ignoreExitErr(err)
			}
		}
		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
		s.logger.Info("capture_stopped")
	})
	return s.stopErr
}

func ignoreExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
