package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/errorsx"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestFFmpegSourceReadsAndCloses(t *testing.T) {
	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'pcm'\nsleep 2\n")
	src := NewFFmpegSource(Config{Command: script})

	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf := make([]byte, 8)
	n, _ := stream.Read(buf)
	if !strings.Contains(string(buf[:n]), "pcm") {
		t.Fatalf("unexpected bytes %q", string(buf[:n]))
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestFFmpegSourceEarlyExit(t *testing.T) {
	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no device' 1>&2\nexit 1\n")
	src := NewFFmpegSource(Config{Command: script, StartupGrace: time.Second})

	_, err := src.Open(context.Background())
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if errorsx.Reason(err) != errorsx.ReasonAudioCapture {
		t.Fatalf("expected audio capture reason, got %s", errorsx.Reason(err))
	}
	if !strings.Contains(err.Error(), "no device") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestFFmpegSourceArgs(t *testing.T) {
	src := NewFFmpegSource(Config{InputDevice: "hw:1", SampleRate: 24000})
	args := strings.Join(src.args(), " ")
	if !strings.Contains(args, "-i hw:1") || !strings.Contains(args, "-ar 24000") || !strings.HasSuffix(args, "-f s16le -") {
		t.Fatalf("unexpected args: %s", args)
	}
}

func TestIgnoreExitErr(t *testing.T) {
	err := exec.Command("bash", "-c", "exit 3").Run()
	if err == nil {
		t.Fatalf("expected failure")
	}
	if got := ignoreExitErr(err); got != nil {
		t.Fatalf("expected exit error ignored, got %v", got)
	}
}
