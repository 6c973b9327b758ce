package deepgram

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/wakecall/pkg/activation"
	"github.com/harunnryd/wakecall/pkg/audio"
	"github.com/harunnryd/wakecall/pkg/errorsx"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

type stubHandler struct {
	results [][]string
	errs    []activation.ErrorKind
	ends    int
}

func (h *stubHandler) OnResult(t []string)              { h.results = append(h.results, t) }
func (h *stubHandler) OnError(kind activation.ErrorKind) { h.errs = append(h.errs, kind) }
func (h *stubHandler) OnEnd()                            { h.ends++ }

type failingSource struct{ err error }

func (s failingSource) Open(context.Context) (audio.Stream, error) { return nil, s.err }

func TestCallbackMessageForwardsAlternatives(t *testing.T) {
	h := &stubHandler{}
	cb := &callback{parent: New(Config{}, nil), run: &run{handler: h}}

	mr := &msginterfaces.MessageResponse{}
	mr.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: " hey assistant "}, {Transcript: ""}, {Transcript: "hay assistant"}}
	if err := cb.Message(mr); err != nil {
		t.Fatalf("message: %v", err)
	}
	if len(h.results) != 1 || len(h.results[0]) != 2 || h.results[0][0] != "hey assistant" {
		t.Fatalf("unexpected results: %#v", h.results)
	}

	empty := &msginterfaces.MessageResponse{}
	_ = cb.Message(empty)
	if len(h.results) != 1 {
		t.Fatalf("empty message must not be forwarded")
	}
}

func TestCallbackErrorMapsKind(t *testing.T) {
	h := &stubHandler{}
	cb := &callback{parent: New(Config{}, nil), run: &run{handler: h}}
	_ = cb.Error(&msginterfaces.ErrorResponse{ErrCode: "INVALID_AUTH", ErrMsg: "bad key"})
	_ = cb.Error(&msginterfaces.ErrorResponse{ErrCode: "NET-0001", ErrMsg: "timeout"})
	if len(h.errs) != 2 || h.errs[0] != activation.ErrorNotAllowed || h.errs[1] != activation.ErrorNetwork {
		t.Fatalf("unexpected kinds: %v", h.errs)
	}
}

func TestRunEndFiresOnce(t *testing.T) {
	h := &stubHandler{}
	r := &run{handler: h}
	r.end()
	r.end()
	if h.ends != 1 {
		t.Fatalf("expected single end, got %d", h.ends)
	}
}

func TestStartRequiresAPIKey(t *testing.T) {
	rec := New(Config{}, failingSource{})
	err := rec.Start(context.Background(), &stubHandler{})
	if errorsx.Reason(err) != errorsx.ReasonRecognitionStart {
		t.Fatalf("expected recognition start reason, got %v", err)
	}
}

func TestStartPropagatesAudioFailure(t *testing.T) {
	boom := errorsx.Newf(errorsx.ReasonAudioCapture, "no mic")
	rec := New(Config{APIKey: "k"}, failingSource{err: boom})
	err := rec.Start(context.Background(), &stubHandler{})
	if !errors.Is(err, boom) && errorsx.Reason(err) != errorsx.ReasonAudioCapture {
		t.Fatalf("expected audio failure, got %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("stop when idle: %v", err)
	}
}
