package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/wakecall/pkg/clock"
	"github.com/harunnryd/wakecall/pkg/transports"
)

type counter struct {
	fragments, responses, sentences, ended, errors int
}

func (c *counter) OnTranscriptFragment(transports.Role, string) { c.fragments++ }
func (c *counter) OnResponse(string)                            { c.responses++ }
func (c *counter) OnSentenceComplete()                          { c.sentences++ }
func (c *counter) OnCallEnded()                                 { c.ended++ }
func (c *counter) OnError(string)                               { c.errors++ }

func TestMockTransportLifecycle(t *testing.T) {
	fc := clock.NewFake(time.Time{})
	tr := New(Config{MinDuration: 10 * time.Second, Clock: fc})
	c := &counter{}
	tr.SetListener(c)

	if tr.PushFragment(transports.RoleUser, "early") {
		t.Fatalf("push without session must fail")
	}
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	tr.PushFragment(transports.RoleUser, "hi")
	tr.PushResponse("hello")
	tr.PushSentenceComplete()
	if err := tr.Close(context.Background(), transports.CloseUser); !errors.Is(err, transports.ErrTooEarly) {
		t.Fatalf("expected too early, got %v", err)
	}
	fc.Advance(10 * time.Second)
	if err := tr.Close(context.Background(), transports.CloseUser); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.fragments != 1 || c.responses != 1 || c.sentences != 1 || c.ended != 1 {
		t.Fatalf("unexpected counts %+v", c)
	}
}

func TestMockTransportFailNextOpen(t *testing.T) {
	tr := New(Config{})
	c := &counter{}
	tr.SetListener(c)
	tr.FailNextOpen(errors.New("credential rejected"))
	if err := tr.Open(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	if c.errors != 1 || tr.Session().Status != transports.StatusError {
		t.Fatalf("expected error notice and error status")
	}
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if tr.Opens() != 2 {
		t.Fatalf("expected two open calls, got %d", tr.Opens())
	}
}

func TestMockTransportPushErrorTearsDown(t *testing.T) {
	tr := New(Config{MinDuration: time.Hour})
	c := &counter{}
	tr.SetListener(c)
	_ = tr.Open(context.Background())
	tr.PushError("boom")
	if c.errors != 1 || tr.Session().Status != transports.StatusError {
		t.Fatalf("expected error teardown, got %+v status=%s", c, tr.Session().Status)
	}
	tr.Dispose()
	tr.Dispose()
	if c.ended != 1 {
		t.Fatalf("expected single call ended, got %d", c.ended)
	}
}

func TestMockTransportHangUpDuringConnect(t *testing.T) {
	var tr *Transport
	tr = New(Config{OpenHook: func(context.Context) error {
		if !tr.EndRemote() {
			t.Errorf("hang-up during connect must be accepted")
		}
		return nil
	}})
	c := &counter{}
	tr.SetListener(c)
	if err := tr.Open(context.Background()); !errors.Is(err, transports.ErrEndedWhileConnecting) {
		t.Fatalf("expected ended while connecting, got %v", err)
	}
	if c.ended != 1 || tr.Session().Status != transports.StatusEnded {
		t.Fatalf("expected ended session, got %+v status=%s", c, tr.Session().Status)
	}
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}
