package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

type echoReplier struct{ reply string }

func (e echoReplier) Reply(_ context.Context, msg InboundMessage) string { return e.reply }

type recordingSender struct {
	sent []OutboundMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg OutboundMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestRespond_SendsReply(t *testing.T) {
	s := &recordingSender{}
	h := Respond(echoReplier{reply: "hello"}, s, 0, nil)

	if err := h(context.Background(), InboundMessage{ChatID: "c1", Content: "hi"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].ChatID != "c1" || s.sent[0].Content != "hello" {
		t.Errorf("sent = %+v", s.sent)
	}
}

func TestRespond_EmptyReplySendsNothing(t *testing.T) {
	s := &recordingSender{}
	h := Respond(echoReplier{reply: "  "}, s, 0, nil)
	h(context.Background(), InboundMessage{ChatID: "c1"})
	if len(s.sent) != 0 {
		t.Errorf("sent = %+v", s.sent)
	}
}

func TestRespond_DelayHonoursCancel(t *testing.T) {
	s := &recordingSender{}
	h := Respond(echoReplier{reply: "late"}, s, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h(ctx, InboundMessage{ChatID: "c1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Error("nothing should be sent after cancel")
	}
}

func TestRespond_SendError(t *testing.T) {
	s := &recordingSender{err: errors.New("boom")}
	h := Respond(echoReplier{reply: "x"}, s, 0, nil)
	if err := h(context.Background(), InboundMessage{ChatID: "c1"}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestSenderFunc(t *testing.T) {
	var got OutboundMessage
	var s Sender = SenderFunc(func(_ context.Context, msg OutboundMessage) error {
		got = msg
		return nil
	})
	h := Respond(echoReplier{reply: "ok"}, s, 0, nil)
	h(context.Background(), InboundMessage{ChatID: "c9"})
	if got.ChatID != "c9" || got.Content != "ok" {
		t.Errorf("got = %+v", got)
	}
}
