package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
	"github.com/Meshal1212222/ticket-ticket/internal/intake"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

var _ connector.Replier = (*Machine)(nil)

type fakeCreator struct {
	mu   sync.Mutex
	subs []intake.Submission
	err  error
}

func (f *fakeCreator) Create(_ context.Context, sub intake.Submission) (*protocol.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subs = append(f.subs, sub)
	return &protocol.Ticket{ID: fmt.Sprintf("TKT-%06d", len(f.subs))}, nil
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newMachine(creator Creator) *Machine {
	return NewMachine(NewSessions(time.Hour), creator)
}

func msg(text string) connector.InboundMessage {
	return connector.InboundMessage{
		Channel:     "whatsapp",
		SenderID:    "966500000000",
		ChatID:      "966500000000@c.us",
		DisplayName: "Sara",
		Content:     text,
	}
}

func send(m *Machine, texts ...string) Result {
	var res Result
	for _, t := range texts {
		res = m.Handle(context.Background(), msg(t))
	}
	return res
}

func TestFreshSenderGetsMainMenu(t *testing.T) {
	m := newMachine(&fakeCreator{})
	res := send(m, "السلام عليكم")

	if res.From != StepWelcome || res.To != StepMainChoice {
		t.Errorf("transition %s -> %s", res.From, res.To)
	}
	if !strings.Contains(res.Reply, flow[StepMainChoice].header) {
		t.Errorf("reply lacks main menu: %q", res.Reply)
	}
}

func TestMainChoice(t *testing.T) {
	cases := []struct {
		input string
		want  Step
	}{
		{"1", StepBuyTiming},
		{"أبغى شراء تذاكر", StepBuyTiming},
		{"BUY", StepBuyTiming},
		{"٢", StepSellTiming},
		{"بيع", StepSellTiming},
		{"sell please", StepSellTiming},
		{"hello", StepMainChoice},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			m := newMachine(&fakeCreator{})
			res := send(m, "hi", tc.input)
			if res.To != tc.want {
				t.Errorf("%q: got %s, want %s", tc.input, res.To, tc.want)
			}
		})
	}
}

func TestFirstMessageAnswersMainMenu(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)

	res := send(m, "1")
	if res.From != StepWelcome || res.To != StepBuyTiming {
		t.Fatalf("transition %s -> %s", res.From, res.To)
	}
	if !strings.HasPrefix(res.Reply, welcomeText) || !strings.Contains(res.Reply, flow[StepBuyTiming].header) {
		t.Errorf("reply = %q", res.Reply)
	}

	res = send(m, "1", "Concert X")
	if res.To != StepCompleted || fc.count() != 1 {
		t.Fatalf("result = %+v, tickets = %d", res, fc.count())
	}
	if sub := fc.subs[0]; sub.Category != labelBuy || !strings.Contains(sub.Subject, "Concert X") {
		t.Errorf("submission = %+v", sub)
	}
}

func TestUnrecognizedInputRepeatsPrompt(t *testing.T) {
	m := newMachine(&fakeCreator{})
	send(m, "hi")
	res := send(m, "???")
	if res.Matched {
		t.Error("expected no match")
	}
	if res.Reply != flow[StepMainChoice].prompt() {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestBuyBeforeCreatesTicket(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)

	res := send(m, "hi", "1", "1", "Concert X")

	if res.To != StepCompleted || res.TicketID != "TKT-000001" {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Reply, "TKT-000001") {
		t.Errorf("confirmation lacks ticket id: %q", res.Reply)
	}
	if fc.count() != 1 {
		t.Fatalf("expected 1 ticket, got %d", fc.count())
	}
	sub := fc.subs[0]
	if sub.Category != labelBuy {
		t.Errorf("category = %q", sub.Category)
	}
	if !strings.Contains(sub.Subject, "Concert X") {
		t.Errorf("subject = %q", sub.Subject)
	}
	if sub.Name != "Sara" || sub.Phone != "966500000000" || sub.Source != "whatsapp" {
		t.Errorf("submission = %+v", sub)
	}
}

func TestTerminalPathsCreateOneTicket(t *testing.T) {
	paths := map[string][]string{
		"buy after":          {"hi", "1", "2", "1", "me@example.com"},
		"sell before simple": {"hi", "2", "1", "3"},
		"sell before agent":  {"hi", "2", "1", "6", "me@example.com"},
		"sell after payout":  {"hi", "2", "2", "1", "me@example.com"},
		"sell after buyer":   {"hi", "2", "2", "2", "me@example.com"},
		"sell after refund":  {"hi", "2", "2", "refund"},
		"sell after other":   {"hi", "2", "2", "5"},
	}
	for name, inputs := range paths {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCreator{}
			m := newMachine(fc)
			var res Result
			for i, in := range inputs {
				res = send(m, in)
				if i < len(inputs)-1 && fc.count() != 0 {
					t.Fatalf("ticket created early at input %d", i)
				}
			}
			if res.To != StepCompleted {
				t.Fatalf("ended at %s", res.To)
			}
			if fc.count() != 1 {
				t.Fatalf("expected exactly one ticket, got %d", fc.count())
			}
			if fc.subs[0].Subject == "" {
				t.Error("empty subject")
			}
		})
	}
}

func TestEmailRouting(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)

	res := send(m, "hi", "2", "1", "6")
	if res.To != StepGetEmail {
		t.Fatalf("talk-to-agent should ask for email, got %s", res.To)
	}
	send(m, "sara@example.com")

	sub := fc.subs[0]
	if sub.Email != "sara@example.com" {
		t.Errorf("email = %q", sub.Email)
	}
	if strings.Contains(sub.Subject, "sara@example.com") {
		t.Errorf("email leaked into subject: %q", sub.Subject)
	}
	want := labelSell + " - " + labelBefore + " - التحدث مع موظف"
	if sub.Subject != want {
		t.Errorf("subject = %q, want %q", sub.Subject, want)
	}
}

func TestCompletedRestarts(t *testing.T) {
	m := newMachine(&fakeCreator{})
	send(m, "hi", "1", "1", "Concert X")

	res := send(m, "anything")
	if res.From != StepCompleted || res.To != StepMainChoice {
		t.Errorf("transition %s -> %s", res.From, res.To)
	}
	conv, ok := m.Sessions().Get(Key("whatsapp", "966500000000"))
	if !ok {
		t.Fatal("conversation missing")
	}
	if conv.Answers != (Answers{}) {
		t.Errorf("answers not reset: %+v", conv.Answers)
	}
	if conv.DisplayName != "Sara" || conv.TicketID != "TKT-000001" {
		t.Errorf("identity lost: %+v", conv)
	}
}

func TestCreationFailureStillConfirms(t *testing.T) {
	m := newMachine(&fakeCreator{err: errors.New("db down")})
	res := send(m, "hi", "1", "1", "Concert X")

	if res.Err == nil || res.TicketID != "" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Reply, doneText) || strings.Contains(res.Reply, "TKT-") {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestDisabledMachineIgnoresMessages(t *testing.T) {
	m := newMachine(&fakeCreator{})
	m.SetEnabled(false)

	if res := send(m, "hi"); res.Reply != "" {
		t.Errorf("reply = %q", res.Reply)
	}
	if m.Sessions().Len() != 0 {
		t.Error("disabled machine created state")
	}

	m.SetEnabled(true)
	if res := send(m, "hi"); res.Reply == "" {
		t.Error("enabled machine should reply")
	}
}

func TestFallbackNameIsSenderID(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)
	in := connector.InboundMessage{Channel: "x", SenderID: "12345", ChatID: "12345"}
	for _, text := range []string{"hi", "1", "1", "Derby"} {
		in.Content = text
		m.Handle(context.Background(), in)
	}
	sub := fc.subs[0]
	if sub.Name != "12345" || sub.Phone != "" || sub.Extra["sender_id"] != "12345" {
		t.Errorf("submission = %+v", sub)
	}
}

func TestSendersAreIndependent(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := connector.InboundMessage{Channel: "whatsapp", SenderID: fmt.Sprintf("9665%08d", i)}
			for _, text := range []string{"hi", "1", "1", "Concert"} {
				in.Content = text
				m.Handle(context.Background(), in)
			}
		}(i)
	}
	wg.Wait()

	if fc.count() != 20 {
		t.Errorf("expected 20 tickets, got %d", fc.count())
	}
}

func TestSameSenderSerialized(t *testing.T) {
	fc := &fakeCreator{}
	m := newMachine(fc)
	send(m, "hi", "1", "1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send(m, "Concert")
		}()
	}
	wg.Wait()

	// One message completes the ticket, one restarts, the rest re-prompt main_choice.
	if fc.count() != 1 {
		t.Errorf("expected exactly one ticket, got %d", fc.count())
	}
}

func TestResetSender(t *testing.T) {
	m := newMachine(&fakeCreator{})
	send(m, "hi", "1")
	m.ResetSender(context.Background(), msg(""))

	res := send(m, "1")
	if res.From != StepWelcome {
		t.Errorf("expected fresh conversation, got %s", res.From)
	}
}
