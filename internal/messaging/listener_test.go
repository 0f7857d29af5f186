package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

type fakeDispatcher struct {
	calls chan dispatchCall
	fail  bool
}

type dispatchCall struct {
	identity string
	text     string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan dispatchCall, 10)}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, identity, text string) error {
	f.calls <- dispatchCall{identity: identity, text: text}
	if f.fail {
		return errors.New("dispatch failed")
	}
	return nil
}

// fakeService implements Service with a manually fed responses channel.
type fakeService struct {
	responses chan models.Response
	receipts  chan models.Receipt
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(chan models.Response, 10),
		receipts:  make(chan models.Receipt, 10),
	}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

func (f *fakeService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error                     { return nil }

func (f *fakeService) Receipts() <-chan models.Receipt   { return f.receipts }
func (f *fakeService) Responses() <-chan models.Response { return f.responses }

func TestProcessResponseCanonicalizesSender(t *testing.T) {
	dispatcher := newFakeDispatcher()
	l := NewListener(newFakeService(), dispatcher)

	if err := l.ProcessResponse(context.Background(), "whatsapp:+573001112233", "hola"); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	call := <-dispatcher.calls
	if call.identity != "573001112233" {
		t.Errorf("identity = %q, want canonical digits", call.identity)
	}
	if call.text != "hola" {
		t.Errorf("text = %q", call.text)
	}
}

func TestProcessResponseRejectsInvalidSender(t *testing.T) {
	dispatcher := newFakeDispatcher()
	l := NewListener(newFakeService(), dispatcher)

	if err := l.ProcessResponse(context.Background(), "not-a-number", "hola"); err == nil {
		t.Error("expected error for invalid sender")
	}
	select {
	case call := <-dispatcher.calls:
		t.Errorf("unexpected dispatch: %+v", call)
	default:
	}
}

func TestProcessResponseReturnsDispatchError(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.fail = true
	l := NewListener(newFakeService(), dispatcher)

	if err := l.ProcessResponse(context.Background(), "3001112233", "hola"); err == nil {
		t.Error("expected dispatch error to surface")
	}
}

func TestListenerStartDrainsResponses(t *testing.T) {
	svc := newFakeService()
	dispatcher := newFakeDispatcher()
	l := NewListener(svc, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	svc.responses <- models.Response{From: "3001112233", Body: "hola", Time: time.Now().Unix()}
	svc.responses <- models.Response{From: "3001112233", Body: "pedido", Time: time.Now().Unix()}

	for _, want := range []string{"hola", "pedido"} {
		select {
		case call := <-dispatcher.calls:
			if call.text != want {
				t.Errorf("dispatched %q, want %q", call.text, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("dispatch %q never happened", want)
		}
	}
}

func TestListenerStopsOnClosedChannel(t *testing.T) {
	svc := newFakeService()
	dispatcher := newFakeDispatcher()
	l := NewListener(svc, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	close(svc.responses)
	// The loop must exit without dispatching anything.
	select {
	case call := <-dispatcher.calls:
		t.Errorf("unexpected dispatch: %+v", call)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenerContinuesAfterDispatchError(t *testing.T) {
	svc := newFakeService()
	dispatcher := newFakeDispatcher()
	dispatcher.fail = true
	l := NewListener(svc, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	svc.responses <- models.Response{From: "3001112233", Body: "uno"}
	svc.responses <- models.Response{From: "3001112233", Body: "dos"}

	for i := 0; i < 2; i++ {
		select {
		case <-dispatcher.calls:
		case <-time.After(time.Second):
			t.Fatal("listener stopped after a dispatch error")
		}
	}
}
