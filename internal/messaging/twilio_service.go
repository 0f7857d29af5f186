package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
	"github.com/surtifrio/flowbot/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio WhatsApp
// Business API. Inbound messages arrive through the webhook handler rather
// than a live socket.
type TwilioService struct {
	client     twiliowhatsapp.Sender
	receiptCh  chan models.Receipt
	responseCh chan models.Response

	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a Service backed by the given Twilio client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:     client,
		receiptCh:  make(chan models.Receipt, DefaultChannelBufferSize),
		responseCh: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient strips formatting and validates the phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends one outbound message variant via Twilio and emits a sent
// receipt on success. Buttons are flattened to a numbered list since the
// Twilio text channel has no native button support.
func (s *TwilioService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outbound message: %w", err)
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService recipient validation failed", "error", err, "to", to)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	switch msg.Kind {
	case models.MessageKindMedia:
		err = s.client.SendMediaMessage(ctx, canonical, msg.MediaURL, msg.Text)
	default:
		err = s.client.SendMessage(ctx, canonical, msg.RenderText())
	}
	if err != nil {
		return err
	}

	s.safeEmitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Start is a no-op: inbound traffic comes through the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels after a short drain window.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receiptCh)
		close(s.responseCh)
	}()
	slog.Info("TwilioService stopped")
	return nil
}

// Receipts returns the channel of delivery status events.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receiptCh
}

// Responses returns the channel of incoming customer messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responseCh
}

// WebhookHandler handles inbound Twilio webhook requests. It parses the form
// payload and emits the message into the Responses() channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from", from)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Debug("Twilio webhook inbound message", "from", from, "body_length", len(body))
	s.safeEmitResponse(models.Response{
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case s.receiptCh <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService receipt channel full, dropping receipt", "to", receipt.To)
	}
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound response, service stopped", "from", response.From)
		return
	}

	select {
	case s.responseCh <- response:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService response channel full, dropping message", "from", response.From)
	}
}
