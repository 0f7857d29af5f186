package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
	"github.com/surtifrio/flowbot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService adapts the whatsmeow-backed client to the Service
// interface. Inbound chat messages and delivery receipts are surfaced through
// buffered channels.
type WhatsAppService struct {
	client whatsapp.Sender

	receiptCh  chan models.Receipt
	responseCh chan models.Response

	mu      sync.Mutex
	stopped bool
}

// NewWhatsAppService creates a Service backed by the given WhatsApp client.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{
		client:     client,
		receiptCh:  make(chan models.Receipt, DefaultChannelBufferSize),
		responseCh: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient strips formatting and validates the phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends one outbound message variant over WhatsApp. Button
// messages are flattened to a numbered list; media messages send the image
// with the text as caption.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrServiceStopped
	}
	s.mu.Unlock()

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outbound message: %w", err)
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	switch msg.Kind {
	case models.MessageKindMedia:
		return s.client.SendImage(ctx, canonical, msg.MediaURL, msg.Text)
	default:
		return s.client.SendMessage(ctx, canonical, msg.RenderText())
	}
}

// Start registers the whatsmeow event handler that feeds the receipt and
// response channels. It is a no-op for mock clients.
func (s *WhatsAppService) Start(ctx context.Context) error {
	client, ok := s.client.(*whatsapp.Client)
	if !ok {
		slog.Debug("WhatsAppService started without event source")
		return nil
	}

	client.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			body := extractMessageText(v)
			if body == "" {
				return
			}
			resp := models.Response{
				From: v.Info.Sender.User,
				Body: body,
				Time: v.Info.Timestamp.Unix(),
			}
			s.deliverResponse(resp)
		case *events.Receipt:
			status := receiptStatus(v)
			if status == "" {
				return
			}
			rec := models.Receipt{
				To:     v.MessageSource.Sender.User,
				Status: status,
				Time:   v.Timestamp.Unix(),
			}
			s.deliverReceipt(rec)
		}
	})
	slog.Info("WhatsAppService started event processing")
	return nil
}

// Stop closes the event channels. Further SendMessage calls fail with
// ErrServiceStopped.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receiptCh)
	close(s.responseCh)
	slog.Info("WhatsAppService stopped")
	return nil
}

// Receipts returns the channel of delivery status events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receiptCh
}

// Responses returns the channel of incoming customer messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responseCh
}

func (s *WhatsAppService) deliverResponse(resp models.Response) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.responseCh <- resp:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService response channel full, dropping message", "from", resp.From)
	}
}

func (s *WhatsAppService) deliverReceipt(rec models.Receipt) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.receiptCh <- rec:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipt channel full, dropping receipt", "to", rec.To)
	}
}

// extractMessageText pulls the text body from the message payload variants
// whatsmeow delivers.
func extractMessageText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if text := evt.Message.GetConversation(); text != "" {
		return text
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// receiptStatus maps whatsmeow receipt types onto delivery statuses.
func receiptStatus(evt *events.Receipt) models.MessageStatus {
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		return models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		return models.MessageStatusRead
	default:
		return ""
	}
}
