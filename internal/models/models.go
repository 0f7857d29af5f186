// Package models defines the core data structures for flowbot.
//
// It includes the closed outbound-message variant type, conversation sessions,
// transcript entries, and milestones, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageKind discriminates the closed set of outbound message variants.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindButtons is a text message with selectable button labels.
	MessageKindButtons MessageKind = "buttons"
	// MessageKindMedia is a media message (URL) with fallback text.
	MessageKindMedia MessageKind = "media"
)

// Validation constants for outbound messages.
const (
	// MaxMessageBodyLength defines the maximum allowed length for message text
	MaxMessageBodyLength = 4096
	// MaxButtonLabelLength defines the maximum allowed length for button labels
	MaxButtonLabelLength = 100
	// MaxButtonCount defines the maximum number of buttons per message
	MaxButtonCount = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptyIdentity     = errors.New("identity cannot be empty")
	ErrEmptyMessageText  = errors.New("message text cannot be empty")
	ErrMessageTooLong    = errors.New("message text exceeds maximum length")
	ErrNoButtons         = errors.New("buttons message requires at least one button")
	ErrTooManyButtons    = errors.New("too many buttons")
	ErrEmptyButtonLabel  = errors.New("button label cannot be empty")
	ErrButtonLabelTooLong = errors.New("button label exceeds maximum length")
	ErrEmptyMediaURL     = errors.New("media message requires a media URL")
	ErrInvalidMessageKind = errors.New("invalid message kind")
)

// OutboundMessage is the closed variant type for everything the bot sends.
// Exactly one of the three kinds is valid at a time: plain text, text with
// buttons, or text with a media reference. Button labels double as future
// trigger strings for the flow router.
type OutboundMessage struct {
	Kind     MessageKind `json:"kind"`
	Text     string      `json:"text"`
	Buttons  []string    `json:"buttons,omitempty"`
	MediaURL string      `json:"media_url,omitempty"`
}

// TextMessage constructs a plain text outbound message.
func TextMessage(text string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindText, Text: text}
}

// ButtonsMessage constructs a text message with selectable button labels.
func ButtonsMessage(text string, buttons ...string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindButtons, Text: text, Buttons: buttons}
}

// MediaMessage constructs a media message with fallback text.
func MediaMessage(text, mediaURL string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindMedia, Text: text, MediaURL: mediaURL}
}

// Validate checks the variant invariants of an outbound message.
func (m *OutboundMessage) Validate() error {
	switch m.Kind {
	case MessageKindText:
		if m.Text == "" {
			return ErrEmptyMessageText
		}
		if len(m.Text) > MaxMessageBodyLength {
			return ErrMessageTooLong
		}
		return nil
	case MessageKindButtons:
		if m.Text == "" {
			return ErrEmptyMessageText
		}
		if len(m.Buttons) == 0 {
			return ErrNoButtons
		}
		if len(m.Buttons) > MaxButtonCount {
			return ErrTooManyButtons
		}
		for _, label := range m.Buttons {
			if label == "" {
				return ErrEmptyButtonLabel
			}
			if len(label) > MaxButtonLabelLength {
				return ErrButtonLabelTooLong
			}
		}
		return nil
	case MessageKindMedia:
		if m.MediaURL == "" {
			return ErrEmptyMediaURL
		}
		return nil
	default:
		return ErrInvalidMessageKind
	}
}

// RenderText flattens the message to plain text for transports without native
// buttons. Buttons are rendered as a numbered list below the body.
func (m *OutboundMessage) RenderText() string {
	if m.Kind != MessageKindButtons || len(m.Buttons) == 0 {
		return m.Text
	}
	var b strings.Builder
	b.WriteString(m.Text)
	for i, label := range m.Buttons {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, label))
	}
	return b.String()
}

// Role identifies the author of a transcript entry.
type Role string

const (
	// RoleUser marks messages written by the customer.
	RoleUser Role = "user"
	// RoleBot marks messages emitted by the bot.
	RoleBot Role = "bot"
)

// ConversationEntry is one line of the append-only conversation transcript.
type ConversationEntry struct {
	Identity        string    `json:"identity"`
	Role            Role      `json:"role"`
	Text            string    `json:"text"`
	InteractionKind string    `json:"interaction_kind,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// MilestoneKind classifies conversation milestones.
type MilestoneKind string

const (
	// MilestoneOrder marks a submitted order.
	MilestoneOrder MilestoneKind = "order"
	// MilestoneRegistration marks a completed business registration.
	MilestoneRegistration MilestoneKind = "registration"
	// MilestoneAdvisorContact marks a hand-off to a human advisor.
	MilestoneAdvisorContact MilestoneKind = "advisor_contact"
)

// Milestone records a notable event in a conversation.
type Milestone struct {
	Identity  string        `json:"identity"`
	Kind      MilestoneKind `json:"kind"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session holds the per-identity accumulated conversational state. Sessions are
// created lazily on first contact and are never deleted; the inactivity
// close-out resets CurrentFlow to root while keeping captured history.
type Session struct {
	Identity      string            `json:"identity"`
	CurrentFlow   string            `json:"current_flow"`
	Fields        map[string]string `json:"fields,omitempty"`
	Cart          []CartItem        `json:"cart,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	LastMessageAt time.Time         `json:"last_message_at"`
}

// Field returns a captured field value, or "" when absent.
func (s *Session) Field(name string) string {
	if s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// SetField stores a captured field value, allocating the map on first use.
func (s *Session) SetField(name, value string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[name] = value
}

// CartTotal sums the subtotals of all cart line items.
func (s *Session) CartTotal() float64 {
	var total float64
	for _, item := range s.Cart {
		total += item.Subtotal
	}
	return total
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
