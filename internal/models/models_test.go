package models

import (
	"strings"
	"testing"
)

func TestOutboundMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     OutboundMessage
		wantErr error
	}{
		{"valid text", TextMessage("hola"), nil},
		{"empty text", OutboundMessage{Kind: MessageKindText}, ErrEmptyMessageText},
		{"text too long", TextMessage(strings.Repeat("a", MaxMessageBodyLength+1)), ErrMessageTooLong},
		{"valid buttons", ButtonsMessage("elige", "Pedido", "Recetas"), nil},
		{"buttons without labels", OutboundMessage{Kind: MessageKindButtons, Text: "elige"}, ErrNoButtons},
		{"empty button label", ButtonsMessage("elige", "Pedido", ""), ErrEmptyButtonLabel},
		{"too many buttons", ButtonsMessage("elige", make([]string, MaxButtonCount+1)...), ErrTooManyButtons},
		{"valid media", MediaMessage("recetas", "https://example.com/r.jpg"), nil},
		{"media without URL", OutboundMessage{Kind: MessageKindMedia, Text: "recetas"}, ErrEmptyMediaURL},
		{"unknown kind", OutboundMessage{Kind: "sticker", Text: "x"}, ErrInvalidMessageKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRenderText(t *testing.T) {
	textMsg := TextMessage("hola")
	if got := textMsg.RenderText(); got != "hola" {
		t.Errorf("text render = %q", got)
	}
	mediaMsg := MediaMessage("recetas", "https://example.com/r.jpg")
	if got := mediaMsg.RenderText(); got != "recetas" {
		t.Errorf("media render = %q", got)
	}
	buttonsMsg := ButtonsMessage("elige", "Pedido", "Recetas")
	got := buttonsMsg.RenderText()
	want := "elige\n1. Pedido\n2. Recetas"
	if got != want {
		t.Errorf("buttons render = %q, want %q", got, want)
	}
}

func TestCartItemValidate(t *testing.T) {
	valid := CartItem{ProductName: "Alitas BBQ", Quantity: 2, UnitPrice: 9800}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid item rejected: %v", err)
	}

	tests := []struct {
		name string
		item CartItem
		want error
	}{
		{"empty name", CartItem{Quantity: 1, UnitPrice: 100}, ErrEmptyProductName},
		{"zero quantity", CartItem{ProductName: "x", Quantity: 0, UnitPrice: 100}, ErrInvalidQuantity},
		{"negative quantity", CartItem{ProductName: "x", Quantity: -1, UnitPrice: 100}, ErrInvalidQuantity},
		{"negative price", CartItem{ProductName: "x", Quantity: 1, UnitPrice: -1}, ErrInvalidUnitPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.item.Validate(); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOrderValidate(t *testing.T) {
	order := Order{
		Phone:         "3001112233",
		LineItems:     []CartItem{{ProductName: "Alitas BBQ", Quantity: 1, UnitPrice: 9800}},
		Status:        OrderStatusPending,
		StatusHistory: []StatusChange{{Status: OrderStatusPending}},
	}
	if err := order.Validate(); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}

	noPhone := order
	noPhone.Phone = ""
	if err := noPhone.Validate(); err != ErrEmptyOrderPhone {
		t.Errorf("err = %v, want ErrEmptyOrderPhone", err)
	}

	noItems := order
	noItems.LineItems = nil
	if err := noItems.Validate(); err != ErrNoLineItems {
		t.Errorf("err = %v, want ErrNoLineItems", err)
	}

	badStatus := order
	badStatus.Status = "archived"
	if err := badStatus.Validate(); err != ErrInvalidOrderStatus {
		t.Errorf("err = %v, want ErrInvalidOrderStatus", err)
	}

	noHistory := order
	noHistory.StatusHistory = nil
	if err := noHistory.Validate(); err != ErrEmptyStatusHistory {
		t.Errorf("err = %v, want ErrEmptyStatusHistory", err)
	}
}

func TestSessionFields(t *testing.T) {
	var s Session
	if got := s.Field("client_type"); got != "" {
		t.Errorf("Field on empty session = %q", got)
	}
	s.SetField("client_type", "hogar")
	if got := s.Field("client_type"); got != "hogar" {
		t.Errorf("Field = %q, want hogar", got)
	}
	s.Cart = []CartItem{{Subtotal: 100}, {Subtotal: 250}}
	if got := s.CartTotal(); got != 350 {
		t.Errorf("CartTotal = %v, want 350", got)
	}
}
