// Package flow implements the conversation flow engine: keyword-triggered
// nodes, the dispatch router, per-identity inactivity timers, and session
// management.
package flow

import (
	"context"

	"github.com/surtifrio/flowbot/internal/models"
)

// ActionFunc is the behavior of a flow node. It reads and mutates the session
// in place and returns the messages to deliver, in order. All mutable state
// lives in the session; nodes themselves are immutable definitions.
//
// input is the raw inbound text for trigger and capture dispatches, and ""
// when the node is entered through chaining. Capture nodes use it as the
// captured value; most nodes ignore it.
type ActionFunc func(ctx context.Context, session *models.Session, identity, input string) (Result, error)

// Result is what a node produces for one execution.
type Result struct {
	// Messages are delivered in declaration order.
	Messages []models.OutboundMessage
	// Next names a successor node to execute within the same dispatch,
	// after all of this node's messages have been delivered. Empty means
	// the dispatch ends here.
	Next string
	// Milestone, when set, is recorded in the conversation log.
	Milestone *models.Milestone
}

// Node is an immutable flow node definition: a set of trigger keywords, an
// action, and routing flags. Nodes never reference each other directly;
// chaining goes through Result.Next and the router.
type Node struct {
	// Name identifies the node for chaining and session tracking.
	Name string
	// Triggers are matched case-insensitively against inbound text.
	Triggers []string
	// Welcome marks this node as the first-contact entry point. At most one
	// registered node should set it.
	Welcome bool
	// Capture routes unmatched free text to this node while it is the
	// session's current flow (e.g. business-name entry).
	Capture bool
	// Action runs when the node is dispatched.
	Action ActionFunc
}

// Sender is the outbound side of the messaging collaborator consumed by the
// engine. Delivery failures are logged by callers and never abort a dispatch.
type Sender interface {
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error
}

// ConversationLog is the subset of the store the engine writes as a side
// effect of flow execution.
type ConversationLog interface {
	AppendConversationEntry(e models.ConversationEntry) error
	RecordMilestone(m models.Milestone) error
}

// SessionStore is the subset of the store used for session persistence.
type SessionStore interface {
	GetSession(identity string) (*models.Session, error)
	SaveSession(s models.Session) error
}
