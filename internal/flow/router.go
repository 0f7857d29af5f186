// Package flow provides the dispatch router for keyword-triggered flow nodes.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surtifrio/flowbot/internal/models"
)

// Router dispatches inbound chat events to registered flow nodes. Matching is
// a case-insensitive exact comparison against each node's trigger list;
// registration order breaks ties, so the first-registered match always wins.
// A dispatch that matches no node and has no capture target is a silent
// no-op, not an error.
type Router struct {
	nodes    []*Node
	byName   map[string]*Node
	welcome  *Node
	sessions *SessionManager
	timers   *InactivityMonitor
	sender   Sender
	log      ConversationLog
}

// NewRouter creates a Router wired to its collaborators. Nodes are added with
// Register before the first dispatch; the router is not safe for concurrent
// registration.
func NewRouter(sessions *SessionManager, timers *InactivityMonitor, sender Sender, log ConversationLog) *Router {
	slog.Debug("Creating Router")
	return &Router{
		byName:   make(map[string]*Node),
		sessions: sessions,
		timers:   timers,
		sender:   sender,
		log:      log,
	}
}

// Register adds a node. Registration order is significant: when two nodes
// share a trigger, dispatch selects the earlier registration.
func (r *Router) Register(n *Node) error {
	if n.Name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if n.Action == nil {
		return fmt.Errorf("node %s has no action", n.Name)
	}
	if _, exists := r.byName[n.Name]; exists {
		return fmt.Errorf("node %s already registered", n.Name)
	}
	r.nodes = append(r.nodes, n)
	r.byName[n.Name] = n
	if n.Welcome && r.welcome == nil {
		r.welcome = n
	}
	slog.Debug("Router node registered", "node", n.Name, "triggers", len(n.Triggers), "welcome", n.Welcome, "capture", n.Capture)
	return nil
}

// Node returns a registered node by name, or nil.
func (r *Router) Node(name string) *Node {
	return r.byName[name]
}

// Dispatch routes one inbound message for an identity. On a successful match
// it resets the identity's inactivity timer exactly once, appends the inbound
// message to the transcript, executes the node (and any chained successors
// within this same dispatch, preserving message order), and persists the
// session. Delivery failures are logged and swallowed; persistence failures
// abort and are returned.
func (r *Router) Dispatch(ctx context.Context, identity, text string) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	slog.Debug("Router Dispatch invoked", "identity", identity, "text_length", len(text))

	sess, err := r.sessions.Get(identity)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	node := r.resolve(sess, text)
	if node == nil {
		slog.Debug("Router Dispatch no matching node, ignoring", "identity", identity)
		return nil
	}

	if sess == nil {
		sess, err = r.sessions.Ensure(identity)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	} else {
		sess.LastMessageAt = time.Now()
	}

	// Cross-cutting contract: every successful dispatch refreshes the
	// identity's close-out timer, once per dispatch even when chaining.
	r.timers.Reset(identity)

	if err := r.log.AppendConversationEntry(models.ConversationEntry{
		Identity:  identity,
		Role:      models.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to append inbound message: %w", err)
	}

	if err := r.run(ctx, node, sess, identity, text); err != nil {
		return err
	}

	if err := r.sessions.Save(sess); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	slog.Info("Router Dispatch completed", "identity", identity, "node", node.Name, "currentFlow", sess.CurrentFlow)
	return nil
}

// resolve selects the node for an inbound text: trigger match in registration
// order, then the welcome node on first contact, then the session's current
// node when it captures free text.
func (r *Router) resolve(sess *models.Session, text string) *Node {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, n := range r.nodes {
		for _, trigger := range n.Triggers {
			if normalized == strings.ToLower(trigger) {
				return n
			}
		}
	}
	if sess == nil {
		return r.welcome
	}
	if sess.CurrentFlow != "" {
		if current := r.byName[sess.CurrentFlow]; current != nil && current.Capture {
			return current
		}
	}
	return nil
}

// run executes a node and any chained successors, delivering each node's
// messages in declaration order and all of a predecessor's messages before
// any successor's.
func (r *Router) run(ctx context.Context, node *Node, sess *models.Session, identity, input string) error {
	for node != nil {
		sess.CurrentFlow = node.Name
		result, err := node.Action(ctx, sess, identity, input)
		if err != nil {
			slog.Error("Router node action failed", "error", err, "node", node.Name, "identity", identity)
			return fmt.Errorf("node %s failed: %w", node.Name, err)
		}

		for _, msg := range result.Messages {
			if err := r.sender.SendMessage(ctx, identity, msg); err != nil {
				// Delivery failures are non-fatal and must not abort
				// the remaining steps of the node action.
				slog.Error("Router message delivery failed", "error", err, "node", node.Name, "identity", identity)
			}
			if err := r.log.AppendConversationEntry(models.ConversationEntry{
				Identity:        identity,
				Role:            models.RoleBot,
				Text:            msg.RenderText(),
				InteractionKind: string(msg.Kind),
				Timestamp:       time.Now(),
			}); err != nil {
				return fmt.Errorf("failed to append outbound message: %w", err)
			}
		}

		if result.Milestone != nil {
			if err := r.log.RecordMilestone(*result.Milestone); err != nil {
				return fmt.Errorf("failed to record milestone: %w", err)
			}
			slog.Info("Router milestone recorded", "identity", identity, "kind", result.Milestone.Kind)
		}

		if result.Next == "" {
			return nil
		}
		next := r.byName[result.Next]
		if next == nil {
			slog.Error("Router chained node not found", "node", node.Name, "next", result.Next)
			return fmt.Errorf("node %s chained to unknown node %s", node.Name, result.Next)
		}
		slog.Debug("Router chaining to successor", "from", node.Name, "to", next.Name, "identity", identity)
		node = next
		input = ""
	}
	return nil
}
