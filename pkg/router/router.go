// Package router is the in-process predecessor of the A2A transport: a
// typed pub/sub fabric between co-located agents. It survives for the
// legacy coordinator path and for tests that need agents without HTTP.
package router

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MessageType discriminates the message union.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeCommand      MessageType = "command"
)

// Command actions.
const (
	ActionCancel   = "cancel"
	ActionShutdown = "shutdown"
)

// Message is one routed message. Exactly one payload field matches Type.
type Message struct {
	Type      MessageType
	From      string
	To        string
	Timestamp time.Time

	Request      *Request
	Response     *Response
	Notification *Notification
	Command      *Command
}

// Request asks an agent to do work.
type Request struct {
	ID     string
	Action string
	Params map[string]any
}

// Response answers a Request by id.
type Response struct {
	RequestID string
	Result    any
	Err       string
}

// Notification is a one-way progress signal.
type Notification struct {
	Event string
	Data  any
}

// Command instructs agents; Broadcast sends it to everyone.
type Command struct {
	Action string
	Reason string
}

// Handler consumes messages addressed to one agent. Handlers run on the
// agent's mailbox goroutine; a slow handler delays only its own agent.
type Handler func(msg Message)

// mailboxBuffer bounds each agent's inbox.
const mailboxBuffer = 128

type mailbox struct {
	ch   chan Message
	done chan struct{}
}

// Router delivers messages between registered agents. Per-publisher
// order is preserved: each agent drains its mailbox sequentially.
type Router struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	taps      map[MessageType][]chan Message
	closed    bool
	logger    *slog.Logger
}

// New creates an empty router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		mailboxes: make(map[string]*mailbox),
		taps:      make(map[MessageType][]chan Message),
		logger:    logger,
	}
}

// Register attaches an agent under its id. The handler runs on a
// dedicated goroutine until Unregister or Close.
func (r *Router) Register(agentID string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("router is closed")
	}
	if _, exists := r.mailboxes[agentID]; exists {
		return fmt.Errorf("agent %s is already registered", agentID)
	}

	mb := &mailbox{
		ch:   make(chan Message, mailboxBuffer),
		done: make(chan struct{}),
	}
	r.mailboxes[agentID] = mb

	go func() {
		for {
			select {
			case <-mb.done:
				return
			case msg, ok := <-mb.ch:
				if !ok {
					return
				}
				handler(msg)
			}
		}
	}()

	return nil
}

// Unregister detaches an agent and stops its mailbox goroutine.
func (r *Router) Unregister(agentID string) {
	r.mu.Lock()
	mb, ok := r.mailboxes[agentID]
	if ok {
		delete(r.mailboxes, agentID)
	}
	r.mu.Unlock()

	if ok {
		close(mb.done)
	}
}

// Publish delivers msg to the agent it is addressed to.
func (r *Router) Publish(to string, msg Message) error {
	msg.To = to
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("router is closed")
	}
	mb, ok := r.mailboxes[to]
	if !ok {
		return fmt.Errorf("no agent registered as %s", to)
	}

	select {
	case mb.ch <- msg:
	default:
		return fmt.Errorf("mailbox of %s is full", to)
	}

	r.tap(msg)
	return nil
}

// Broadcast sends a command to every registered agent. Full mailboxes
// are skipped with a warning; a broadcast never blocks.
func (r *Router) Broadcast(from string, cmd Command) {
	msg := Message{
		Type:      TypeCommand,
		From:      from,
		Timestamp: time.Now().UTC(),
		Command:   &cmd,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for agentID, mb := range r.mailboxes {
		delivered := msg
		delivered.To = agentID
		select {
		case mb.ch <- delivered:
		default:
			r.logger.Warn("broadcast skipped full mailbox", "agent", agentID, "action", cmd.Action)
		}
	}
	r.tap(msg)
}

// Subscribe taps every message of one type, regardless of addressee.
// The returned channel closes on Close.
func (r *Router) Subscribe(msgType MessageType) <-chan Message {
	ch := make(chan Message, mailboxBuffer)

	r.mu.Lock()
	r.taps[msgType] = append(r.taps[msgType], ch)
	r.mu.Unlock()

	return ch
}

// tap mirrors a message to type subscribers. Callers hold at least the
// read lock.
func (r *Router) tap(msg Message) {
	for _, ch := range r.taps[msg.Type] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close stops all mailboxes and closes subscriber channels.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for agentID, mb := range r.mailboxes {
		close(mb.done)
		delete(r.mailboxes, agentID)
	}
	for msgType, channels := range r.taps {
		for _, ch := range channels {
			close(ch)
		}
		delete(r.taps, msgType)
	}
}
