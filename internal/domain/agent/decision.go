// Package agent decides what each AI agent does next and tracks the
// conditions that should wake a sleeping agent.
package agent

import (
	"aitown/internal/domain/game"
	"aitown/internal/domain/geometry"
)

type MessageKind string

const (
	MessageStart    MessageKind = "start"
	MessageContinue MessageKind = "continue"
	MessageLeave    MessageKind = "leave"
)

// Decision is one effect the executor applies on behalf of an agent.
// Adding a kind means adding a Visitor method, so every visitor stops
// compiling until it handles the new kind.
type Decision interface {
	Accept(v Visitor) error
}

type Visitor interface {
	Sleep(d Sleep) error
	TimeoutOperation(d TimeoutOperation) error
	Wander(d Wander) error
	Invite(d Invite) error
	AcceptInvite(d AcceptInvite) error
	RejectInvite(d RejectInvite) error
	WalkOver(d WalkOver) error
	LeaveConversation(d LeaveConversation) error
	SendMessage(d SendMessage) error
	Remember(d Remember) error
}

type Sleep struct{}

type TimeoutOperation struct {
	OperationID string
}

type Wander struct {
	InputID     string
	Destination geometry.Point
}

type Invite struct {
	InputID string
	Invitee string
}

type AcceptInvite struct {
	InputID        string
	ConversationID string
}

type RejectInvite struct {
	InputID        string
	ConversationID string
}

type WalkOver struct {
	InputID        string
	ConversationID string
	Destination    geometry.Point
}

type LeaveConversation struct {
	InputID        string
	ConversationID string
}

type SendMessage struct {
	OperationID    string
	MessageUUID    string
	ConversationID string
	OtherPlayerID  string
	Kind           MessageKind
}

type Remember struct {
	OperationID    string
	ConversationID string
}

func (d Sleep) Accept(v Visitor) error             { return v.Sleep(d) }
func (d TimeoutOperation) Accept(v Visitor) error  { return v.TimeoutOperation(d) }
func (d Wander) Accept(v Visitor) error            { return v.Wander(d) }
func (d Invite) Accept(v Visitor) error            { return v.Invite(d) }
func (d AcceptInvite) Accept(v Visitor) error      { return v.AcceptInvite(d) }
func (d RejectInvite) Accept(v Visitor) error      { return v.RejectInvite(d) }
func (d WalkOver) Accept(v Visitor) error          { return v.WalkOver(d) }
func (d LeaveConversation) Accept(v Visitor) error { return v.LeaveConversation(d) }
func (d SendMessage) Accept(v Visitor) error       { return v.SendMessage(d) }
func (d Remember) Accept(v Visitor) error          { return v.Remember(d) }

// Plan is the outcome of one decision: effects in order, then the
// conditions to sleep on.
type Plan struct {
	Decisions []Decision
	Wait      []game.Condition
}

// Name returns the decision kind for logs and tests.
func Name(d Decision) string {
	var n namer
	_ = d.Accept(&n)
	return n.name
}

type namer struct{ name string }

func (n *namer) Sleep(Sleep) error                         { n.name = "sleep"; return nil }
func (n *namer) TimeoutOperation(TimeoutOperation) error   { n.name = "timeoutOperation"; return nil }
func (n *namer) Wander(Wander) error                       { n.name = "wander"; return nil }
func (n *namer) Invite(Invite) error                       { n.name = "invite"; return nil }
func (n *namer) AcceptInvite(AcceptInvite) error           { n.name = "acceptInvite"; return nil }
func (n *namer) RejectInvite(RejectInvite) error           { n.name = "rejectInvite"; return nil }
func (n *namer) WalkOver(WalkOver) error                   { n.name = "walkOver"; return nil }
func (n *namer) LeaveConversation(LeaveConversation) error { n.name = "leaveConversation"; return nil }
func (n *namer) SendMessage(SendMessage) error             { n.name = "sendMessage"; return nil }
func (n *namer) Remember(Remember) error                   { n.name = "remember"; return nil }
