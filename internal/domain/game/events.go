package game

type EventKind string

const (
	EventInputCompleted    EventKind = "inputCompleted"
	EventMovementCompleted EventKind = "movementCompleted"
	EventMembershipChanged EventKind = "membershipChanged"
	EventTypingCleared     EventKind = "typingCleared"
	EventMessageWritten    EventKind = "messageWritten"
	EventOperationFinished EventKind = "operationFinished"
)

// Event is a state change an agent may be waiting on. Only the fields
// relevant to the kind are set.
type Event struct {
	Kind           EventKind        `json:"kind"`
	Time           int64            `json:"time"`
	InputID        string           `json:"inputId,omitempty"`
	PlayerID       string           `json:"playerId,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	AgentID        string           `json:"agentId,omitempty"`
	Status         MemberStatusKind `json:"status,omitempty"`
	MessageTime    int64            `json:"messageTime,omitempty"`
}

type ConditionKind string

const (
	WaitInputCompleted            ConditionKind = "inputCompleted"
	WaitMovementCompleted         ConditionKind = "movementCompleted"
	WaitConversationParticipating ConditionKind = "conversationParticipating"
	WaitNobodyTyping              ConditionKind = "nobodyTyping"
	WaitNewMessage                ConditionKind = "waitingForNewMessage"
	WaitMembershipChanged         ConditionKind = "membershipChanged"
	WaitOperationFinished         ConditionKind = "operationFinished"
	WaitUntil                     ConditionKind = "until"
)

// Condition is one reason a sleeping agent should be woken. Deadline, when
// non-zero, wakes the agent regardless of events.
type Condition struct {
	Kind           ConditionKind `json:"kind"`
	InputID        string        `json:"inputId,omitempty"`
	PlayerID       string        `json:"playerId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	AgentID        string        `json:"agentId,omitempty"`
	After          int64         `json:"after,omitempty"`
	Deadline       int64         `json:"deadline,omitempty"`
}

// EarliestDeadline returns the smallest non-zero deadline, or 0.
func EarliestDeadline(conds []Condition) int64 {
	var min int64
	for _, c := range conds {
		if c.Deadline == 0 {
			continue
		}
		if min == 0 || c.Deadline < min {
			min = c.Deadline
		}
	}
	return min
}
