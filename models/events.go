package models

import "time"

// EventKind discriminates the inbound live-event records.
type EventKind string

const (
	EventGift   EventKind = "gift"
	EventChat   EventKind = "chat"
	EventMember EventKind = "member"
)

// LiveEvent is a normalized inbound record from the live-event feed.
// Only GiftEvent, ChatEvent and MemberEvent implement it.
type LiveEvent interface {
	MessageID() string
	Kind() EventKind
	Actor() Sender
}

// Sender identifies who caused an inbound event.
type Sender struct {
	ExternalID   string `json:"external_id"`
	Nickname     string `json:"nickname,omitempty"`
	Handle       string `json:"handle,omitempty"`
	FanClubLevel int    `json:"fan_club_level,omitempty"` // > 0 means fan club member
}

// GiftEvent is a gift sent during the live. Streakable gifts arrive once per repeat
// and are only credited on the RepeatEnd signal.
type GiftEvent struct {
	MsgID       string    `json:"msg_id"`
	From        Sender    `json:"from"`
	ReceiverID  string    `json:"receiver_id,omitempty"` // empty or host id means the host
	GiftID      int       `json:"gift_id"`
	GiftName    string    `json:"gift_name"`
	UnitValue   int64     `json:"unit_value"` // diamonds per single gift
	RepeatCount int       `json:"repeat_count"`
	Streakable  bool      `json:"streakable"`
	RepeatEnd   bool      `json:"repeat_end"`
	ReceivedAt  time.Time `json:"received_at"`
}

func (e GiftEvent) MessageID() string { return e.MsgID }
func (e GiftEvent) Kind() EventKind   { return EventGift }
func (e GiftEvent) Actor() Sender     { return e.From }

// ChatEvent is a chat comment.
type ChatEvent struct {
	MsgID      string    `json:"msg_id"`
	From       Sender    `json:"from"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

func (e ChatEvent) MessageID() string { return e.MsgID }
func (e ChatEvent) Kind() EventKind   { return EventChat }
func (e ChatEvent) Actor() Sender     { return e.From }

// MemberAction is the platform's membership action code.
type MemberAction int

const (
	MemberJoined MemberAction = 1
	MemberLeft   MemberAction = 2
)

// MemberEvent is a viewer entering or leaving the live room.
type MemberEvent struct {
	MsgID      string       `json:"msg_id"`
	From       Sender       `json:"from"`
	Action     MemberAction `json:"action"`
	ReceivedAt time.Time    `json:"received_at"`
}

func (e MemberEvent) MessageID() string { return e.MsgID }
func (e MemberEvent) Kind() EventKind   { return EventMember }
func (e MemberEvent) Actor() Sender     { return e.From }
