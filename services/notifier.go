// services/notifier.go
package services

import (
	"context"
	"log"
	"time"
)

// NotificationKind tells display and persistence collaborators what changed.
type NotificationKind string

const (
	NotifyArena     NotificationKind = "arena"
	NotifyQueue     NotificationKind = "queue"
	NotifyLog       NotificationKind = "log"
	NotifyInventory NotificationKind = "inventory"
	NotifyRound     NotificationKind = "round"
)

// LogType is the overlay category of a log line.
type LogType string

const (
	LogGift    LogType = "gift"
	LogQueue   LogType = "queue"
	LogBooster LogType = "booster"
	LogTwist   LogType = "twist"
	LogElim    LogType = "elim"
	LogJoin    LogType = "join"
)

// LogLine is one per-event log entry.
type LogLine struct {
	Type           LogType `json:"type"`
	ExternalUserID string  `json:"external_user_id,omitempty"`
	Message        string  `json:"message"`
	RoundNumber    int     `json:"round_number"`
}

// InventoryChange reports a viewer's new count for one twist kind.
type InventoryChange struct {
	ExternalUserID string    `json:"external_user_id"`
	Kind           TwistKind `json:"kind"`
	Delta          int       `json:"delta"`
	Quantity       int       `json:"quantity"`
}

// RoundMarker is a round lifecycle marker: start, grace or end.
type RoundMarker struct {
	Marker     string        `json:"marker"`
	Number     int           `json:"number"`
	Kind       RoundKind     `json:"kind"`
	Duration   time.Duration `json:"duration"`
	Forced     bool          `json:"forced,omitempty"`
	Eliminated []string      `json:"eliminated,omitempty"`
	Standings  []Standing    `json:"standings,omitempty"`
	Round      Round         `json:"round"`
}

// Notification is a single outbound state change; exactly one payload is set.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	At        time.Time        `json:"at"`
	Arena     *ArenaSnapshot   `json:"arena,omitempty"`
	Queue     []QueueRank      `json:"queue,omitempty"`
	Log       *LogLine         `json:"log,omitempty"`
	Inventory *InventoryChange `json:"inventory,omitempty"`
	Round     *RoundMarker     `json:"round,omitempty"`
}

// Notifier receives outbound notifications. Implementations must not block for long
// and report their own failures; the game never waits on a display.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Fanout delivers every notification to each notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, nt := range f {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

// LogNotifier writes log lines and round markers to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	switch n.Kind {
	case NotifyLog:
		log.Printf("[%s] %s", n.Log.Type, n.Log.Message)
	case NotifyRound:
		log.Printf("[ROUND] #%d %s %s (%s)", n.Round.Number, n.Round.Kind, n.Round.Marker, n.Round.Duration)
	}
}
