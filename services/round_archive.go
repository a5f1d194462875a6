// services/round_archive.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"live-arena-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Uploader stores a JSON blob and returns where it landed.
type Uploader func(ctx context.Context, key string, body []byte) (string, error)

// EventLogNotifier persists every log line.
type EventLogNotifier struct {
	DB *gorm.DB
}

func (n *EventLogNotifier) Notify(ctx context.Context, note Notification) {
	if note.Kind != NotifyLog || note.Log == nil {
		return
	}
	line := models.EventLogLine{
		ID:             uuid.NewString(),
		Type:           string(note.Log.Type),
		ExternalUserID: note.Log.ExternalUserID,
		Message:        note.Log.Message,
		RoundNumber:    note.Log.RoundNumber,
	}
	if err := n.DB.WithContext(ctx).Create(&line).Error; err != nil {
		log.Printf("[EVENTLOG] ❌ failed to persist %s line: %v", line.Type, err)
	}
}

const (
	defaultArchiveTimeout = 30 * time.Second
	roundBacklog          = 16
)

// RoundRecorder saves a RoundRecord whenever a round ends and, when an uploader is
// configured, archives the final standings as JSON. Notify only queues the round;
// the saving happens on the recorder's own goroutine so the game loop never waits on
// the database or object storage.
type RoundRecorder struct {
	DB      *gorm.DB
	Upload  Uploader
	Timeout time.Duration

	mu      sync.Mutex
	closed  bool
	pending chan RoundMarker
	wg      sync.WaitGroup
}

func NewRoundRecorder(db *gorm.DB, upload Uploader) *RoundRecorder {
	return &RoundRecorder{
		DB:      db,
		Upload:  upload,
		Timeout: defaultArchiveTimeout,
		pending: make(chan RoundMarker, roundBacklog),
	}
}

// Start launches the saving goroutine. Close drains it.
func (r *RoundRecorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for m := range r.pending {
			if _, err := r.Record(context.Background(), m); err != nil {
				log.Printf("[ROUND] ❌ failed to record round #%d: %v", m.Number, err)
			}
		}
	}()
}

// Close stops accepting rounds and waits until the queued ones are saved.
func (r *RoundRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.pending)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *RoundRecorder) Notify(_ context.Context, note Notification) {
	if note.Kind != NotifyRound || note.Round == nil || note.Round.Marker != MarkerEnd {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("[ROUND] ⚠️ recorder closed, round #%d not recorded", note.Round.Number)
		return
	}
	select {
	case r.pending <- *note.Round:
	default:
		log.Printf("[ROUND] ⚠️ backlog full, round #%d not recorded", note.Round.Number)
	}
}

// Record persists one finished round.
func (r *RoundRecorder) Record(ctx context.Context, m RoundMarker) (*models.RoundRecord, error) {
	standings, err := json.Marshal(m.Standings)
	if err != nil {
		return nil, fmt.Errorf("encode standings: %w", err)
	}
	rec := models.RoundRecord{
		ID:           uuid.NewString(),
		Number:       m.Number,
		Kind:         string(m.Kind),
		StartedAt:    m.Round.StartedAt,
		EndedAt:      m.Round.EndedAt,
		DurationSec:  int(m.Duration / time.Second),
		ForcedEnd:    m.Forced,
		Reversed:     m.Round.Reversed,
		DecisiveUsed: m.Round.DecisiveUsed,
		Standings:    string(standings),
		Eliminated:   strings.Join(m.Eliminated, ","),
	}

	if r.Upload != nil {
		key := ArchiveKey(m)
		uploadCtx, cancel := context.WithTimeout(ctx, r.timeout())
		url, err := r.Upload(uploadCtx, key, standings)
		cancel()
		switch {
		case err == nil:
			rec.ArchiveURL = url
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			log.Printf("[ROUND] ⚠️ archive upload for round #%d failed: %v", m.Number, err)
		}
	}

	saveCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	if err := r.DB.WithContext(saveCtx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("save round record: %w", err)
	}
	log.Printf("[ROUND] 🗂️  Recorded round #%d (%s), %d eliminated", m.Number, m.Kind, len(m.Eliminated))
	return &rec, nil
}

func (r *RoundRecorder) timeout() time.Duration {
	if r.Timeout <= 0 {
		return defaultArchiveTimeout
	}
	return r.Timeout
}

// ArchiveKey names the archived standings object, e.g.
// "rounds/2026-10-18/round-3-final.json".
func ArchiveKey(m RoundMarker) string {
	day := m.Round.EndedAt.UTC().Format("2006-01-02")
	return fmt.Sprintf("rounds/%s/%s.json", day, slug.Make(fmt.Sprintf("round %d %s", m.Number, m.Kind)))
}
