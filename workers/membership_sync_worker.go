// workers/membership_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"live-arena-system/services"
	"live-arena-system/utils"
)

// MembershipChange is one fan/VIP record from the membership service.
type MembershipChange struct {
	ExternalID   string     `json:"external_id"`
	Nickname     string     `json:"nickname"`
	Handle       string     `json:"handle"`
	IsFan        bool       `json:"is_fan"`
	FanExpiresAt *time.Time `json:"fan_expires_at,omitempty"`
	IsVIP        bool       `json:"is_vip"`
	VIPExpiresAt *time.Time `json:"vip_expires_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// GetMembershipChangesResponse is the top-level structure of the membership service response.
type GetMembershipChangesResponse struct {
	Members []MembershipChange `json:"members"`
}

// MembershipApplier writes one membership change; the session serializes it with
// live events.
type MembershipApplier interface {
	ApplyMembership(ctx context.Context, m services.MembershipUpdate) error
}

type MembershipSyncWorker struct {
	applier      MembershipApplier
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/memberships"
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewMembershipSyncWorker(applier MembershipApplier, baseURL, endpointPath, serviceToken string) *MembershipSyncWorker {
	return &MembershipSyncWorker{
		applier:      applier,
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *MembershipSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Membership Sync Worker (membership service → viewers)…")
	go w.run(ctx)
}

func (w *MembershipSyncWorker) run(ctx context.Context) {
	if err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial membership sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Membership sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Membership Sync Worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the last successful sync and applies them.
func (w *MembershipSyncWorker) SyncOnce(ctx context.Context) error {
	sinceStr := w.since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid membership service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	if w.serviceToken != "" {
		req.Header.Set("X-Service-Token", w.serviceToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to membership service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Membership service returned %d for %s: %s", resp.StatusCode, finalURL, body)
		return fmt.Errorf("membership service non-200 response: %d: %s", resp.StatusCode, body)
	}

	var response GetMembershipChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode membership service response: %w", err)
	}
	if len(response.Members) == 0 {
		log.Printf("[SYNC] ✅ No membership changes since %s", sinceStr)
		return nil
	}

	var applied, failed int
	latest := w.since
	for _, m := range response.Members {
		if err := w.apply(ctx, m); err != nil {
			failed++
			log.Printf("[SYNC] ⚠️ Failed to apply membership for %q: %v", m.ExternalID, err)
			continue
		}
		applied++
		if m.UpdatedAt.After(latest) {
			latest = m.UpdatedAt
		}
	}
	w.since = latest

	log.Printf("[SYNC] ✅ Synced %d memberships (%d applied, %d errors). Cursor: %s",
		len(response.Members), applied, failed, latest.UTC().Format(time.RFC3339))
	return nil
}

func (w *MembershipSyncWorker) apply(ctx context.Context, m MembershipChange) error {
	return w.applier.ApplyMembership(ctx, services.MembershipUpdate{
		ExternalID:   m.ExternalID,
		Nickname:     m.Nickname,
		Handle:       m.Handle,
		IsFan:        m.IsFan,
		FanExpiresAt: m.FanExpiresAt,
		IsVIP:        m.IsVIP,
		VIPExpiresAt: m.VIPExpiresAt,
	})
}
