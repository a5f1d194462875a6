// workers/feed_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"live-arena-system/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// ErrFeedExhausted means the feed could not be re-established within the attempt cap.
// No further events can be credited; callers should treat it as fatal.
var ErrFeedExhausted = errors.New("live-event feed reconnect attempts exhausted")

// EventSink accepts normalized events.
type EventSink interface {
	Submit(ctx context.Context, ev models.LiveEvent) error
}

// FeedWorker reads the live-event bridge over a websocket and forwards every
// normalized event to the sink.
type FeedWorker struct {
	url         string
	sink        EventSink
	maxAttempts uint
	dialer      *websocket.Dialer
	header      http.Header

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Now             func() time.Time
}

func NewFeedWorker(url string, sink EventSink, maxAttempts uint) *FeedWorker {
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	return &FeedWorker{
		url:             url,
		sink:            sink,
		maxAttempts:     maxAttempts,
		dialer:          &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		header:          http.Header{},
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Now:             time.Now,
	}
}

// SetHeader adds a header sent on every dial (e.g. a bridge token).
func (w *FeedWorker) SetHeader(key, value string) {
	w.header.Set(key, value)
}

// Run connects and reads until ctx is done. Each outage gets a fresh retry budget;
// when one runs out Run returns ErrFeedExhausted.
func (w *FeedWorker) Run(ctx context.Context) error {
	log.Printf("[FEED] 🔌 Connecting to %s", w.url)
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return w.dial(ctx)
		},
			backoff.WithBackOff(w.newBackOff()),
			backoff.WithMaxTries(w.maxAttempts),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Printf("[FEED] ⚠️ connect failed: %v (retrying in %s)", err, next.Round(time.Millisecond))
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[FEED] ❌ giving up after %d attempts: %v", w.maxAttempts, err)
			return fmt.Errorf("%w: %v", ErrFeedExhausted, err)
		}

		log.Printf("[FEED] ✅ Connected")
		err = w.consume(ctx, conn)
		if ctx.Err() != nil {
			log.Println("⏹️ Feed worker stopped")
			return ctx.Err()
		}
		log.Printf("[FEED] ⚠️ connection lost: %v; reconnecting", err)
	}
}

func (w *FeedWorker) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.InitialInterval
	b.MaxInterval = w.MaxInterval
	return b
}

func (w *FeedWorker) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(fmt.Errorf("feed rejected credentials: %s", resp.Status))
		}
		return nil, err
	}
	return conn, nil
}

// consume reads messages until the connection fails or ctx is done.
func (w *FeedWorker) consume(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := NormalizeFeedMessage(raw, w.Now())
		if err != nil {
			log.Printf("[FEED] Dropping message: %v", err)
			continue
		}
		if err := w.sink.Submit(ctx, ev); err != nil && ctx.Err() == nil {
			log.Printf("[FEED] ⚠️ %s event %s not queued: %v", ev.Kind(), ev.MessageID(), err)
		}
	}
}
