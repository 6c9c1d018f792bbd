package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// TypingIndicator shows a "typing" ack to the original message source
// while a packet is queued for a sleeping engine (spec §4.7). The
// Discord bot surface itself is out of scope (spec §1); this is the
// narrow hook a destination adapter implements.
type TypingIndicator interface {
	ShowTyping(ctx context.Context, destination string) error
}

// SleepAwarePoller polls the engine's /sleep/status at a fixed interval
// up to a maximum wait, then hands the packet back to the caller for
// normal processing (spec §4.7: "enqueue, show typing indicator, poll
// /sleep/status at 5s intervals up to 120s, then process").
type SleepAwarePoller struct {
	Engine       *EngineClient
	EngineURL    string
	Typing       TypingIndicator
	PollInterval time.Duration
	MaxWait      time.Duration
}

// NewSleepAwarePoller constructs a poller with the spec's defaults
// (5s interval, 120s max wait).
func NewSleepAwarePoller(engine *EngineClient, engineURL string, typing TypingIndicator) *SleepAwarePoller {
	return &SleepAwarePoller{
		Engine:       engine,
		EngineURL:    engineURL,
		Typing:       typing,
		PollInterval: 5 * time.Second,
		MaxWait:      120 * time.Second,
	}
}

// WaitForAwake shows a typing indicator and polls /sleep/status until the
// engine reports AWAKE or MaxWait elapses, in which case it returns the
// last known state rather than an error — the caller still attempts
// processing, matching spec §4.7's "then process" (not "then give up").
func (p *SleepAwarePoller) WaitForAwake(ctx context.Context, destination string) models.SleepState {
	if p.Typing != nil {
		if err := p.Typing.ShowTyping(ctx, destination); err != nil {
			log.Debug().Err(err).Str("destination", destination).Msg("gateway: typing indicator failed, continuing")
		}
	}

	deadline := time.Now().Add(p.MaxWait)
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		status, err := p.Engine.SleepStatus(ctx, p.EngineURL)
		if err == nil && status.State == models.StateAwake {
			return models.StateAwake
		}
		if time.Now().After(deadline) {
			if err == nil {
				return status.State
			}
			return models.StateSleeping
		}
		select {
		case <-ctx.Done():
			return models.StateSleeping
		case <-ticker.C:
		}
	}
}

// PendingEntry is one packet held by the sleep queue awaiting the engine
// to wake.
type PendingEntry struct {
	Packet      *models.CognitionPacket
	Destination string
	QueuedAt    time.Time
}

// Queue is a simple in-memory FIFO of packets queued while the primary
// engine reports SLEEPING. It is a gateway-local buffer, distinct from
// the engine's own sleepwake.PendingQueue (which holds packets the
// engine itself accepted then had to defer).
type Queue struct {
	entries chan PendingEntry
}

// NewQueue constructs a Queue with the given buffer capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{entries: make(chan PendingEntry, capacity)}
}

// Enqueue adds an entry, returning an error if the queue is full.
func (q *Queue) Enqueue(entry PendingEntry) error {
	select {
	case q.entries <- entry:
		return nil
	default:
		return fmt.Errorf("gateway: sleep queue full")
	}
}

// Drain returns every currently queued entry and empties the queue.
func (q *Queue) Drain() []PendingEntry {
	var out []PendingEntry
	for {
		select {
		case e := <-q.entries:
			out = append(out, e)
		default:
			return out
		}
	}
}
