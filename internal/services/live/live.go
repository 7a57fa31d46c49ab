// Package live streams act snapshots to subscribers by polling storage.
package live

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

type EventType string

const (
	EventConnected EventType = "connected"
	EventData      EventType = "data"
	EventError     EventType = "error"
	EventEnd       EventType = "end"
)

// End reasons.
const (
	ReasonCompleted = "completed"
	ReasonCancelled = "cancelled"
	ReasonTimeout   = "timeout"
)

// Event is one frame of an act stream.
type Event struct {
	Type    EventType    `json:"type"`
	Act     *giselle.Act `json:"act,omitempty"`
	Message string       `json:"message,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        clock.Clock
}

// Distributor polls acts for subscribers. Every subscription owns its own
// loop; nothing is shared between subscribers.
type Distributor struct {
	acts     ports.ActReader
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock

	subscribers atomic.Int64
}

// New returns a Distributor. Zero options mean a 500ms poll interval, a
// 20 minute timeout and the real clock.
func New(acts ports.ActReader, opts Options) *Distributor {
	d := &Distributor{
		acts:     acts,
		interval: opts.PollInterval,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
	}
	if d.interval <= 0 {
		d.interval = 500 * time.Millisecond
	}
	if d.timeout <= 0 {
		d.timeout = 20 * time.Minute
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}
	return d
}

// Subscribers reports how many streams are open.
func (d *Distributor) Subscribers() int {
	return int(d.subscribers.Load())
}

// Stream emits connected, then a data event whenever the act changes, and
// finally end. The channel is closed when the stream stops: the act became
// terminal, ctx was cancelled, or the timeout elapsed. Fetch failures are
// reported as error events and polling continues.
func (d *Distributor) Stream(ctx context.Context, actID string) <-chan Event {
	ch := make(chan Event)
	d.subscribers.Add(1)
	go func() {
		defer close(ch)
		defer d.subscribers.Add(-1)
		d.run(ctx, actID, ch)
	}()
	return ch
}

func (d *Distributor) run(ctx context.Context, actID string, ch chan<- Event) {
	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	deadline := d.clock.NewTimer(d.timeout)
	defer deadline.Stop()
	poll := d.clock.NewTimer(d.interval)
	defer poll.Stop()

	if !send(Event{Type: EventConnected}) {
		return
	}

	var (
		last uint64
		seen bool
	)
	// check reports whether the stream is over.
	check := func() bool {
		act, err := d.acts.GetAct(ctx, actID)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			slog.Warn("live: fetch act failed", "act_id", actID, "err", err)
			return !send(Event{Type: EventError, Message: err.Error()})
		}
		if fp := Fingerprint(act); !seen || fp != last {
			seen, last = true, fp
			if !send(Event{Type: EventData, Act: act}) {
				return true
			}
		}
		if act.IsTerminal() {
			send(Event{Type: EventEnd, Reason: ReasonCompleted})
			return true
		}
		return false
	}

	if check() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			select {
			case ch <- Event{Type: EventEnd, Reason: ReasonCancelled}:
			default:
			}
			return
		case <-deadline.C():
			slog.Info("live: stream timed out", "act_id", actID)
			send(Event{Type: EventEnd, Reason: ReasonTimeout})
			return
		case <-poll.C():
			poll.Reset(d.interval)
			if check() {
				return
			}
		}
	}
}

// Fingerprint hashes the update markers of an act and its sequences and
// steps. Two snapshots with the same fingerprint show the same state.
func Fingerprint(act *giselle.Act) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	mark := func(id string, status giselle.ActStatus, at time.Time) {
		io.WriteString(h, id)
		h.Write([]byte{0})
		io.WriteString(h, string(status))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(at.UnixNano()))
		h.Write(buf[:])
	}
	mark(act.ID, act.Status, act.UpdatedAt)
	for _, seq := range act.Sequences {
		mark(seq.ID, seq.Status, seq.UpdatedAt)
		for _, step := range seq.Steps {
			mark(step.ID, step.Status, step.UpdatedAt)
		}
	}
	return h.Sum64()
}

// WriteSSE writes ev as one server-sent event frame.
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
