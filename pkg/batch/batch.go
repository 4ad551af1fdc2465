// Package batch buffers samples between transmissions.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/metrics"
	"github.com/itohio/picolimno/pkg/sample"
)

// DefaultCapacity is the pending batch size used when none is configured.
const DefaultCapacity = 8

// ErrEmpty is returned by Flush when there is nothing to send.
var ErrEmpty = errors.New("batch is empty")

// Sender delivers a serialized batch to the remote endpoint.
type Sender interface {
	SendSamples(ctx context.Context, samples []sample.Sample) error
}

// Batcher owns the pending batch: a bounded, insertion-ordered list of
// samples not yet delivered.
//
// A flush is due when the batch reaches its capacity or when an urgent
// (alert) sample is added. A failed flush keeps the batch; once full, the
// oldest sample is dropped to make room for a new one.
type Batcher struct {
	sender   Sender
	capacity int
	pending  []sample.Sample
	dropped  int
	log      logrus.FieldLogger
	obs      metrics.Observer
}

// New creates a Batcher. A capacity below 1 falls back to DefaultCapacity.
func New(sender Sender, capacity int, log logrus.FieldLogger, obs metrics.Observer) *Batcher {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if obs == nil {
		obs = metrics.Nop{}
	}
	return &Batcher{
		sender:   sender,
		capacity: capacity,
		pending:  make([]sample.Sample, 0, capacity),
		log:      log.WithField("component", "batch"),
		obs:      obs,
	}
}

// Add appends s and reports whether a flush is now due.
func (b *Batcher) Add(s sample.Sample) bool {
	b.push(s)
	return len(b.pending) >= b.capacity
}

// AddUrgent appends s and always reports a flush as due; alerts must not wait
// for the batch to fill.
func (b *Batcher) AddUrgent(s sample.Sample) bool {
	b.push(s)
	return true
}

func (b *Batcher) push(s sample.Sample) {
	if len(b.pending) >= b.capacity {
		lost := b.pending[0]
		copy(b.pending, b.pending[1:])
		b.pending = b.pending[:len(b.pending)-1]
		b.dropped++
		b.obs.Inc(metrics.SamplesDropped)
		b.log.WithField("sample", lost.String()).Warn("pending batch full, oldest sample dropped")
	}
	b.pending = append(b.pending, s)
	b.obs.Inc(metrics.SamplesEnqueued)
	b.obs.Set(metrics.PendingSamples, float64(len(b.pending)))
}

// Flush sends the whole pending batch in one request. The batch is cleared
// only when the sender succeeds.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return ErrEmpty
	}

	out := make([]sample.Sample, len(b.pending))
	copy(out, b.pending)

	if err := b.sender.SendSamples(ctx, out); err != nil {
		b.obs.Inc(metrics.Flushes, "failed")
		return fmt.Errorf("failed to flush %d samples: %w", len(out), err)
	}

	b.pending = b.pending[:0]
	b.obs.Inc(metrics.Flushes, "ok")
	b.obs.Set(metrics.PendingSamples, 0)
	b.log.WithField("samples", len(out)).Debug("batch flushed")
	return nil
}

// Len returns the number of pending samples.
func (b *Batcher) Len() int { return len(b.pending) }

// Cap returns the batch capacity.
func (b *Batcher) Cap() int { return b.capacity }

// Dropped returns how many samples were lost to overflow since start.
func (b *Batcher) Dropped() int { return b.dropped }

// Pending returns a copy of the pending samples in insertion order.
func (b *Batcher) Pending() []sample.Sample {
	out := make([]sample.Sample, len(b.pending))
	copy(out, b.pending)
	return out
}
