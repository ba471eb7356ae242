package missions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/athmos-ops/missionsync/pkg/connection"
	"github.com/athmos-ops/missionsync/pkg/logger"
)

// ErrPatchQueueFull is surfaced when edits outpace the remote store so badly
// that the outgoing patch queue overflows.
var ErrPatchQueueFull = errors.New("patch queue full")

// PatchSender is the slice of the store client the dispatcher needs.
type PatchSender interface {
	Merge(ctx context.Context, recordID string, patch map[string]any, idempotencyKey string) error
}

// DispatcherConfig configures a Dispatcher. The zero value is usable with a
// sender; everything else has defaults.
type DispatcherConfig struct {
	Sender PatchSender
	Logger logger.Logger

	// Retryer paces resends of a failed patch. Defaults to exponential
	// backoff capped at 5 attempts.
	Retryer connection.Retryer

	// SendTimeout bounds a single patch send attempt.
	SendTimeout time.Duration

	// OnError is invoked when a patch is dropped after exhausting retries.
	// The edit stays visible locally; this is the hook for an error banner.
	OnError func(missionID, field string, err error)

	// QueueSize is the outgoing patch queue capacity.
	QueueSize int
}

// pendingPatch is a locally applied, not yet acknowledged field value.
type pendingPatch struct {
	seq   uint64
	value any
}

type patchJob struct {
	missionID string
	field     string
	value     any
	seq       uint64
	key       string
}

// Dispatcher applies granular field edits to the currently open mission:
// synchronously to the local copy, then asynchronously as a single-field
// merge patch to the remote store. Patches are sent in issuance order with
// no coalescing; the last patch to arrive at the store wins. That
// last-write-wins trade-off is deliberate.
type Dispatcher struct {
	sender      PatchSender
	logger      logger.Logger
	retryer     connection.Retryer
	sendTimeout time.Duration
	onError     func(missionID, field string, err error)

	mu      sync.Mutex
	current *Mission
	seq     uint64
	pending map[string]pendingPatch

	queue chan patchJob
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewDispatcher creates a Dispatcher and starts its send worker. Close must
// be called to stop it.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop{}
	}
	retryer := cfg.Retryer
	if retryer == nil {
		r := connection.NewExponentialBackoffRetryer()
		r.InitialDelay = 200 * time.Millisecond
		r.MaxDelay = 5 * time.Second
		r.MaxRetries = 5
		retryer = r
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout == 0 {
		sendTimeout = 10 * time.Second
	}
	queueSize := cfg.QueueSize
	if queueSize == 0 {
		queueSize = 256
	}

	d := &Dispatcher{
		sender:      cfg.Sender,
		logger:      log,
		retryer:     retryer,
		sendTimeout: sendTimeout,
		onError:     cfg.OnError,
		pending:     make(map[string]pendingPatch),
		queue:       make(chan patchJob, queueSize),
		done:        make(chan struct{}),
	}

	d.wg.Add(1)
	go d.sendLoop()

	return d
}

// Close stops the send worker. Queued patches are still sent; patches issued
// after Close are rejected.
func (d *Dispatcher) Close() {
	close(d.done)
	d.wg.Wait()
}

// Open makes m the currently open mission. Pending patches of a previously
// open mission keep draining; new edits target m.
func (d *Dispatcher) Open(m Mission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = &m
	d.pending = make(map[string]pendingPatch)
}

// CloseMission forgets the currently open mission. In-flight patches are not
// aborted.
func (d *Dispatcher) CloseMission() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.pending = make(map[string]pendingPatch)
}

// Current returns a copy of the currently open mission. This is what the UI
// reads, so every applied edit is immediately visible here.
func (d *Dispatcher) Current() (Mission, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return Mission{}, false
	}
	return *d.current, true
}

// ApplyField replaces the named field of the open mission with value. The
// local copy is always updated before the remote patch is issued, never
// after; the remote send is asynchronous and fire-and-forget from the
// caller's perspective.
func (d *Dispatcher) ApplyField(field string, value any) error {
	d.mu.Lock()

	if d.current == nil {
		d.mu.Unlock()
		return ErrNoOpenMission
	}

	// Shallow copy, then set, so a reader holding the previous snapshot is
	// never mutated under its feet.
	next := *d.current
	if err := setField(&next, field, value); err != nil {
		d.mu.Unlock()
		return err
	}

	d.current = &next
	d.seq++
	seq := d.seq
	d.pending[field] = pendingPatch{seq: seq, value: value}
	missionID := next.ID

	d.mu.Unlock()

	job := patchJob{
		missionID: missionID,
		field:     field,
		value:     value,
		seq:       seq,
		key:       uuid.NewString(),
	}

	select {
	case d.queue <- job:
		return nil
	default:
		d.fail(job, ErrPatchQueueFull)
		return ErrPatchQueueFull
	}
}

// Reconcile merges a remote snapshot of the open mission into the local
// view. Fields with a pending (unacknowledged) local patch keep their local
// value, so a stale echo from the store never clobbers a fresher edit. It
// returns the reconciled mission as now visible locally.
func (d *Dispatcher) Reconcile(remote Mission) Mission {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil || d.current.ID != remote.ID {
		return remote
	}

	merged := remote
	for field, p := range d.pending {
		if err := setField(&merged, field, p.value); err != nil {
			d.logger.Error("reconcile: cannot reapply pending field", "field", field, "error", err)
		}
	}

	d.current = &merged
	return merged
}

func (d *Dispatcher) sendLoop() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.queue:
			d.send(job)
		case <-d.done:
			// Drain what was queued before Close.
			for {
				select {
				case job := <-d.queue:
					d.send(job)
				default:
					return
				}
			}
		}
	}
}

// send pushes one patch to the store, retrying transient failures. The job
// keeps its idempotency key across attempts so the store can deduplicate.
func (d *Dispatcher) send(job patchJob) {
	patch := map[string]any{job.field: job.value}

	attempt := 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.sender.Merge(ctx, job.missionID, patch, job.key)
		cancel()

		if err == nil {
			d.ack(job)
			d.retryer.Reset()
			return
		}

		delay, retry := d.retryer.NextDelay(attempt, err)
		if !retry {
			d.fail(job, err)
			return
		}
		attempt++

		d.logger.Warn("patch send failed, retrying",
			"mission", job.missionID, "field", job.field, "error", err, "delay", delay)

		select {
		case <-time.After(delay):
		case <-d.done:
			// Last chance before shutdown.
			ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			err := d.sender.Merge(ctx, job.missionID, patch, job.key)
			cancel()
			if err != nil {
				d.fail(job, err)
				return
			}
			d.ack(job)
			return
		}
	}
}

// ack clears the pending entry if this patch is still the newest one for its
// field.
func (d *Dispatcher) ack(job patchJob) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[job.field]; ok && p.seq == job.seq {
		delete(d.pending, job.field)
	}
}

func (d *Dispatcher) fail(job patchJob, err error) {
	d.logger.Error("patch dropped",
		"mission", job.missionID, "field", job.field, "error", err)
	if d.onError != nil {
		d.onError(job.missionID, job.field, err)
	}
}
