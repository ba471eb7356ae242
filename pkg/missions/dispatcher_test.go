package missions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athmos-ops/missionsync/pkg/connection"
)

// recordingSender captures merge patches, optionally delaying or failing.
type recordingSender struct {
	mu      sync.Mutex
	patches []sentPatch
	delay   time.Duration
	failFor int // fail this many calls before succeeding
}

type sentPatch struct {
	recordID string
	patch    map[string]any
	key      string
}

func (r *recordingSender) Merge(ctx context.Context, recordID string, patch map[string]any, key string) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failFor > 0 {
		r.failFor--
		return errors.New("transient store failure")
	}

	r.patches = append(r.patches, sentPatch{recordID: recordID, patch: patch, key: key})
	return nil
}

func (r *recordingSender) sent() []sentPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentPatch, len(r.patches))
	copy(out, r.patches)
	return out
}

func newTestDispatcher(t *testing.T, sender PatchSender) *Dispatcher {
	t.Helper()
	d := NewDispatcher(DispatcherConfig{
		Sender:      sender,
		Retryer:     connection.NewFixedDelayRetryer(time.Millisecond, 3),
		SendTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(d.Close)
	return d
}

func openMission(d *Dispatcher) Mission {
	m := DefaultMission()
	m.ID = "missions:test"
	m.Ref = "ATH-2026-0001"
	d.Open(m)
	return m
}

func TestApplyFieldReadYourWrites(t *testing.T) {
	// A slow remote must not delay local visibility.
	sender := &recordingSender{delay: 50 * time.Millisecond}
	d := newTestDispatcher(t, sender)
	openMission(d)

	values := []string{"Survey A", "Survey B", "Survey C"}
	for _, v := range values {
		require.NoError(t, d.ApplyField(FieldTitle, v))

		current, ok := d.Current()
		require.True(t, ok)
		assert.Equal(t, v, current.Title, "locally visible value must equal the value just applied")
	}
}

func TestApplyFieldSendsSingleFieldPatch(t *testing.T) {
	sender := &recordingSender{}
	d := newTestDispatcher(t, sender)
	openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "Survey A"))

	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1
	}, time.Second, 5*time.Millisecond)

	p := sender.sent()[0]
	assert.Equal(t, "missions:test", p.recordID)
	assert.Equal(t, map[string]any{"title": "Survey A"}, p.patch)
	assert.NotEmpty(t, p.key, "every patch carries an idempotency key")
}

func TestApplyFieldIssuanceOrder(t *testing.T) {
	sender := &recordingSender{}
	d := newTestDispatcher(t, sender)
	openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "first"))
	require.NoError(t, d.ApplyField(FieldTitle, "second"))
	require.NoError(t, d.ApplyField(FieldClient, "ACME"))

	require.Eventually(t, func() bool {
		return len(sender.sent()) == 3
	}, time.Second, 5*time.Millisecond)

	sent := sender.sent()
	assert.Equal(t, map[string]any{"title": "first"}, sent[0].patch)
	assert.Equal(t, map[string]any{"title": "second"}, sent[1].patch)
	assert.Equal(t, map[string]any{"client": "ACME"}, sent[2].patch)
}

func TestApplyFieldRetriesTransientFailures(t *testing.T) {
	sender := &recordingSender{failFor: 2}
	d := newTestDispatcher(t, sender)
	openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "persistent"))

	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestApplyFieldSurfacesTerminalFailure(t *testing.T) {
	var dropped struct {
		mu      sync.Mutex
		mission string
		field   string
	}

	sender := &recordingSender{failFor: 100}
	d := NewDispatcher(DispatcherConfig{
		Sender:  sender,
		Retryer: connection.NewFixedDelayRetryer(time.Millisecond, 2),
		OnError: func(missionID, field string, err error) {
			dropped.mu.Lock()
			dropped.mission = missionID
			dropped.field = field
			dropped.mu.Unlock()
		},
	})
	t.Cleanup(d.Close)
	openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "doomed"))

	require.Eventually(t, func() bool {
		dropped.mu.Lock()
		defer dropped.mu.Unlock()
		return dropped.field == FieldTitle && dropped.mission == "missions:test"
	}, time.Second, 5*time.Millisecond)

	// The optimistic edit stays visible even though the patch was dropped.
	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, "doomed", current.Title)
}

func TestApplyFieldPreconditions(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})

	t.Run("no open mission", func(t *testing.T) {
		err := d.ApplyField(FieldTitle, "x")
		assert.ErrorIs(t, err, ErrNoOpenMission)
	})

	openMission(d)

	t.Run("unknown field", func(t *testing.T) {
		err := d.ApplyField("altitude", 120)
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("wrong value type", func(t *testing.T) {
		err := d.ApplyField(FieldTitle, 42)
		assert.Error(t, err)
	})

	t.Run("identity fields are not patchable", func(t *testing.T) {
		assert.ErrorIs(t, d.ApplyField("id", "missions:evil"), ErrUnknownField)
		assert.ErrorIs(t, d.ApplyField("createdAt", int64(1)), ErrUnknownField)
	})
}

func TestReconcileKeepsPendingEdits(t *testing.T) {
	// The patch never completes, so the title edit stays pending.
	sender := &recordingSender{delay: time.Hour}
	d := newTestDispatcher(t, sender)
	m := openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "fresh local edit"))

	// A stale echo arrives from the store, carrying the old title but a
	// newer value for an untouched field.
	stale := m
	stale.Title = "stale remote title"
	stale.Location = "Lyon"

	merged := d.Reconcile(stale)

	assert.Equal(t, "fresh local edit", merged.Title, "pending local edit must win")
	assert.Equal(t, "Lyon", merged.Location, "untouched fields take the remote value")

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, "fresh local edit", current.Title)
}

func TestReconcileAppliesRemoteAfterAck(t *testing.T) {
	sender := &recordingSender{}
	d := newTestDispatcher(t, sender)
	m := openMission(d)

	require.NoError(t, d.ApplyField(FieldTitle, "saved"))
	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1
	}, time.Second, 5*time.Millisecond)

	remote := m
	remote.Title = "saved"
	remote.Location = "Nantes"

	merged := d.Reconcile(remote)
	assert.Equal(t, "Nantes", merged.Location)
	assert.Equal(t, "saved", merged.Title)
}

func TestReconcileIgnoresOtherMissions(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	other := DefaultMission()
	other.ID = "missions:other"
	other.Title = "unrelated"

	merged := d.Reconcile(other)
	assert.Equal(t, other, merged)
}

func TestCurrentReturnsCopy(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	before, ok := d.Current()
	require.True(t, ok)

	require.NoError(t, d.ApplyField(FieldTitle, "mutated"))

	assert.Empty(t, before.Title, "snapshot taken before the edit must not change")
}
