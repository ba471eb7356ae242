package missions_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athmos-ops/missionsync/internal/fakestore"
	"github.com/athmos-ops/missionsync/pkg/connection"
	"github.com/athmos-ops/missionsync/pkg/missions"
	"github.com/athmos-ops/missionsync/pkg/session"
	"github.com/athmos-ops/missionsync/pkg/store"
)

// harness wires a real client stack against an in-process fake store.
type harness struct {
	fake       *fakestore.Server
	store      *store.Client
	gateway    *session.Gateway
	dispatcher *missions.Dispatcher
	sync       *missions.Synchronizer
	identity   session.Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fake := fakestore.New()
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	cfg := connection.NewConfig(u)
	cfg.Timeout = 2 * time.Second

	conn := connection.NewWebSocketConnection(cfg)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	})

	st := store.New(conn, nil)
	gateway := session.NewGateway(st, nil)

	identity, err := gateway.SignIn(context.Background(), "pilot", "aviate")
	require.NoError(t, err)
	require.Equal(t, "user:pilot", identity.UID)

	dispatcher := missions.NewDispatcher(missions.DispatcherConfig{
		Sender:      st,
		Retryer:     connection.NewFixedDelayRetryer(10*time.Millisecond, 3),
		SendTimeout: 2 * time.Second,
	})
	t.Cleanup(dispatcher.Close)

	sync := missions.NewSynchronizer(missions.SynchronizerConfig{
		Store:      st,
		Dispatcher: dispatcher,
		Retryer:    connection.NewFixedDelayRetryer(10*time.Millisecond, 0),
	})
	require.NoError(t, sync.Start(context.Background(), identity))
	t.Cleanup(sync.Stop)

	return &harness{
		fake:       fake,
		store:      st,
		gateway:    gateway,
		dispatcher: dispatcher,
		sync:       sync,
		identity:   identity,
	}
}

// remoteField reads one field of the single stored mission record.
func (h *harness) remoteField(t *testing.T, key string) any {
	t.Helper()
	records := h.fake.Records(missions.Collection)
	require.Len(t, records, 1)
	return records[0][key]
}

func TestEndToEndMissionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := missions.CreateMission(ctx, h.store, h.identity)
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	assert.Regexp(t, regexp.MustCompile(`^ATH-\d{4}-\d{4}$`), m.Ref)
	assert.Equal(t, h.identity.UID, m.Owner)

	// The live notification for the create reaches the synchronizer.
	require.Eventually(t, func() bool {
		return len(h.sync.Missions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.dispatcher.Open(m)

	// An edit is visible locally before the remote store confirms it.
	require.NoError(t, h.dispatcher.ApplyField(missions.FieldTitle, "Survey A"))
	current, ok := h.dispatcher.Current()
	require.True(t, ok)
	assert.Equal(t, "Survey A", current.Title)

	require.Eventually(t, func() bool {
		return h.remoteField(t, "title") == "Survey A"
	}, 2*time.Second, 10*time.Millisecond)

	// Two flight logs, 30 and 45 minutes.
	logs := h.dispatcher.FlightLogs()
	first, err := logs.Add()
	require.NoError(t, err)
	require.NoError(t, logs.SetStart(first, "12:00"))
	require.NoError(t, logs.SetEnd(first, "12:30"))

	second, err := logs.Add()
	require.NoError(t, err)
	require.NoError(t, logs.SetStart(second, "13:00"))
	require.NoError(t, logs.SetEnd(second, "13:45"))

	current, ok = h.dispatcher.Current()
	require.True(t, ok)
	assert.Equal(t, 75, missions.TotalMinutes(current))

	require.Eventually(t, func() bool {
		raw := h.remoteField(t, "logs")
		set, ok := raw.([]any)
		return ok && len(set) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndChecklistAndSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := missions.CreateMission(ctx, h.store, h.identity)
	require.NoError(t, err)
	h.dispatcher.Open(m)

	require.NoError(t, h.dispatcher.Checklist().Toggle("meteo"))

	require.Eventually(t, func() bool {
		raw, ok := h.remoteField(t, "checklist").(map[string]any)
		return ok && raw["meteo"] == true
	}, 2*time.Second, 10*time.Millisecond)

	pad := h.dispatcher.PilotPad()
	pad.Down(missions.Point{X: 10, Y: 10})
	pad.Move(missions.Point{X: 60, Y: 40})
	require.NoError(t, pad.Up())
	assert.Equal(t, missions.PadCaptured, pad.State())

	require.Eventually(t, func() bool {
		raw, ok := h.remoteField(t, "signaturePilote").(string)
		return ok && strings.HasPrefix(raw, "data:image/png;base64,")
	}, 2*time.Second, 10*time.Millisecond)

	// Clearing the pad removes the stored signature.
	require.NoError(t, pad.Clear())
	require.Eventually(t, func() bool {
		_, present := h.fake.Records(missions.Collection)[0]["signaturePilote"]
		return !present
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := missions.CreateMission(ctx, h.store, h.identity)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(h.sync.Missions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Sign-out clears the local list; the remote record survives.
	h.sync.Stop()
	require.NoError(t, h.gateway.SignOut(ctx))

	assert.Empty(t, h.sync.Missions())
	assert.Len(t, h.fake.Records(missions.Collection), 1)
}

func TestEndToEndRejectsBadCredentials(t *testing.T) {
	fake := fakestore.New()
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	cfg := connection.NewConfig(u)
	cfg.Timeout = 2 * time.Second

	conn := connection.NewWebSocketConnection(cfg)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	})

	gateway := session.NewGateway(store.New(conn, nil), nil)

	_, err = gateway.SignIn(context.Background(), "pilot", "wrong")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	_, err = gateway.SignIn(context.Background(), "nobody", "aviate")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
}
