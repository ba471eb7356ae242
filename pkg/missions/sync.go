package missions

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/athmos-ops/missionsync/pkg/connection"
	"github.com/athmos-ops/missionsync/pkg/logger"
	"github.com/athmos-ops/missionsync/pkg/session"
)

// LiveStore is the slice of the store client the synchronizer needs.
type LiveStore interface {
	SelectOwned(ctx context.Context, collection, owner string, dest any) error
	Live(ctx context.Context, collection, owner string) (string, chan connection.Notification, error)
	Kill(ctx context.Context, liveID string) error
}

// SynchronizerConfig configures a Synchronizer.
type SynchronizerConfig struct {
	Store  LiveStore
	Logger logger.Logger

	// Retryer paces resubscription after the live subscription drops.
	// Defaults to exponential backoff with jitter.
	Retryer connection.Retryer

	// Dispatcher, when set, gets remote snapshots of the open mission
	// routed through Reconcile so pending local edits survive stale echoes.
	Dispatcher *Dispatcher

	// OnChange is invoked with the full mission list after every replacement.
	OnChange func(missions []Mission)
}

// Synchronizer keeps the local mission list consistent with the remote
// collection scoped to one session identity. Every change notification
// replaces the entire list, re-sorted by creation time descending; full-list
// replacement is idempotent, so no incremental diffing is needed.
type Synchronizer struct {
	store      LiveStore
	logger     logger.Logger
	retryer    connection.Retryer
	dispatcher *Dispatcher
	onChange   func([]Mission)

	mu       sync.RWMutex
	missions []Mission
	running  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop{}
	}
	retryer := cfg.Retryer
	if retryer == nil {
		retryer = connection.NewExponentialBackoffRetryer()
	}
	return &Synchronizer{
		store:      cfg.Store,
		logger:     log,
		retryer:    retryer,
		dispatcher: cfg.Dispatcher,
		onChange:   cfg.OnChange,
	}
}

// Start loads the current mission set and opens the live subscription for
// the identity. It returns once the initial load is done; notifications are
// consumed in the background until Stop.
func (s *Synchronizer) Start(ctx context.Context, id session.Identity) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	var initial []Mission
	if err := s.store.SelectOwned(ctx, Collection, id.UID, &initial); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.replace(initial)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx, id.UID)

	return nil
}

// Stop tears the subscription down and clears the local list. Called when
// the session ends.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.replace(nil)
}

// Missions returns a snapshot of the local mission list, sorted by creation
// time descending.
func (s *Synchronizer) Missions() []Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mission, len(s.missions))
	copy(out, s.missions)
	return out
}

// run owns the live subscription. A dropped subscription is resubscribed
// with backoff; the local list is kept as-is across transient errors and is
// only cleared by Stop.
func (s *Synchronizer) run(ctx context.Context, owner string) {
	defer s.wg.Done()

	attempt := 0

	for {
		liveID, ch, err := s.store.Live(ctx, Collection, owner)
		if err != nil {
			delay, retry := s.retryer.NextDelay(attempt, err)
			if !retry {
				s.logger.Error("giving up on live subscription", "error", err)
				return
			}
			attempt++
			s.logger.Warn("live subscription failed, retrying", "error", err, "delay", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		s.retryer.Reset()
		s.logger.Info("live subscription open", "live_id", liveID)

		// Refresh once after (re)subscribing: changes between the initial
		// select (or the previous subscription dying) and now were missed.
		s.refresh(ctx, owner)

		if !s.consume(ctx, ch) {
			killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.store.Kill(killCtx, liveID)
			cancel()
			return
		}
	}
}

// consume drains notifications until the channel dies (returns true, meaning
// resubscribe) or the context is canceled (returns false).
func (s *Synchronizer) consume(ctx context.Context, ch chan connection.Notification) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case n, open := <-ch:
			if !open {
				s.logger.Warn("live subscription dropped")
				return true
			}
			s.apply(n)
		}
	}
}

// apply replaces the list with the full set carried by the notification.
func (s *Synchronizer) apply(n connection.Notification) {
	var set []Mission
	if err := json.Unmarshal(n.Result, &set); err != nil {
		s.logger.Error("unparsable live notification", "action", n.Action, "error", err)
		return
	}
	s.replace(set)
}

// refresh re-selects the full set. Errors are logged and the current list is
// left untouched.
func (s *Synchronizer) refresh(ctx context.Context, owner string) {
	var set []Mission
	if err := s.store.SelectOwned(ctx, Collection, owner, &set); err != nil {
		s.logger.Warn("refresh after resubscribe failed", "error", err)
		return
	}
	s.replace(set)
}

// replace installs the new mission set, sorted by createdAt descending with
// missing timestamps last, routing the open mission through the dispatcher
// so unacknowledged local edits are preserved.
func (s *Synchronizer) replace(set []Mission) {
	if s.dispatcher != nil {
		if open, ok := s.dispatcher.Current(); ok {
			for i := range set {
				if set[i].ID == open.ID {
					set[i] = s.dispatcher.Reconcile(set[i])
				}
			}
		}
	}

	sortMissions(set)

	s.mu.Lock()
	s.missions = set
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(set)
	}
}

// sortMissions orders by creation time descending. A mission the server has
// not timestamped yet has CreatedAt zero and therefore sorts as oldest.
func sortMissions(set []Mission) {
	sort.SliceStable(set, func(i, j int) bool {
		return set[i].CreatedAt > set[j].CreatedAt
	})
}
