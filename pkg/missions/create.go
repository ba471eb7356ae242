package missions

import (
	"context"
	"fmt"
	"time"

	"github.com/athmos-ops/missionsync/pkg/session"
)

// Creator is the slice of the store client mission creation needs.
type Creator interface {
	Create(ctx context.Context, collection string, data, dest any) error
}

// CreateMission persists a new mission with deterministic defaults, owned by
// the given identity. On success the returned mission carries the
// server-assigned id and creation timestamp and is ready to open for
// editing. On failure no mission is returned, so a caller can never enter
// edit mode with a half-formed identifier.
func CreateMission(ctx context.Context, store Creator, id session.Identity) (Mission, error) {
	m := DefaultMission()
	m.Ref = NewRef(time.Now())
	m.Owner = id.UID

	var created Mission
	if err := store.Create(ctx, Collection, m, &created); err != nil {
		return Mission{}, fmt.Errorf("creating mission: %w", err)
	}
	if created.ID == "" {
		return Mission{}, fmt.Errorf("creating mission: store assigned no id")
	}

	return created, nil
}
