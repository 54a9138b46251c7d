package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/alexfarlander/stitch-run-sub015/pkg/models"
)

const journeysCollection = "journeys"

// journeyLog is the on-disk document: one append-only list per entity.
type journeyLog struct {
	EntityID string                `json:"entity_id"`
	Events   []models.JourneyEvent `json:"events"`
}

// JourneyRepository handles append-only journey logs, one per entity.
type JourneyRepository struct {
	store *store
}

func (r *JourneyRepository) Append(_ context.Context, event *models.JourneyEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var journal journeyLog

	err := r.store.read(journeysCollection, event.EntityID, &journal)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	journal.EntityID = event.EntityID
	journal.Events = append(journal.Events, *event)

	return r.store.write(journeysCollection, event.EntityID, &journal)
}

func (r *JourneyRepository) GetByEntity(_ context.Context, entityID string) ([]*models.JourneyEvent, error) {
	var journal journeyLog

	err := r.store.read(journeysCollection, entityID, &journal)
	if errors.Is(err, os.ErrNotExist) {
		return []*models.JourneyEvent{}, nil
	}

	if err != nil {
		return nil, err
	}

	events := make([]*models.JourneyEvent, 0, len(journal.Events))
	for i := range journal.Events {
		events = append(events, &journal.Events[i])
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	return events, nil
}
