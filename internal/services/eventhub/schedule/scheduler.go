// Package schedule arms timers for deferred stage transitions. Transitions
// are persisted before their timer is armed so a restart can re-derive them;
// a fired transition is neutralized only by the engine's freshness check,
// never by proactive cancellation.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/questline/eventhub/internal/platform/id"
	"github.com/questline/eventhub/internal/platform/timeouts"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// FireFunc applies a due transition. Implementations must re-validate
// freshness before mutating state.
type FireFunc func(ctx context.Context, pt domain.PendingTransition)

// Scheduler persists pending transitions and fires them when due.
type Scheduler struct {
	store storage.PendingTransitionStore
	fire  FireFunc
	clock func() time.Time
	// arm defers run by delay; injectable for tests.
	arm func(delay time.Duration, run func())
}

// New creates a scheduler backed by the given store.
func New(store storage.PendingTransitionStore) *Scheduler {
	return &Scheduler{
		store: store,
		clock: time.Now,
		arm: func(delay time.Duration, run func()) {
			time.AfterFunc(delay, run)
		},
	}
}

// Bind sets the engine callback invoked when a transition fires. The engine
// and scheduler reference each other, so binding happens after construction.
func (s *Scheduler) Bind(fire FireFunc) {
	s.fire = fire
}

// Schedule persists the transition and arms its timer.
func (s *Scheduler) Schedule(ctx context.Context, pt domain.PendingTransition) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("scheduler is not configured")
	}
	if s.fire == nil {
		return fmt.Errorf("scheduler has no fire callback bound")
	}
	if pt.ID == "" {
		newID, err := id.NewID()
		if err != nil {
			return fmt.Errorf("new pending transition id: %w", err)
		}
		pt.ID = newID
	}
	if err := s.store.PutPendingTransition(ctx, pt); err != nil {
		return fmt.Errorf("persist pending transition: %w", err)
	}

	s.armTransition(pt)
	return nil
}

// Resume re-derives timers from persisted pending transitions. Overdue
// transitions fire immediately.
func (s *Scheduler) Resume(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("scheduler is not configured")
	}
	if s.fire == nil {
		return fmt.Errorf("scheduler has no fire callback bound")
	}

	pending, err := s.store.ListPendingTransitions(ctx)
	if err != nil {
		return fmt.Errorf("list pending transitions: %w", err)
	}
	for _, pt := range pending {
		s.armTransition(pt)
	}
	if len(pending) > 0 {
		log.Printf("resumed %d pending transitions", len(pending))
	}
	return nil
}

func (s *Scheduler) armTransition(pt domain.PendingTransition) {
	delay := pt.DueAt.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	s.arm(delay, func() { s.dispatch(pt) })
}

func (s *Scheduler) dispatch(pt domain.PendingTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.StoreOp)
	defer cancel()

	s.fire(ctx, pt)
	if err := s.store.DeletePendingTransition(ctx, pt.ID); err != nil {
		log.Printf("delete pending transition %s: %v", pt.ID, err)
	}
}
