// Package services orchestrates ledger operations across storage, the
// caches, and AMQP.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"movimenti/internal/amqp"
	"movimenti/internal/core"
	"movimenti/internal/storage"
)

// EventPublisher publishes movement change events. *amqp.Client
// implements it; tests substitute a fake.
type EventPublisher interface {
	PublishMovementEvent(ctx context.Context, event *amqp.MovementEvent) error
}

// Invalidator drops cached reads for one user after a write commits.
type Invalidator interface {
	InvalidateUser(userID string)
}

// MovementService owns the write path. Every mutation runs the movement
// row change and its balance deltas in one transaction, so account
// balances always equal initial balance plus the sum of stored
// movement effects.
type MovementService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	caches    Invalidator
}

func NewMovementService(repo *storage.SQLiteRepository, publisher EventPublisher, caches Invalidator) *MovementService {
	return &MovementService{
		storage:   repo,
		publisher: publisher,
		caches:    caches,
	}
}

// Create validates and persists a new movement and applies its balance
// effects atomically.
func (s *MovementService) Create(ctx context.Context, m core.Movement) (core.Movement, error) {
	if m.Reconciled == "" {
		m.Reconciled = core.Pending
	}
	if m.ReconciliationMonth == "" {
		m.ReconciliationMonth = core.MonthTagOf(m.Date.Time)
	}
	if err := m.Validate(); err != nil {
		return core.Movement{}, err
	}

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return core.Movement{}, err
	}
	defer tx.Rollback()

	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return core.Movement{}, err
	}
	m.ID = id

	if err := applyEffects(ctx, tx, m.UserID, core.EffectsOf(m)); err != nil {
		return core.Movement{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Movement{}, fmt.Errorf("commit movement create: %w", err)
	}

	s.afterWrite(ctx, amqp.ActionCreated, m)
	return m, nil
}

// Update rewrites a movement from a partial patch. The old effects are
// reversed and the new ones applied inside the same transaction as the
// row update, so a failure anywhere leaves balances untouched.
func (s *MovementService) Update(ctx context.Context, userID string, id int64, patch core.MovementPatch) (core.Movement, error) {
	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return core.Movement{}, err
	}
	defer tx.Rollback()

	old, err := tx.GetMovement(ctx, userID, id)
	if err != nil {
		return core.Movement{}, err
	}

	merged := patch.Merge(old)
	if err := merged.Validate(); err != nil {
		return core.Movement{}, err
	}

	if err := applyEffects(ctx, tx, userID, core.Reversed(core.EffectsOf(old))); err != nil {
		return core.Movement{}, err
	}
	if err := tx.UpdateMovement(ctx, merged); err != nil {
		return core.Movement{}, err
	}
	if err := applyEffects(ctx, tx, userID, core.EffectsOf(merged)); err != nil {
		return core.Movement{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Movement{}, fmt.Errorf("commit movement update: %w", err)
	}

	s.afterWrite(ctx, amqp.ActionUpdated, merged)
	return merged, nil
}

// Delete removes a movement and reverses its balance effects.
func (s *MovementService) Delete(ctx context.Context, userID string, id int64) error {
	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old, err := tx.GetMovement(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := applyEffects(ctx, tx, userID, core.Reversed(core.EffectsOf(old))); err != nil {
		return err
	}
	if err := tx.DeleteMovement(ctx, userID, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movement delete: %w", err)
	}

	s.afterWrite(ctx, amqp.ActionDeleted, old)
	return nil
}

func (s *MovementService) Get(ctx context.Context, userID string, id int64) (core.Movement, error) {
	return s.storage.GetMovement(ctx, userID, id)
}

func applyEffects(ctx context.Context, tx *storage.Tx, userID string, effects []core.Effect) error {
	for _, e := range effects {
		if err := tx.AddToBalance(ctx, userID, e.AccountID, e.Delta); err != nil {
			return err
		}
	}
	return nil
}

// afterWrite runs post-commit side effects. Cache invalidation is
// synchronous; the event publish must not fail the request, the
// movement is already durable.
func (s *MovementService) afterWrite(ctx context.Context, action string, m core.Movement) {
	if s.caches != nil {
		s.caches.InvalidateUser(m.UserID)
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping movement event", "action", action)
		return
	}
	if err := s.publisher.PublishMovementEvent(ctx, amqp.NewMovementEvent(action, m)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish movement event",
			"action", action, "movement_id", m.ID, "error", err)
	}
}
