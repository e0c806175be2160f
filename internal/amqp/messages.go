package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"movimenti/internal/core"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// MovementEvent notifies downstream workers that a movement changed.
// It carries enough to evaluate budget alerts without a database read.
type MovementEvent struct {
	EventID     string            `json:"event_id"`
	Action      string            `json:"action"`
	MovementID  int64             `json:"movement_id"`
	UserID      string            `json:"user_id"`
	Kind        core.MovementKind `json:"kind"`
	AmountCents int64             `json:"amount_cents"`
	CategoryID  int64             `json:"category_id"`
	Month       core.MonthTag     `json:"month"`
	Timestamp   time.Time         `json:"timestamp"`
}

func NewMovementEvent(action string, m core.Movement) *MovementEvent {
	return &MovementEvent{
		EventID:     uuid.NewString(),
		Action:      action,
		MovementID:  m.ID,
		UserID:      m.UserID,
		Kind:        m.Kind,
		AmountCents: m.Amount.Cents,
		CategoryID:  m.CategoryID,
		Month:       m.ReconciliationMonth,
		Timestamp:   time.Now(),
	}
}

func (e *MovementEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func MovementEventFromJSON(data []byte) (*MovementEvent, error) {
	var e MovementEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
