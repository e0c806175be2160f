package core

import "encoding/json"

// Opt is a three-state patch field: Keep (absent from the payload),
// Clear (sent as null), or Set (sent with a value). The distinction
// between "not sent" and "sent as null" survives JSON decoding because
// UnmarshalJSON only runs for fields present in the payload.
type Opt[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// Set builds a field that overrides the old value.
func Set[T any](v T) Opt[T] {
	return Opt[T]{Present: true, Value: v}
}

// Clear builds a field that resets an optional value to absent.
func Clear[T any]() Opt[T] {
	return Opt[T]{Present: true, Null: true}
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	o.Present = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// MovementPatch carries a partial movement update. Every field follows
// the Keep/Set/Clear contract; clearing a required field is ignored.
type MovementPatch struct {
	Date                 Opt[Date]                `json:"date"`
	Description          Opt[string]              `json:"description"`
	Kind                 Opt[MovementKind]        `json:"kind"`
	CategoryID           Opt[int64]               `json:"category_id"`
	AmountCents          Opt[int64]               `json:"amount_cents"`
	PaymentMethod        Opt[string]              `json:"payment_method"`
	OriginAccountID      Opt[int64]               `json:"origin_account_id"`
	DestinationAccountID Opt[int64]               `json:"destination_account_id"`
	CreditInstrumentID   Opt[int64]               `json:"credit_instrument_id"`
	Installments         Opt[int64]               `json:"installments"`
	Reconciled           Opt[ReconciliationState] `json:"reconciled"`
	ReconciliationMonth  Opt[MonthTag]            `json:"reconciliation_month"`
}

// Merge applies the patch to a stored movement and returns the result.
// The reconciliation month follows the date when the date changes and no
// explicit tag is supplied; a supplied tag always wins.
func (p MovementPatch) Merge(old Movement) Movement {
	m := old

	if p.Date.Present && !p.Date.Null {
		m.Date = p.Date.Value
		if !p.ReconciliationMonth.Present {
			m.ReconciliationMonth = MonthTagOf(m.Date.Time)
		}
	}
	if p.Description.Present && !p.Description.Null {
		m.Description = p.Description.Value
	}
	if p.Kind.Present && !p.Kind.Null {
		m.Kind = p.Kind.Value
	}
	if p.CategoryID.Present && !p.CategoryID.Null {
		m.CategoryID = p.CategoryID.Value
	}
	if p.AmountCents.Present && !p.AmountCents.Null {
		m.Amount = Money{Cents: p.AmountCents.Value}
	}
	if p.PaymentMethod.Present {
		if p.PaymentMethod.Null {
			m.PaymentMethod = ""
		} else {
			m.PaymentMethod = p.PaymentMethod.Value
		}
	}
	m.OriginAccountID = mergeRef(p.OriginAccountID, old.OriginAccountID)
	m.DestinationAccountID = mergeRef(p.DestinationAccountID, old.DestinationAccountID)
	m.CreditInstrumentID = mergeRef(p.CreditInstrumentID, old.CreditInstrumentID)
	m.Installments = mergeRef(p.Installments, old.Installments)
	if p.Reconciled.Present && !p.Reconciled.Null {
		m.Reconciled = p.Reconciled.Value
	}
	if p.ReconciliationMonth.Present {
		if p.ReconciliationMonth.Null {
			m.ReconciliationMonth = MonthTagOf(m.Date.Time)
		} else {
			m.ReconciliationMonth = p.ReconciliationMonth.Value
		}
	}
	return m
}

// IsZero reports whether the patch carries no fields at all.
func (p MovementPatch) IsZero() bool {
	return !p.Date.Present && !p.Description.Present && !p.Kind.Present &&
		!p.CategoryID.Present && !p.AmountCents.Present && !p.PaymentMethod.Present &&
		!p.OriginAccountID.Present && !p.DestinationAccountID.Present &&
		!p.CreditInstrumentID.Present && !p.Installments.Present &&
		!p.Reconciled.Present && !p.ReconciliationMonth.Present
}

func mergeRef(p Opt[int64], old *int64) *int64 {
	if !p.Present {
		return old
	}
	if p.Null {
		return nil
	}
	v := p.Value
	return &v
}
