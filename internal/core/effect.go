package core

// Effect is the signed balance delta a movement contributes to a single
// account, in cents.
type Effect struct {
	AccountID int64
	Delta     int64
}

// EffectsOf computes the balance effects of a movement. Pure function,
// no I/O:
//
//   - expense:  origin gets -amount
//   - income:   destination gets +amount
//   - transfer: origin gets -amount, destination gets +amount
//
// An absent account reference contributes nothing. Stored rows that
// predate transfer validation may therefore post a single half-effect;
// keeping EffectsOf total over them guarantees those rows still reverse
// exactly on update and delete.
func EffectsOf(m Movement) []Effect {
	switch m.Kind {
	case Expense:
		if m.OriginAccountID != nil {
			return []Effect{{AccountID: *m.OriginAccountID, Delta: -m.Amount.Cents}}
		}
	case Income:
		if m.DestinationAccountID != nil {
			return []Effect{{AccountID: *m.DestinationAccountID, Delta: m.Amount.Cents}}
		}
	case Transfer:
		var effects []Effect
		if m.OriginAccountID != nil {
			effects = append(effects, Effect{AccountID: *m.OriginAccountID, Delta: -m.Amount.Cents})
		}
		if m.DestinationAccountID != nil {
			effects = append(effects, Effect{AccountID: *m.DestinationAccountID, Delta: m.Amount.Cents})
		}
		return effects
	}
	return nil
}

// Reversed returns the effects with inverted sign, used to undo a
// movement before a value change or deletion.
func Reversed(effects []Effect) []Effect {
	out := make([]Effect, len(effects))
	for i, e := range effects {
		out[i] = Effect{AccountID: e.AccountID, Delta: -e.Delta}
	}
	return out
}
