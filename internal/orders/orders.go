// Package orders owns the Position state machine and client-order-ID
// generation. Client order IDs are UUID-based rather than the teacher's
// Redis-sequence generator, since this engine has no shared multi-tenant
// sequence to coordinate.
package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// NewClientOrderID returns a unique, exchange-safe client order ID tagged
// with the engine name, e.g. "futures-3fa85f64".
func NewClientOrderID(engine string) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s", engine, id.String()[:8])
}

// transitions enumerates the legal Position state machine edges per the
// lifecycle manager's documented contract.
var transitions = map[model.PositionStatus][]model.PositionStatus{
	model.StatusPendingConfirm: {model.StatusOpen, model.StatusCancelled},
	model.StatusOpen:           {model.StatusPartialExited, model.StatusClosed, model.StatusEmergencyClosed},
	model.StatusPartialExited:  {model.StatusPartialExited, model.StatusClosed, model.StatusEmergencyClosed},
}

// Transition validates and applies a state change, returning an
// apperrors.Error of kind KindOrderRejected if the edge is illegal.
func Transition(pos *model.Position, next model.PositionStatus) error {
	allowed := transitions[pos.Status]
	for _, s := range allowed {
		if s == next {
			pos.Status = next
			return nil
		}
	}
	return apperrors.New(apperrors.KindOrderRejected, fmt.Sprintf("illegal transition %s -> %s", pos.Status, next))
}

// ToTradeRecord converts a closed Position into its journal record.
func ToTradeRecord(pos model.Position, exitPrice float64, exitTime time.Time, reason string) model.TradeRecord {
	pnl := unrealizedPnl(pos, exitPrice)
	return model.TradeRecord{
		Symbol:      pos.Symbol,
		Engine:      pos.Engine,
		Side:        pos.Side,
		EntryTime:   pos.EntryTime,
		ExitTime:    exitTime,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		Leverage:    pos.Leverage,
		RealizedPnl: pnl,
		ExitReason:  reason,
	}
}

func unrealizedPnl(pos model.Position, price float64) float64 {
	if pos.Side == model.SideLong {
		return (price - pos.EntryPrice) * pos.Quantity
	}
	return (pos.EntryPrice - price) * pos.Quantity
}
