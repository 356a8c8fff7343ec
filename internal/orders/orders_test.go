package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

func TestNewClientOrderID_TaggedWithEngine(t *testing.T) {
	id := NewClientOrderID("futures")
	assert.True(t, strings.HasPrefix(id, "futures-"))
}

func TestTransition_LegalEdgesSucceed(t *testing.T) {
	pos := &model.Position{Status: model.StatusPendingConfirm}
	assert.NoError(t, Transition(pos, model.StatusOpen))
	assert.Equal(t, model.StatusOpen, pos.Status)

	assert.NoError(t, Transition(pos, model.StatusPartialExited))
	assert.NoError(t, Transition(pos, model.StatusClosed))
}

func TestTransition_IllegalEdgeRejected(t *testing.T) {
	pos := &model.Position{Status: model.StatusClosed}
	err := Transition(pos, model.StatusOpen)
	assert.Error(t, err)
}

func TestToTradeRecord_ComputesRealizedPnlForLong(t *testing.T) {
	pos := model.Position{
		Symbol:     "ETHUSDT",
		Side:       model.SideLong,
		EntryPrice: 100,
		Quantity:   2,
	}
	record := ToTradeRecord(pos, 110, time.Now(), "TP1")
	assert.Equal(t, 20.0, record.RealizedPnl)
	assert.True(t, record.IsWinner())
}
