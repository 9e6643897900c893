package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

func TestStaleEntriesAreDiscarded(t *testing.T) {
	body := NewBody(pos(5, 5), world.East)
	ledger := &Ledger{}
	for i, seq := range []uint8{3, 4, 5} {
		p := pos(6+uint16(i), 5)
		body.MoveTo(p)
		ledger.Push(Prediction{Seq: seq, Predicted: p})
	}
	r := NewReconciler(ledger, body)

	res := r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 5, Position: pos(8, 5)})
	assert.True(t, res.Matched)
	assert.False(t, res.Mispredicted)
	assert.Equal(t, 3, res.Discarded)
	assert.Zero(t, ledger.Len())
	assert.Equal(t, uint64(2), r.Stats().StaleDropped)
	assert.Equal(t, pos(8, 5), body.Tip())

	// Опоздавший ответ на уже выброшенный запрос ничего не меняет
	res = r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 4, Position: pos(8, 5)})
	assert.False(t, res.Matched)
	assert.Equal(t, pos(8, 5), body.Tip())
}

func TestNewerEntriesSurvive(t *testing.T) {
	ledger := &Ledger{}
	for _, seq := range []uint8{254, 255, 0, 1} {
		ledger.Push(Prediction{Seq: seq, Predicted: pos(5, 5)})
	}
	r := NewReconciler(ledger, NewBody(pos(5, 5), world.North))

	res := r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 255, Position: pos(5, 5)})
	assert.True(t, res.Matched)
	assert.Equal(t, 2, res.Discarded)
	entries := ledger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint8(0), entries[0].Seq)
	assert.Equal(t, uint8(1), entries[1].Seq)
}

func TestBlockedResponseIsIdempotent(t *testing.T) {
	body := NewBody(pos(5, 5), world.North)
	ledger := &Ledger{}
	ledger.Push(Prediction{Seq: 9, Predicted: pos(5, 5)})
	r := NewReconciler(ledger, body)

	resp := &protocol.MoveResponse{RequestID: 9, Position: pos(5, 5)}
	for i := 0; i < 3; i++ {
		res := r.ApplyMoveResponse(resp)
		assert.False(t, res.Mispredicted)
		assert.False(t, res.Settled)
		assert.Equal(t, pos(5, 5), body.Position)
		assert.Equal(t, Idle, body.State())
	}
	assert.Equal(t, uint64(0), r.Stats().Nudges)
}

func TestMispredictionNudgesTowardServer(t *testing.T) {
	// Клиент считал тайл свободным, сервер упёрся в стену
	body := NewBody(pos(5, 5), world.East)
	body.MoveTo(pos(6, 5))
	ledger := &Ledger{}
	ledger.Push(Prediction{Seq: 0, Predicted: pos(6, 5)})
	r := NewReconciler(ledger, body)

	res := r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 0, Position: pos(5, 5)})
	assert.True(t, res.Mispredicted)
	assert.Equal(t, pos(5, 5), body.Position)
	assert.Equal(t, uint64(1), r.Stats().Nudges)
}

func TestMispredictionMergesMatchingWaypoint(t *testing.T) {
	body := NewBody(pos(5, 5), world.East)
	body.MoveTo(pos(6, 5))
	body.MoveTo(pos(7, 5))
	ledger := &Ledger{}
	ledger.Push(Prediction{Seq: 0, Predicted: pos(7, 5)})
	ledger.Push(Prediction{Seq: 1, Predicted: pos(8, 5)})
	r := NewReconciler(ledger, body)

	// Сервер подтвердил только первый тайл: он уже ближайшая цель
	res := r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 0, Position: pos(6, 5)})
	assert.True(t, res.Mispredicted)
	assert.Equal(t, uint64(1), r.Stats().Merges)
	assert.Equal(t, pos(6, 5), body.Position)
	assert.Equal(t, []world.Position{pos(7, 5)}, body.Waypoints)
}

func TestSettleWhenLedgerDrains(t *testing.T) {
	body := NewBody(pos(5, 5), world.East)
	body.MoveTo(pos(6, 5))
	body.MoveTo(pos(7, 5))
	body.MoveTo(pos(8, 5))
	ledger := &Ledger{}
	ledger.Push(Prediction{Seq: 2, Predicted: pos(8, 5)})
	r := NewReconciler(ledger, body)

	// Более ранние ответы потеряны, последний говорит о стене на 7
	res := r.ApplyMoveResponse(&protocol.MoveResponse{RequestID: 2, Position: pos(6, 5)})
	assert.True(t, res.Settled)
	assert.Equal(t, pos(6, 5), body.Tip())

	body.Update(10*step, step)
	assert.Equal(t, pos(6, 5), body.Position)
	assert.Equal(t, Idle, body.State())
}

func TestResyncClearsLedger(t *testing.T) {
	body := NewBody(pos(5, 5), world.East)
	body.MoveTo(pos(6, 5))
	ledger := &Ledger{}
	ledger.Push(Prediction{Seq: 0, Predicted: pos(6, 5), SentAt: time.Unix(0, 0)})
	r := NewReconciler(ledger, body)

	assert.Equal(t, 1, r.Expire(time.Unix(2, 0), 2*time.Second))
	r.Resync(pos(4, 4))
	assert.Zero(t, ledger.Len())
	assert.Equal(t, pos(4, 4), body.Position)
	assert.Equal(t, Idle, body.State())
	assert.Equal(t, uint64(1), r.Stats().Resyncs)
	assert.Equal(t, uint64(1), r.Stats().ExpiredTotals)
}
