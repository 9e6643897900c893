package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/world"
)

func openMap(blocked ...world.Position) *world.MapSet {
	m := world.NewTileMap(1, 20, 20)
	for _, p := range blocked {
		m.SetBlocked(int(p.X), int(p.Y), true)
	}
	return world.NewMapSet(m)
}

func TestLedgerSettleWithWraparound(t *testing.T) {
	var l Ledger
	for _, seq := range []uint8{254, 255, 0, 1} {
		l.Push(Prediction{Seq: seq, Predicted: pos(uint16(seq), 0)})
	}

	matched, found, removed := l.Settle(255)
	require.True(t, found)
	assert.Equal(t, uint8(255), matched.Seq)
	assert.Equal(t, 2, removed)
	assert.Len(t, l.Entries(), 2)

	_, found, removed = l.Settle(0)
	assert.True(t, found)
	assert.Equal(t, 1, removed)
	assert.Equal(t, uint8(1), l.Entries()[0].Seq)
}

func TestLedgerPushReplacesSameSeq(t *testing.T) {
	var l Ledger
	l.Push(Prediction{Seq: 7, Predicted: pos(1, 1)})
	l.Push(Prediction{Seq: 8, Predicted: pos(2, 1)})
	l.Push(Prediction{Seq: 7, Predicted: pos(3, 1)})
	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint8(8), entries[0].Seq)
	assert.Equal(t, pos(3, 1), entries[1].Predicted)
}

func TestLedgerExpire(t *testing.T) {
	var l Ledger
	t0 := time.Unix(100, 0)
	l.Push(Prediction{Seq: 1, SentAt: t0})
	l.Push(Prediction{Seq: 2, SentAt: t0.Add(time.Second)})

	assert.Zero(t, l.Expire(t0.Add(1999*time.Millisecond), 2*time.Second))
	assert.Equal(t, 1, l.Expire(t0.Add(2*time.Second), 2*time.Second))
	assert.Equal(t, uint8(2), l.Entries()[0].Seq)
}

func TestTryStartMoveMutatesAndRecords(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	ledger := &Ledger{}
	p := NewPredictor(openMap(), body, ledger)
	now := time.Unix(0, 0)

	_, ok := p.TryStartMove(now, 0)
	assert.False(t, ok, "no key held")

	p.KeyPress(world.East)
	req, ok := p.TryStartMove(now, 0)
	require.True(t, ok)
	assert.Equal(t, uint8(0), req.ID)
	assert.Equal(t, world.East, req.Direction)
	assert.Equal(t, pos(6, 5), body.Position)
	assert.Equal(t, Moving, body.State())
	assert.Equal(t, []Prediction{{Seq: 0, Predicted: pos(6, 5), SentAt: now}}, ledger.Entries())
	assert.Equal(t, uint8(1), p.NextSeq())

	_, ok = p.TryStartMove(now.Add(step), 0)
	assert.False(t, ok, "still interpolating")

	body.Update(step, step)
	req, ok = p.TryStartMove(now.Add(step), 0)
	require.True(t, ok)
	assert.Equal(t, uint8(1), req.ID)
	assert.Equal(t, pos(7, 5), body.Position)
}

func TestTryStartMoveAllowsJustFinishedStep(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	p := NewPredictor(openMap(), body, &Ledger{})
	p.KeyPress(world.South)
	now := time.Unix(0, 0)

	_, ok := p.TryStartMove(now, 0)
	require.True(t, ok)
	body.Update(step*9/10, step)
	_, ok = p.TryStartMove(now.Add(step), 0)
	assert.True(t, ok)
	assert.Equal(t, []world.Position{pos(5, 7)}, body.Waypoints)
}

func TestCooldownIsShortenedByRTT(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	p := NewPredictor(openMap(pos(5, 4)), body, &Ledger{})
	p.KeyPress(world.North)
	now := time.Unix(0, 0)

	_, ok := p.TryStartMove(now, 50*time.Millisecond)
	require.True(t, ok)

	assert.False(t, p.CooldownElapsed(now.Add(149*time.Millisecond), 50*time.Millisecond))
	assert.True(t, p.CooldownElapsed(now.Add(150*time.Millisecond), 50*time.Millisecond))
	assert.False(t, p.CooldownElapsed(now.Add(150*time.Millisecond), 0))
}

func TestBlockedPredictionStaysInPlace(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	ledger := &Ledger{}
	p := NewPredictor(openMap(pos(5, 4)), body, ledger)
	p.KeyPress(world.North)

	req, ok := p.TryStartMove(time.Unix(0, 0), 0)
	require.True(t, ok)
	assert.Equal(t, world.North, req.Direction)
	assert.Equal(t, pos(5, 5), body.Position)
	assert.Equal(t, Idle, body.State())
	assert.Equal(t, world.North, body.Heading)
	assert.Equal(t, pos(5, 5), ledger.Entries()[0].Predicted)
}

func TestLedgerFullStopsPrediction(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	ledger := &Ledger{}
	p := NewPredictor(openMap(pos(5, 4)), body, ledger)
	p.KeyPress(world.North)

	now := time.Unix(0, 0)
	for i := 0; i < MaxPendingPredictions; i++ {
		_, ok := p.TryStartMove(now, 0)
		require.True(t, ok, "move %d", i)
		now = now.Add(step)
	}
	assert.True(t, ledger.Full())
	_, ok := p.TryStartMove(now, 0)
	assert.False(t, ok)
}

func TestSequenceWraps(t *testing.T) {
	body := NewBody(pos(5, 5), world.South)
	ledger := &Ledger{}
	p := NewPredictor(openMap(pos(5, 4)), body, ledger)
	p.KeyPress(world.North)

	now := time.Unix(0, 0)
	var ids []uint8
	for i := 0; i < 258; i++ {
		req, ok := p.TryStartMove(now, 0)
		require.True(t, ok)
		ids = append(ids, req.ID)
		ledger.Clear()
		now = now.Add(step)
	}
	assert.Equal(t, []uint8{254, 255, 0, 1}, ids[254:])
}
