package movement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/eventbus"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/protocol/events"
	"github.com/annel0/tile-movement/internal/world"
)

type sent struct {
	to  world.EntityID
	pkt protocol.ServerPacket
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Unicast(to world.EntityID, pkt protocol.ServerPacket) {
	r.mu.Lock()
	r.sent = append(r.sent, sent{to, pkt})
	r.mu.Unlock()
}

func (r *recorder) Broadcast(to []world.EntityID, pkt protocol.ServerPacket) {
	for _, id := range to {
		r.Unicast(id, pkt)
	}
}

func (r *recorder) take() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func (r *recorder) responses(to world.EntityID) []*protocol.MoveResponse {
	var out []*protocol.MoveResponse
	for _, s := range r.take() {
		if resp, ok := s.pkt.(*protocol.MoveResponse); ok && s.to == to {
			out = append(out, resp)
		}
	}
	return out
}

func testMaps() *world.MapSet {
	m := world.NewTileMap(1, 20, 20)
	m.SetBlocked(6, 5, true)
	return world.NewMapSet(m)
}

func newTestScheduler(t *testing.T, opts Options) (*Scheduler, *recorder) {
	t.Helper()
	out := &recorder{}
	return NewScheduler(testMaps(), out, opts), out
}

func pos(x, y uint16) world.Position {
	return world.Position{Map: 1, X: x, Y: y}
}

func TestTickRespectsInterval(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	out.take()

	for id := uint8(0); id < 3; id++ {
		require.True(t, s.Enqueue(1, protocol.MoveRequest{ID: id, Direction: world.East}))
	}

	t0 := time.Unix(1000, 0)
	ctx := context.Background()
	steps := []struct {
		at      time.Duration
		applied int
	}{
		{0, 1},
		{100 * time.Millisecond, 0},
		{199 * time.Millisecond, 0},
		{200 * time.Millisecond, 1},
		{350 * time.Millisecond, 0},
		{400 * time.Millisecond, 1},
		{600 * time.Millisecond, 0},
	}
	var got []*protocol.MoveResponse
	for _, st := range steps {
		assert.Equal(t, st.applied, s.Tick(ctx, t0.Add(st.at)), "tick at %v", st.at)
		got = append(got, out.responses(1)...)
	}

	require.Len(t, got, 3)
	for i, resp := range got {
		assert.Equal(t, uint8(i), resp.RequestID)
		assert.Equal(t, pos(uint16(3+i), 2), resp.Position)
	}
	p, ok := s.Position(1)
	require.True(t, ok)
	assert.Equal(t, pos(5, 2), p)
}

func TestNoTwoMovesWithinInterval(t *testing.T) {
	s, out := newTestScheduler(t, Options{Interval: 200 * time.Millisecond})
	require.NoError(t, s.Spawn(1, "a", pos(0, 0), world.South))
	require.NoError(t, s.Spawn(2, "b", pos(10, 10), world.South))
	out.take()

	ctx := context.Background()
	t0 := time.Unix(0, 0)
	last := map[world.EntityID]time.Time{}
	for ms := 0; ms < 3000; ms += 10 {
		now := t0.Add(time.Duration(ms) * time.Millisecond)
		s.Enqueue(1, protocol.MoveRequest{ID: uint8(ms), Direction: world.East})
		if ms%30 == 0 {
			s.Enqueue(2, protocol.MoveRequest{ID: uint8(ms), Direction: world.North})
		}
		s.Tick(ctx, now)
		for _, m := range out.take() {
			if _, ok := m.pkt.(*protocol.MoveResponse); !ok {
				continue
			}
			if prev, ok := last[m.to]; ok {
				assert.GreaterOrEqual(t, now.Sub(prev), 200*time.Millisecond)
			}
			last[m.to] = now
		}
	}
	assert.Len(t, last, 2)
}

func TestBlockedMoveIsIdempotent(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(5, 5), world.South))
	out.take()
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	s.Enqueue(1, protocol.MoveRequest{ID: 1, Direction: world.East})
	s.Tick(ctx, t0)
	first := out.responses(1)

	s.Enqueue(1, protocol.MoveRequest{ID: 2, Direction: world.East})
	s.Tick(ctx, t0.Add(time.Second))
	second := out.responses(1)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, pos(5, 5), first[0].Position)
	assert.Equal(t, first[0].Position, second[0].Position)
	assert.Equal(t, uint8(2), second[0].RequestID)

	e, _ := s.Entity(1)
	assert.Equal(t, world.East, e.Heading())
}

func TestEnqueueUnknownEntityIsDropped(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	assert.False(t, s.Enqueue(42, protocol.MoveRequest{ID: 1, Direction: world.North}))
	assert.Equal(t, 0, s.Tick(context.Background(), time.Now()))
	assert.Empty(t, out.take())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	s, out := newTestScheduler(t, Options{PendingLimit: 2})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	out.take()
	for id := uint8(1); id <= 3; id++ {
		s.Enqueue(1, protocol.MoveRequest{ID: id, Direction: world.South})
	}

	e, _ := s.Entity(1)
	snap := e.Snapshot()
	assert.Equal(t, 2, snap.Pending)
	assert.Equal(t, uint64(1), snap.Dropped)

	ctx := context.Background()
	t0 := time.Unix(0, 0)
	s.Tick(ctx, t0)
	s.Tick(ctx, t0.Add(200*time.Millisecond))
	got := out.responses(1)
	require.Len(t, got, 2)
	assert.Equal(t, uint8(2), got[0].RequestID)
	assert.Equal(t, uint8(3), got[1].RequestID)
}

func TestMoveBroadcastExcludesMover(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	require.NoError(t, s.Spawn(2, "bob", pos(4, 4), world.South))
	require.NoError(t, s.Spawn(3, "far", pos(19, 19), world.South))
	out.take()

	s.Enqueue(1, protocol.MoveRequest{ID: 9, Direction: world.East})
	require.Equal(t, 1, s.Tick(context.Background(), time.Unix(0, 0)))

	msgs := out.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, world.EntityID(1), msgs[0].to)
	assert.Equal(t, &protocol.MoveResponse{RequestID: 9, Position: pos(3, 2)}, msgs[0].pkt)
	assert.Equal(t, world.EntityID(2), msgs[1].to)
	assert.Equal(t, &protocol.CharacterMove{EntityID: 1, Position: pos(3, 2)}, msgs[1].pkt)
}

func TestSpawnAndDespawnNotifyArea(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	assert.Empty(t, out.take())

	require.NoError(t, s.Spawn(2, "bob", pos(3, 3), world.North))
	msgs := out.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, sent{1, &protocol.CharacterCreate{EntityID: 2, Name: "bob", Position: pos(3, 3), Heading: world.North}}, msgs[0])
	assert.Equal(t, sent{2, &protocol.CharacterCreate{EntityID: 1, Name: "alice", Position: pos(2, 2), Heading: world.South}}, msgs[1])

	assert.ErrorIs(t, s.Spawn(2, "bob", pos(3, 3), world.North), ErrEntityExists)

	snap, ok := s.Despawn(2)
	require.True(t, ok)
	assert.Equal(t, pos(3, 3), snap.Position)
	assert.Equal(t, []sent{{1, &protocol.CharacterRemove{EntityID: 2}}}, out.take())
	assert.Equal(t, 1, s.Len())

	_, ok = s.Despawn(2)
	assert.False(t, ok)
}

func TestAreaEnterAndLeave(t *testing.T) {
	s, out := newTestScheduler(t, Options{AreaRadius: 2})
	require.NoError(t, s.Spawn(1, "alice", pos(1, 1), world.East))
	require.NoError(t, s.Spawn(2, "bob", pos(4, 1), world.West))
	assert.Empty(t, out.take())

	ctx := context.Background()
	t0 := time.Unix(0, 0)

	s.Enqueue(1, protocol.MoveRequest{ID: 1, Direction: world.East})
	s.Tick(ctx, t0)
	msgs := out.take()
	require.Len(t, msgs, 3)
	assert.IsType(t, &protocol.MoveResponse{}, msgs[0].pkt)
	assert.Equal(t, sent{2, &protocol.CharacterCreate{EntityID: 1, Name: "alice", Position: pos(2, 1), Heading: world.East}}, msgs[1])
	assert.Equal(t, sent{1, &protocol.CharacterCreate{EntityID: 2, Name: "bob", Position: pos(4, 1), Heading: world.West}}, msgs[2])

	s.Enqueue(1, protocol.MoveRequest{ID: 2, Direction: world.West})
	s.Tick(ctx, t0.Add(time.Second))
	msgs = out.take()
	require.Len(t, msgs, 3)
	assert.Equal(t, sent{2, &protocol.CharacterRemove{EntityID: 1}}, msgs[1])
	assert.Equal(t, sent{1, &protocol.CharacterRemove{EntityID: 2}}, msgs[2])
}

func TestBlockedTurnBroadcastsHeading(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(5, 5), world.South))
	require.NoError(t, s.Spawn(2, "bob", pos(5, 7), world.North))
	out.take()

	s.Enqueue(1, protocol.MoveRequest{ID: 1, Direction: world.East})
	s.Tick(context.Background(), time.Unix(0, 0))
	msgs := out.take()
	require.Len(t, msgs, 3)
	assert.Equal(t, sent{1, &protocol.MoveResponse{RequestID: 1, Position: pos(5, 5)}}, msgs[0])
	assert.Equal(t, sent{2, &protocol.CharacterHeading{EntityID: 1, Direction: world.East}}, msgs[1])
	assert.Equal(t, sent{2, &protocol.CharacterMove{EntityID: 1, Position: pos(5, 5)}}, msgs[2])

	// повторный упор в стену: поворота нет, наблюдатель всё равно получает Move
	s.Enqueue(1, protocol.MoveRequest{ID: 2, Direction: world.East})
	s.Tick(context.Background(), time.Unix(1, 0))
	msgs = out.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, sent{2, &protocol.CharacterMove{EntityID: 1, Position: pos(5, 5)}}, msgs[1])
}

func TestSetHeading(t *testing.T) {
	s, out := newTestScheduler(t, Options{})
	require.NoError(t, s.Spawn(1, "alice", pos(5, 5), world.South))
	require.NoError(t, s.Spawn(2, "bob", pos(6, 6), world.North))
	out.take()

	assert.True(t, s.SetHeading(1, world.West))
	assert.Equal(t, []sent{{2, &protocol.CharacterHeading{EntityID: 1, Direction: world.West}}}, out.take())

	assert.True(t, s.SetHeading(1, world.West))
	assert.Empty(t, out.take())
	assert.False(t, s.SetHeading(1, world.Direction(9)))
	assert.False(t, s.SetHeading(7, world.North))
}

func TestParallelTickAppliesEveryEntity(t *testing.T) {
	s, out := newTestScheduler(t, Options{Workers: 4, AreaRadius: 1})
	for i := 0; i < 40; i++ {
		require.NoError(t, s.Spawn(world.EntityID(i+1), "bot", pos(uint16(i%20), uint16(10+i/20*3)), world.South))
	}
	out.take()
	for i := 0; i < 40; i++ {
		s.Enqueue(world.EntityID(i+1), protocol.MoveRequest{ID: uint8(i), Direction: world.South})
	}

	assert.Equal(t, 40, s.Tick(context.Background(), time.Unix(0, 0)))
	responses := 0
	for _, m := range out.take() {
		if resp, ok := m.pkt.(*protocol.MoveResponse); ok {
			responses++
			assert.Equal(t, uint8(m.to-1), resp.RequestID)
		}
	}
	assert.Equal(t, 40, responses)
}

func TestDiffObservers(t *testing.T) {
	stayed, entered, left := diffObservers([]world.EntityID{1, 2, 4}, []world.EntityID{2, 3, 4, 5})
	assert.Equal(t, []world.EntityID{2, 4}, stayed)
	assert.Equal(t, []world.EntityID{3, 5}, entered)
	assert.Equal(t, []world.EntityID{1}, left)
}

func TestMovesArePublished(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	var mu sync.Mutex
	var moved []events.CharacterMoved
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{string(events.EventCharacterMoved)}},
		func(_ context.Context, ev *eventbus.Envelope) {
			var m events.CharacterMoved
			if m.Unmarshal(ev.Payload) == nil {
				mu.Lock()
				moved = append(moved, m)
				mu.Unlock()
			}
		})
	require.NoError(t, err)

	s, _ := newTestScheduler(t, Options{Bus: bus})
	require.NoError(t, s.Spawn(1, "alice", pos(5, 5), world.South))
	s.Enqueue(1, protocol.MoveRequest{ID: 4, Direction: world.East})
	s.Tick(context.Background(), time.Unix(0, 0))
	s.Close()
	require.NoError(t, bus.Close())

	require.Len(t, moved, 1)
	assert.True(t, moved[0].Blocked)
	assert.Equal(t, uint8(4), moved[0].RequestID)
}

// stalledBus ведёт себя как JetStream без ack: Publish ждёт до отмены ctx
type stalledBus struct {
	eventbus.EventBus
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func newStalledBus() *stalledBus {
	return &stalledBus{EventBus: eventbus.NewMemoryBus(1), release: make(chan struct{})}
}

func (b *stalledBus) Publish(ctx context.Context, ev *eventbus.Envelope) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (b *stalledBus) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestStalledBusDoesNotBlockTick(t *testing.T) {
	bus := newStalledBus()
	metrics := NewMetrics(nil)
	s, out := newTestScheduler(t, Options{Bus: bus, Metrics: metrics, EventQueue: 1, PublishTimeout: time.Hour})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	require.Eventually(t, func() bool { return bus.Calls() == 1 }, time.Second, time.Millisecond)
	out.take()

	done := make(chan struct{})
	go func() {
		defer close(done)
		t0 := time.Unix(0, 0)
		for i := 0; i < 3; i++ {
			s.Enqueue(1, protocol.MoveRequest{ID: uint8(i), Direction: world.East})
			s.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
		}
		// вход второго персонажа не ждёт шину
		assert.NoError(t, s.Spawn(2, "bob", pos(9, 9), world.North))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick blocked by event bus")
	}
	assert.Len(t, out.responses(1), 3)
	assert.Equal(t, pos(5, 2), mustPosition(t, s, 1))
	// в очереди одно место: одно событие ждёт, остальные отброшены
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.EventsDropped))

	close(bus.release)
	s.Close()
	assert.Equal(t, 2, bus.Calls())
}

func TestPublishTimeoutCountsFailure(t *testing.T) {
	bus := newStalledBus()
	metrics := NewMetrics(nil)
	s, _ := newTestScheduler(t, Options{Bus: bus, Metrics: metrics, PublishTimeout: 10 * time.Millisecond})
	require.NoError(t, s.Spawn(1, "alice", pos(2, 2), world.South))
	s.Enqueue(1, protocol.MoveRequest{ID: 0, Direction: world.East})
	s.Tick(context.Background(), time.Unix(0, 0))

	s.Close()
	assert.Equal(t, 2, bus.Calls())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EventsFailed))
	assert.Zero(t, testutil.ToFloat64(metrics.EventsDropped))
}

func mustPosition(t *testing.T, s *Scheduler, id world.EntityID) world.Position {
	t.Helper()
	p, ok := s.Position(id)
	require.True(t, ok)
	return p
}
