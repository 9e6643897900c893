package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/movement"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// fakeConn Conn с ручными часами; отправленное копится в sent
type fakeConn struct {
	now  time.Time
	rtt  time.Duration
	sent []protocol.ClientPacket
}

func (c *fakeConn) Send(pkt protocol.ClientPacket) error {
	c.sent = append(c.sent, pkt)
	return nil
}
func (c *fakeConn) Ping() time.Duration { return c.rtt }
func (c *fakeConn) Now() time.Time      { return c.now }

func (c *fakeConn) take() []protocol.ClientPacket {
	out := c.sent
	c.sent = nil
	return out
}

const frame = time.Second / 60

func loggedIn(t *testing.T, maps world.MapProvider, at world.Position) (*Game, *fakeConn) {
	t.Helper()
	conn := &fakeConn{now: time.Unix(500, 0)}
	g := NewGame(conn, maps, Options{PingInterval: -1})
	require.NoError(t, g.Login("alice", false))
	g.HandlePacket(&protocol.LoginOk{EntityID: 1, Position: at})
	conn.take()
	id, ok := g.Self()
	require.True(t, ok)
	require.Equal(t, world.EntityID(1), id)
	return g, conn
}

func TestFrameSendsMoveRequests(t *testing.T) {
	g, conn := loggedIn(t, openMap(), pos(5, 5))
	g.Frame(frame)
	assert.Empty(t, conn.take(), "no key held")

	g.KeyPress(world.East)
	g.Frame(frame)
	assert.Equal(t, []protocol.ClientPacket{&protocol.MoveRequest{ID: 0, Direction: world.East}}, conn.take())
	assert.Equal(t, pos(6, 5), g.Body().Position)
	assert.Equal(t, 1, g.Ledger().Len())
}

func TestLostResponseTriggersResync(t *testing.T) {
	g, conn := loggedIn(t, openMap(), pos(5, 5))
	g.KeyPress(world.South)
	g.Frame(frame)
	g.KeyRelease(world.South)
	require.Len(t, conn.take(), 1)

	conn.now = conn.now.Add(DefaultResponseTimeout)
	g.Frame(frame)
	assert.Equal(t, []protocol.ClientPacket{&protocol.RequestPositionUpdate{}}, conn.take())
	assert.Zero(t, g.Ledger().Len())
	assert.Equal(t, uint64(1), g.Stats().ExpiredTotals)

	// Повторно не спрашивает, пока ждёт ответа
	conn.now = conn.now.Add(time.Second)
	g.Frame(frame)
	assert.Empty(t, conn.take())

	g.HandlePacket(&protocol.UserPosition{Position: pos(5, 5)})
	assert.Equal(t, pos(5, 5), g.Body().Position)
	assert.Equal(t, Idle, g.Body().State())

	conn.now = conn.now.Add(5 * time.Second)
	g.Frame(frame)
	assert.Empty(t, conn.take())
}

func TestResyncRequestIsRepeated(t *testing.T) {
	g, conn := loggedIn(t, openMap(), pos(5, 5))
	g.KeyPress(world.South)
	g.Frame(frame)
	g.KeyRelease(world.South)
	conn.take()

	conn.now = conn.now.Add(DefaultResponseTimeout)
	g.Frame(frame)
	conn.now = conn.now.Add(DefaultResponseTimeout)
	g.Frame(frame)
	assert.Equal(t, []protocol.ClientPacket{&protocol.RequestPositionUpdate{}, &protocol.RequestPositionUpdate{}}, conn.take())
}

func TestPingIsPeriodic(t *testing.T) {
	conn := &fakeConn{now: time.Unix(500, 0)}
	g := NewGame(conn, openMap(), Options{PingInterval: time.Second})
	g.HandlePacket(&protocol.LoginOk{EntityID: 3, Position: pos(1, 1)})

	g.Frame(frame)
	conn.now = conn.now.Add(500 * time.Millisecond)
	g.Frame(frame)
	conn.now = conn.now.Add(500 * time.Millisecond)
	g.Frame(frame)

	sent := conn.take()
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(time.Unix(500, 0).UnixNano()), sent[0].(*protocol.RequestPing).Timestamp)
}

func TestIgnoresOwnCharacterPacketsBeforeLogin(t *testing.T) {
	conn := &fakeConn{now: time.Unix(500, 0)}
	g := NewGame(conn, openMap(), DefaultOptions())
	g.KeyPress(world.North)
	g.Frame(frame)
	g.HandlePacket(&protocol.MoveResponse{RequestID: 0, Position: pos(9, 9)})
	assert.Empty(t, conn.take())
	assert.Equal(t, world.Position{}, g.Body().Position)

	g.HandlePacket(&protocol.LoginFailed{Reason: "unknown character"})
	assert.Equal(t, "unknown character", g.LastFailure())
	g.HandlePacket(&protocol.OnlineCount{Count: 4})
	assert.Equal(t, 4, g.Online())
}

// TestConvergesWithServer гоняет клиента против настоящего планировщика,
// у которого на карте есть стена, о которой клиент не знает.
func TestConvergesWithServer(t *testing.T) {
	wall := pos(8, 5)
	serverMaps := openMap(wall)
	clientMaps := openMap()

	var inbox []protocol.ServerPacket
	sched := movement.NewScheduler(serverMaps, movement.OutboxFunc(func(to world.EntityID, pkt protocol.ServerPacket) {
		if to == 1 {
			inbox = append(inbox, pkt)
		}
	}), movement.Options{})
	require.NoError(t, sched.Spawn(1, "alice", pos(5, 5), world.South))

	g, conn := loggedIn(t, clientMaps, pos(5, 5))
	ctx := context.Background()

	run := func(frames int) {
		for i := 0; i < frames; i++ {
			conn.now = conn.now.Add(frame)
			// Ответы прошлого тика приходят в начале кадра
			for _, pkt := range inbox {
				g.HandlePacket(pkt)
			}
			inbox = nil
			g.Frame(frame)
			for _, pkt := range conn.take() {
				if req, ok := pkt.(*protocol.MoveRequest); ok {
					sched.Enqueue(1, *req)
				}
			}
			sched.Tick(ctx, conn.now)
		}
	}

	g.KeyPress(world.East)
	run(120)
	g.KeyRelease(world.East)
	run(60)

	serverPos, ok := sched.Position(1)
	require.True(t, ok)
	assert.Equal(t, pos(7, 5), serverPos)
	assert.Equal(t, serverPos, g.Body().Position)
	assert.Equal(t, Idle, g.Body().State())
	assert.Zero(t, g.Ledger().Len())
	assert.NotZero(t, g.Stats().Mispredicted)

	// И обратно на юг без расхождений
	g.KeyPress(world.South)
	run(30)
	g.KeyRelease(world.South)
	run(60)
	serverPos, _ = sched.Position(1)
	assert.Equal(t, serverPos, g.Body().Position)
	assert.Equal(t, world.South, g.Body().Heading)
}

func TestPredictsOnDefaultMap(t *testing.T) {
	spawn := world.Position{Map: world.DefaultMapID, X: 50, Y: 50}
	sched := movement.NewScheduler(world.NewMapSet(world.DefaultMap()), movement.OutboxFunc(func(world.EntityID, protocol.ServerPacket) {}), movement.Options{})
	require.NoError(t, sched.Spawn(1, "alice", spawn, world.South))

	g, conn := loggedIn(t, world.NewMapSet(world.DefaultMap()), spawn)
	g.KeyPress(world.East)
	g.Frame(frame)

	want := world.Position{Map: world.DefaultMapID, X: 51, Y: 50}
	assert.Equal(t, want, g.Body().Position)
	assert.Equal(t, []protocol.ClientPacket{&protocol.MoveRequest{ID: 0, Direction: world.East}}, conn.take())

	sched.Enqueue(1, protocol.MoveRequest{ID: 0, Direction: world.East})
	sched.Tick(context.Background(), conn.now)
	serverPos, ok := sched.Position(1)
	require.True(t, ok)
	assert.Equal(t, want, serverPos)
}
