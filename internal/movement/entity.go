package movement

import (
	"sync"
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// Entity состояние движения одного персонажа на сервере.
// Очередь и lastMove принадлежат только этой сущности и защищены её мьютексом.
type Entity struct {
	ID   world.EntityID
	Name string

	mu       sync.Mutex
	position world.Position
	heading  world.Heading
	lastMove time.Time
	pending  []protocol.MoveRequest
	limit    int
	dropped  uint64
}

// Snapshot копия состояния сущности для чтения снаружи
type Snapshot struct {
	ID       world.EntityID `json:"id"`
	Name     string         `json:"name"`
	Position world.Position `json:"position"`
	Heading  string         `json:"heading"`
	LastMove time.Time      `json:"last_move"`
	Pending  int            `json:"pending"`
	Dropped  uint64         `json:"dropped"`
}

func newEntity(id world.EntityID, name string, pos world.Position, heading world.Heading, limit int) *Entity {
	return &Entity{ID: id, Name: name, position: pos, heading: heading, limit: limit}
}

// push добавляет запрос в конец очереди. При переполнении отбрасывается
// самый старый запрос; возвращает true, если что-то было отброшено.
func (e *Entity) push(req protocol.MoveRequest) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := false
	if e.limit > 0 && len(e.pending) >= e.limit {
		e.pending = e.pending[1:]
		e.dropped++
		dropped = true
	}
	e.pending = append(e.pending, req)
	return dropped
}

// Position возвращает авторитетную позицию
func (e *Entity) Position() world.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Heading возвращает направление взгляда
func (e *Entity) Heading() world.Heading {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heading
}

func (e *Entity) setHeading(h world.Heading) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.heading == h {
		return false
	}
	e.heading = h
	return true
}

// Snapshot возвращает копию состояния
func (e *Entity) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		ID:       e.ID,
		Name:     e.Name,
		Position: e.position,
		Heading:  e.heading.String(),
		LastMove: e.lastMove,
		Pending:  len(e.pending),
		Dropped:  e.dropped,
	}
}

// step применяет не более одного запроса из очереди, если прошёл интервал
func (e *Entity) step(now time.Time, interval time.Duration, maps world.MapProvider) (moveResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return moveResult{}, false
	}
	if !e.lastMove.IsZero() && now.Sub(e.lastMove) < interval {
		return moveResult{}, false
	}

	req := e.pending[0]
	e.pending[0] = protocol.MoveRequest{}
	e.pending = e.pending[1:]
	if len(e.pending) == 0 {
		e.pending = nil
	}

	from, turned := e.position, e.heading != req.Direction
	to := world.NextPosition(maps, from, req.Direction)
	e.position = to
	e.heading = req.Direction
	e.lastMove = now

	return moveResult{
		entity:    e,
		requestID: req.ID,
		direction: req.Direction,
		from:      from,
		to:        to,
		turned:    turned,
		at:        now,
	}, true
}

// moveResult применённый шаг, ожидающий рассылки
type moveResult struct {
	entity    *Entity
	requestID uint8
	direction world.Direction
	from, to  world.Position
	turned    bool
	at        time.Time
}

func (r moveResult) blocked() bool {
	return r.from == r.to
}
