// Package movement реализует серверный планировщик перемещений: единственного
// писателя авторитетных позиций с фиксированным интервалом между шагами.
package movement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annel0/tile-movement/internal/eventbus"
	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/protocol/events"
	"github.com/annel0/tile-movement/internal/world"
)

var (
	// ErrEntityExists сущность с таким ID уже в мире
	ErrEntityExists = errors.New("movement: entity already exists")
	// ErrUnknownEntity сущность не найдена
	ErrUnknownEntity = errors.New("movement: unknown entity")
)

// eventSource значение Envelope.Source для событий планировщика
const eventSource = "movement"

// Options параметры планировщика
type Options struct {
	Interval       time.Duration // минимальный интервал между шагами сущности
	PendingLimit   int           // ёмкость очереди запросов одной сущности
	AreaRadius     int           // радиус области видимости
	Workers        int           // параллельных обработчиков тика
	Metrics        *Metrics
	Bus            eventbus.EventBus
	EventQueue     int           // ёмкость очереди событий шины
	PublishTimeout time.Duration // предел одной публикации
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		Interval:     protocol.MoveInterval,
		PendingLimit: 8,
		AreaRadius:   12,
		Workers:      1,
	}
}

// Scheduler хранит состояние движения всех сущностей и раз в тик применяет
// не более одного запроса каждой из них.
type Scheduler struct {
	maps   world.MapProvider
	out    Outbox
	area   *world.AreaIndex
	opts   Options
	logger *logging.Logger

	mu       sync.RWMutex
	entities map[world.EntityID]*Entity

	tickMu sync.Mutex
	events *publisher // nil без шины
}

// NewScheduler создаёт планировщик
func NewScheduler(maps world.MapProvider, out Outbox, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = def.PendingLimit
	}
	if opts.AreaRadius <= 0 {
		opts.AreaRadius = def.AreaRadius
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = DefaultEventQueue
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	s := &Scheduler{
		maps:     maps,
		out:      out,
		area:     world.NewAreaIndex(opts.AreaRadius),
		opts:     opts,
		logger:   logging.GetGameLogger(),
		entities: make(map[world.EntityID]*Entity),
	}
	if opts.Bus != nil {
		s.events = newPublisher(opts.Bus, opts.EventQueue, opts.PublishTimeout, opts.Metrics, s.logger)
	}
	return s
}

// Close публикует накопленные события и останавливает отправку в шину.
// Вызывать до закрытия самой шины.
func (s *Scheduler) Close() {
	if s.events != nil {
		s.events.close()
	}
}

// Interval возвращает интервал шага
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Spawn добавляет сущность в мир. Новичок получает CharacterCreate для всех
// сущностей своей области, а они получают CharacterCreate новичка.
func (s *Scheduler) Spawn(id world.EntityID, name string, pos world.Position, heading world.Heading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[id]; exists {
		return ErrEntityExists
	}
	e := newEntity(id, name, pos, heading, s.opts.PendingLimit)
	s.entities[id] = e
	s.area.Upsert(id, pos)
	s.opts.Metrics.Entities.Set(float64(len(s.entities)))

	observers := s.area.Nearby(pos, id)
	if len(observers) > 0 {
		s.out.Broadcast(observers, createPacket(e.Snapshot(), heading))
		for _, other := range observers {
			if o, ok := s.entities[other]; ok {
				s.out.Unicast(id, createPacket(o.Snapshot(), o.Heading()))
			}
		}
	}

	s.logger.Debug("Entity %d (%s) spawned at %s, %d observers", id, name, pos, len(observers))
	s.publishSession(events.EventCharacterLogin, e.Snapshot())
	return nil
}

// Despawn удаляет сущность, рассылая CharacterRemove её области.
// Возвращает последнее состояние для сохранения позиции.
func (s *Scheduler) Despawn(id world.EntityID) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return Snapshot{}, false
	}
	snap := e.Snapshot()
	observers := s.area.Nearby(snap.Position, id)
	delete(s.entities, id)
	s.area.Remove(id)
	s.opts.Metrics.Entities.Set(float64(len(s.entities)))

	if len(observers) > 0 {
		s.out.Broadcast(observers, &protocol.CharacterRemove{EntityID: id})
	}
	s.logger.Debug("Entity %d (%s) despawned at %s", id, snap.Name, snap.Position)
	s.publishSession(events.EventCharacterLogout, snap)
	return snap, true
}

// Enqueue ставит запрос в очередь сущности без проверок.
// Запросы для неизвестных сущностей молча отбрасываются (false).
func (s *Scheduler) Enqueue(id world.EntityID, req protocol.MoveRequest) bool {
	s.mu.RLock()
	e, ok := s.entities[id]
	s.mu.RUnlock()
	if !ok {
		s.opts.Metrics.UnknownEntity.Inc()
		return false
	}
	if e.push(req) {
		s.opts.Metrics.MovesDropped.Inc()
		s.logger.Trace("Entity %d queue full, oldest move dropped", id)
	}
	return true
}

// SetHeading меняет направление взгляда и рассылает CharacterHeading области
func (s *Scheduler) SetHeading(id world.EntityID, heading world.Heading) bool {
	if !heading.Valid() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return false
	}
	if e.setHeading(heading) {
		if observers := s.area.Nearby(e.Position(), id); len(observers) > 0 {
			s.out.Broadcast(observers, &protocol.CharacterHeading{EntityID: id, Direction: heading})
		}
	}
	return true
}

// Tick применяет готовые запросы. Сущности обрабатываются независимо
// (при Workers > 1 параллельно), рассылка идёт последовательно по ID.
// Возвращает число применённых шагов.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	started := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	ents := s.sortedEntities()
	results := make([]moveResult, len(ents))
	applied := make([]bool, len(ents))

	workers := s.opts.Workers
	if workers <= 1 || len(ents) < 2*workers {
		for i, e := range ents {
			results[i], applied[i] = e.step(now, s.opts.Interval, s.maps)
		}
	} else {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		chunk := (len(ents) + workers - 1) / workers
		for lo := 0; lo < len(ents); lo += chunk {
			hi := min(lo+chunk, len(ents))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					results[i], applied[i] = ents[i].step(now, s.opts.Interval, s.maps)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	count, queued := 0, 0
	for i, ok := range applied {
		if ok {
			s.deliver(results[i])
			count++
		}
		ents[i].mu.Lock()
		queued += len(ents[i].pending)
		ents[i].mu.Unlock()
	}

	s.opts.Metrics.QueuedMoves.Set(float64(queued))
	s.opts.Metrics.TickDuration.Observe(time.Since(started).Seconds())
	return count
}

// sortedEntities вызывается под s.mu
func (s *Scheduler) sortedEntities() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// deliver рассылает результат шага; вызывается под s.mu
func (s *Scheduler) deliver(r moveResult) {
	id := r.entity.ID
	m := s.opts.Metrics
	m.MovesApplied.Inc()

	before := s.area.Nearby(r.from, id)
	if !r.blocked() {
		s.area.Upsert(id, r.to)
	} else {
		m.MovesBlocked.Inc()
	}
	after := before
	if !r.blocked() {
		after = s.area.Nearby(r.to, id)
	}

	s.out.Unicast(id, &protocol.MoveResponse{RequestID: r.requestID, Position: r.to})

	stayed, entered, left := diffObservers(before, after)
	if len(stayed) > 0 {
		if r.blocked() && r.turned {
			s.out.Broadcast(stayed, &protocol.CharacterHeading{EntityID: id, Direction: r.direction})
		}
		// при блокировке r.to совпадает с прежней позицией
		s.out.Broadcast(stayed, &protocol.CharacterMove{EntityID: id, Position: r.to})
	}
	if len(entered) > 0 {
		s.out.Broadcast(entered, createPacket(r.entity.Snapshot(), r.direction))
		for _, other := range entered {
			if o, ok := s.entities[other]; ok {
				s.out.Unicast(id, createPacket(o.Snapshot(), o.Heading()))
			}
		}
	}
	if len(left) > 0 {
		s.out.Broadcast(left, &protocol.CharacterRemove{EntityID: id})
		for _, other := range left {
			s.out.Unicast(id, &protocol.CharacterRemove{EntityID: other})
		}
	}

	logging.LogEntityMovement(uint32(id), r.from.Map, r.from.X, r.from.Y, r.to.Map, r.to.X, r.to.Y, uint8(r.direction))
	s.publishMove(r)
}

// diffObservers делит наблюдателей до и после шага (оба списка отсортированы)
func diffObservers(before, after []world.EntityID) (stayed, entered, left []world.EntityID) {
	i, j := 0, 0
	for i < len(before) && j < len(after) {
		switch {
		case before[i] == after[j]:
			stayed = append(stayed, before[i])
			i++
			j++
		case before[i] < after[j]:
			left = append(left, before[i])
			i++
		default:
			entered = append(entered, after[j])
			j++
		}
	}
	left = append(left, before[i:]...)
	entered = append(entered, after[j:]...)
	return stayed, entered, left
}

func createPacket(snap Snapshot, heading world.Heading) *protocol.CharacterCreate {
	return &protocol.CharacterCreate{
		EntityID: snap.ID,
		Name:     snap.Name,
		Position: snap.Position,
		Heading:  heading,
	}
}

func (s *Scheduler) publishMove(r moveResult) {
	if s.events == nil {
		return
	}
	ev := events.CharacterMoved{
		EntityID:  r.entity.ID,
		RequestID: r.requestID,
		From:      r.from,
		To:        r.to,
		Blocked:   r.blocked(),
	}
	env := eventbus.NewEnvelope(eventSource, string(events.EventCharacterMoved), ev.Marshal())
	env.Priority = 1
	s.events.enqueue(env)
}

func (s *Scheduler) publishSession(t events.EventType, snap Snapshot) {
	if s.events == nil {
		return
	}
	ev := events.CharacterSession{EntityID: snap.ID, Name: snap.Name, Position: snap.Position}
	env := eventbus.NewEnvelope(eventSource, string(t), ev.Marshal())
	env.Priority = 5
	s.events.enqueue(env)
}

// Entity возвращает сущность по ID
func (s *Scheduler) Entity(id world.EntityID) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Position возвращает авторитетную позицию сущности
func (s *Scheduler) Position(id world.EntityID) (world.Position, bool) {
	e, ok := s.Entity(id)
	if !ok {
		return world.Position{}, false
	}
	return e.Position(), true
}

// Observers возвращает сущности в области вокруг id (без неё самой)
func (s *Scheduler) Observers(id world.EntityID) []world.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil
	}
	return s.area.Nearby(e.Position(), id)
}

// Snapshots возвращает состояние всех сущностей, отсортированное по ID
func (s *Scheduler) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ents := s.sortedEntities()
	out := make([]Snapshot, len(ents))
	for i, e := range ents {
		out[i] = e.Snapshot()
	}
	return out
}

// Len возвращает число сущностей
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
