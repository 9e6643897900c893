package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/movement"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/storage"
	"github.com/annel0/tile-movement/internal/world"
)

// MaxChatLength максимальная длина реплики в символах
const MaxChatLength = 200

// storageTimeout ограничивает обращения к хранилищу позиций
const storageTimeout = 3 * time.Second

// GameHandler обрабатывает пакеты клиентов и доставляет пакеты планировщика
// в сессии (реализует movement.Outbox).
type GameHandler struct {
	scheduler *movement.Scheduler
	positions storage.PositionRepo
	maps      world.MapProvider
	spawn     world.Position
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *logging.Logger

	mu       sync.RWMutex
	byEntity map[world.EntityID]*Session
	online   map[string]world.EntityID

	lastEntityID atomic.Uint32
}

// NewGameHandler создаёт обработчик. Планировщик подключается через
// AttachScheduler: он сам получает обработчик как Outbox.
func NewGameHandler(maps world.MapProvider, positions storage.PositionRepo, spawn world.Position, metrics *Metrics) *GameHandler {
	if positions == nil {
		positions = storage.NewMemoryPositionRepo()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &GameHandler{
		positions: positions,
		maps:      maps,
		spawn:     spawn,
		metrics:   metrics,
		tracer:    otel.Tracer("tile-movement/network"),
		logger:    logging.GetNetworkLogger(),
		byEntity:  make(map[world.EntityID]*Session),
		online:    make(map[string]world.EntityID),
	}
}

// AttachScheduler связывает обработчик с планировщиком
func (gh *GameHandler) AttachScheduler(s *movement.Scheduler) {
	gh.scheduler = s
}

// Scheduler возвращает подключённый планировщик
func (gh *GameHandler) Scheduler() *movement.Scheduler {
	return gh.scheduler
}

// Unicast доставляет пакет персонажу (movement.Outbox)
func (gh *GameHandler) Unicast(to world.EntityID, pkt protocol.ServerPacket) {
	gh.mu.RLock()
	sess, ok := gh.byEntity[to]
	gh.mu.RUnlock()
	if !ok {
		return
	}
	if err := sess.Send(pkt); err != nil {
		gh.logger.Trace("Drop %T for entity %d: %v", pkt, to, err)
	}
}

// Broadcast доставляет пакет списку персонажей (movement.Outbox)
func (gh *GameHandler) Broadcast(to []world.EntityID, pkt protocol.ServerPacket) {
	for _, id := range to {
		gh.Unicast(id, pkt)
	}
}

// OnConnect вызывается для новой сессии
func (gh *GameHandler) OnConnect(sess *Session) {
	gh.metrics.Sessions.Inc()
	_ = sess.Send(&protocol.Connected{})
	gh.logger.Info("Client connected: %s (%s via %s)", sess.ID, sess.Channel.RemoteAddr(), sess.Channel.Type())
}

// OnDisconnect убирает персонажа сессии из мира и сохраняет его позицию
func (gh *GameHandler) OnDisconnect(sess *Session) {
	gh.metrics.Sessions.Dec()
	gh.leave(context.Background(), sess)
	gh.logger.Info("Client disconnected: %s", sess.ID)
}

// HandlePacket обрабатывает сырые байты пакета. Некорректные пакеты
// логируются и отбрасываются, соединение при этом не рвётся.
func (gh *GameHandler) HandlePacket(ctx context.Context, sess *Session, data []byte) {
	gh.metrics.PacketsIn.WithLabelValues(sess.Channel.Type().String()).Inc()
	pkt, err := protocol.DecodeClient(data)
	if err != nil {
		gh.metrics.MalformedPacket.Inc()
		logging.LogProtocolError(sess.ID, err, data)
		return
	}
	gh.Dispatch(ctx, sess, pkt)
}

// Dispatch обрабатывает декодированный пакет
func (gh *GameHandler) Dispatch(ctx context.Context, sess *Session, pkt protocol.ClientPacket) {
	switch p := pkt.(type) {
	case *protocol.AccountLogin:
		gh.handleLogin(ctx, sess, p.Name, false)
	case *protocol.AccountCreate:
		gh.handleLogin(ctx, sess, p.Name, true)
	case *protocol.AccountLogout:
		if gh.leave(ctx, sess) {
			_ = sess.Send(&protocol.LoggedOut{})
		}
	case *protocol.MoveRequest:
		if id, _, ok := sess.Identity(); ok {
			gh.scheduler.Enqueue(id, *p)
		}
	case *protocol.ChangeHeading:
		if id, _, ok := sess.Identity(); ok {
			gh.scheduler.SetHeading(id, p.Direction)
		}
	case *protocol.Talk:
		gh.handleTalk(sess, p.Text)
	case *protocol.RequestPositionUpdate:
		if id, _, ok := sess.Identity(); ok {
			if pos, found := gh.scheduler.Position(id); found {
				_ = sess.Send(&protocol.UserPosition{Position: pos})
			}
		}
	case *protocol.RequestPing:
		_ = sess.Send(&protocol.Pong{Timestamp: p.Timestamp})
	case *protocol.RequestOnline:
		_ = sess.Send(&protocol.OnlineCount{Count: uint16(min(gh.scheduler.Len(), 0xffff))})
	default:
		gh.metrics.IgnoredPackets.WithLabelValues(fmt.Sprintf("%T", pkt)).Inc()
		gh.logger.Debug("Ignored packet %T from %s", pkt, sess.ID)
	}
}

func (gh *GameHandler) handleLogin(ctx context.Context, sess *Session, name string, create bool) {
	ctx, span := gh.tracer.Start(ctx, "account.login",
		trace.WithAttributes(attribute.String("character", name), attribute.Bool("create", create)))
	defer span.End()

	fail := func(reason string) {
		span.SetStatus(codes.Error, reason)
		_ = sess.Send(&protocol.LoginFailed{Reason: reason})
		gh.logger.Info("Login of %q from %s failed: %s", name, sess.ID, reason)
	}

	if _, _, ok := sess.Identity(); ok {
		fail("already logged in")
		return
	}
	if err := storage.ValidateName(name); err != nil {
		fail("invalid name")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	saved, found, err := gh.positions.Load(sctx, name)
	if err != nil {
		span.RecordError(err)
		gh.logger.Error("Failed to load position of %q: %v", name, err)
		fail("storage unavailable")
		return
	}
	switch {
	case create && found:
		fail("name taken")
		return
	case !create && !found:
		fail("unknown character")
		return
	}

	pos := gh.spawnPosition(saved, found)
	if create {
		if err := gh.positions.Save(sctx, name, pos); err != nil {
			span.RecordError(err)
			gh.logger.Error("Failed to create character %q: %v", name, err)
			fail("storage unavailable")
			return
		}
	}

	gh.mu.Lock()
	if _, busy := gh.online[name]; busy {
		gh.mu.Unlock()
		fail("already online")
		return
	}
	id := world.EntityID(gh.lastEntityID.Add(1))
	gh.online[name] = id
	gh.byEntity[id] = sess
	gh.mu.Unlock()
	sess.bind(id, name)

	if create {
		_ = sess.Send(&protocol.AccountCreated{EntityID: id})
	}
	_ = sess.Send(&protocol.LoginOk{EntityID: id, Position: pos})
	if err := gh.scheduler.Spawn(id, name, pos, world.South); err != nil {
		gh.logger.Error("Failed to spawn %q as %d: %v", name, id, err)
	}
	gh.metrics.LoggedIn.Inc()
	span.SetAttributes(attribute.Int64("entity_id", int64(id)))
	gh.logger.Info("Character %q logged in as entity %d at %s", name, id, pos)
}

// spawnPosition возвращает сохранённую позицию, если на неё можно встать
func (gh *GameHandler) spawnPosition(saved world.Position, found bool) world.Position {
	if !found {
		return gh.spawn
	}
	if gh.maps.TileBlocked(saved.Map, saved.X, saved.Y) {
		gh.logger.Warn("Saved position %s is not walkable, using spawn %s", saved, gh.spawn)
		return gh.spawn
	}
	return saved
}

// leave убирает персонажа сессии из мира; false, если он не был в мире
func (gh *GameHandler) leave(ctx context.Context, sess *Session) bool {
	id, name, ok := sess.unbind()
	if !ok {
		return false
	}
	ctx, span := gh.tracer.Start(ctx, "account.logout",
		trace.WithAttributes(attribute.String("character", name), attribute.Int64("entity_id", int64(id))))
	defer span.End()

	snap, found := gh.scheduler.Despawn(id)

	gh.mu.Lock()
	delete(gh.byEntity, id)
	delete(gh.online, name)
	gh.mu.Unlock()
	gh.metrics.LoggedIn.Dec()

	if found {
		sctx, cancel := context.WithTimeout(ctx, storageTimeout)
		defer cancel()
		if err := gh.positions.Save(sctx, name, snap.Position); err != nil {
			span.RecordError(err)
			gh.logger.Error("Failed to save position of %q: %v", name, err)
		}
	}
	gh.logger.Info("Character %q (entity %d) left the world", name, id)
	return true
}

func (gh *GameHandler) handleTalk(sess *Session, text string) {
	id, _, ok := sess.Identity()
	if !ok || text == "" {
		return
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		_ = sess.Send(&protocol.SystemMessage{Text: "message too long"})
		return
	}
	msg := &protocol.ChatMessage{EntityID: id, Text: text}
	gh.Broadcast(append(gh.scheduler.Observers(id), id), msg)
}

// SaveAll сохраняет позиции всех персонажей в мире (автосохранение)
func (gh *GameHandler) SaveAll(ctx context.Context) (int, error) {
	snaps := gh.scheduler.Snapshots()
	if len(snaps) == 0 {
		return 0, nil
	}
	batch := make(map[string]world.Position, len(snaps))
	for _, s := range snaps {
		batch[s.Name] = s.Position
	}
	if err := gh.positions.BatchSave(ctx, batch); err != nil {
		return 0, fmt.Errorf("autosave: %w", err)
	}
	return len(batch), nil
}

// Kick закрывает сессию персонажа с пакетом Disconnect
func (gh *GameHandler) Kick(id world.EntityID) error {
	gh.mu.RLock()
	sess, ok := gh.byEntity[id]
	gh.mu.RUnlock()
	if !ok {
		return errors.New("entity is not online")
	}
	_ = sess.Send(&protocol.Disconnect{})
	sess.Close()
	return nil
}

// OnlineCount возвращает число персонажей в мире
func (gh *GameHandler) OnlineCount() int {
	gh.mu.RLock()
	defer gh.mu.RUnlock()
	return len(gh.online)
}
