package network

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// DefaultSendQueue ёмкость исходящей очереди сессии
const DefaultSendQueue = 256

// ErrSendQueueFull исходящая очередь переполнена, пакет отброшен
var ErrSendQueueFull = errors.New("network: send queue full")

// Session одно клиентское подключение. Отправка не блокирует вызывающего:
// пакеты кодируются и кладутся в очередь, которую вычитывает writeLoop.
type Session struct {
	ID        string
	Channel   PacketChannel
	Connected time.Time

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	metrics *Metrics

	mu       sync.RWMutex
	entityID world.EntityID
	name     string
	loggedIn bool
}

// NewSession создаёт сессию поверх канала
func NewSession(ch PacketChannel, queue int, metrics *Metrics) *Session {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Session{
		ID:        uuid.NewString(),
		Channel:   ch,
		Connected: time.Now(),
		send:      make(chan []byte, queue),
		done:      make(chan struct{}),
		metrics:   metrics,
	}
}

// Send кодирует пакет и ставит его в очередь
func (s *Session) Send(pkt protocol.ServerPacket) error {
	data, err := protocol.EncodeServer(pkt)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrChannelClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		s.dropped.Add(1)
		s.metrics.PacketsDropped.Inc()
		return ErrSendQueueFull
	}
}

// Dropped возвращает число отброшенных исходящих пакетов
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Identity возвращает персонажа сессии
func (s *Session) Identity() (world.EntityID, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entityID, s.name, s.loggedIn
}

func (s *Session) bind(id world.EntityID, name string) {
	s.mu.Lock()
	s.entityID, s.name, s.loggedIn = id, name, true
	s.mu.Unlock()
}

func (s *Session) unbind() (world.EntityID, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, name, ok := s.entityID, s.name, s.loggedIn
	s.entityID, s.name, s.loggedIn = 0, "", false
	return id, name, ok
}

// writeLoop пишет очередь в канал до закрытия сессии
func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.send:
			if err := s.Channel.WritePacket(data); err != nil {
				s.Close()
				return
			}
			s.metrics.PacketsOut.Inc()
		case <-s.done:
			s.flush()
			return
		}
	}
}

// flush дописывает уже поставленные в очередь пакеты (Disconnect, LoggedOut)
func (s *Session) flush() {
	for {
		select {
		case data := <-s.send:
			if s.Channel.WritePacket(data) != nil {
				return
			}
		default:
			return
		}
	}
}

// Close закрывает сессию; повторные вызовы безопасны
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Done закрывается при закрытии сессии
func (s *Session) Done() <-chan struct{} {
	return s.done
}
