package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/protocol"
)

// ServerConfig параметры игрового сервера
type ServerConfig struct {
	TCPAddr     string        // пусто: TCP выключен
	KCPAddr     string        // пусто: KCP выключен
	WSAddr      string        // пусто: WebSocket выключен
	TickRate    time.Duration // период вызова планировщика
	Autosave    time.Duration // период автосохранения позиций (0: выкл.)
	SendQueue   int           // ёмкость исходящей очереди сессии
	IdleTimeout time.Duration // закрывать сессии без входящих пакетов
	Now         func() time.Time
}

// GameServer принимает подключения всеми транспортами, крутит тик
// планировщика и автосохранение.
type GameServer struct {
	cfg     ServerConfig
	handler *GameHandler
	metrics *Metrics
	logger  *logging.Logger

	mu        sync.Mutex
	listeners []Listener
	sessions  map[string]*Session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGameServer создаёт сервер
func NewGameServer(cfg ServerConfig, handler *GameHandler) *GameServer {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 10 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &GameServer{
		cfg:      cfg,
		handler:  handler,
		metrics:  handler.metrics,
		logger:   logging.GetServerLogger(),
		sessions: make(map[string]*Session),
	}
}

// Start открывает слушатели и запускает фоновые циклы
func (s *GameServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	type opener struct {
		addr string
		open func(string) (Listener, error)
	}
	openers := []opener{
		{s.cfg.TCPAddr, ListenTCP},
		{s.cfg.KCPAddr, ListenKCP},
		{s.cfg.WSAddr, func(addr string) (Listener, error) { return ListenWS(addr) }},
	}
	for _, o := range openers {
		if o.addr == "" {
			continue
		}
		ln, err := o.open(o.addr)
		if err != nil {
			s.closeListeners()
			s.cancel()
			return err
		}
		s.AddListener(ctx, ln)
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)
	if s.cfg.Autosave > 0 {
		s.wg.Add(1)
		go s.autosaveLoop(ctx)
	}
	return nil
}

// AddListener начинает принимать подключения со слушателя
func (s *GameServer) AddListener(ctx context.Context, ln Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
	s.logger.Info("🚀 Listening on %s", ln.Addr())
}

// Stop закрывает слушатели и сессии, сохраняет позиции
func (s *GameServer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeListeners()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.Send(&protocol.Disconnect{})
		sess.Close()
		_ = sess.Channel.Close()
	}

	s.wg.Wait()
	s.logger.Info("🛑 Game server stopped")
}

func (s *GameServer) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	s.listeners = nil
}

func (s *GameServer) acceptLoop(ctx context.Context, ln Listener) {
	defer s.wg.Done()
	for {
		ch, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept on %s failed: %v", ln.Addr(), err)
			continue
		}
		s.Serve(ctx, ch)
	}
}

// Serve обслуживает уже установленный канал (неблокирующий)
func (s *GameServer) Serve(ctx context.Context, ch PacketChannel) *Session {
	sess := NewSession(ch, s.cfg.SendQueue, s.metrics)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.handler.OnConnect(sess)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx, sess)
	}()
	return sess
}

func (s *GameServer) readLoop(ctx context.Context, sess *Session) {
	defer func() {
		sess.Close()
		_ = sess.Channel.Close()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		s.handler.OnDisconnect(sess)
	}()

	for {
		if s.cfg.IdleTimeout > 0 {
			if dl, ok := sess.Channel.(interface{ SetReadDeadline(time.Time) error }); ok {
				_ = dl.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			}
		}
		data, err := sess.Channel.ReadPacket()
		if err != nil {
			s.logger.Debug("Session %s read ended: %v", sess.ID, err)
			return
		}
		s.handler.HandlePacket(ctx, sess, data)
	}
}

func (s *GameServer) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.handler.scheduler.Tick(ctx, s.cfg.Now())
		}
	}
}

func (s *GameServer) autosaveLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Autosave)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, storageTimeout)
			n, err := s.handler.SaveAll(sctx)
			cancel()
			if err != nil {
				s.logger.Error("Autosave failed: %v", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("Autosaved %d positions", n)
			}
		}
	}
}

// SessionCount возвращает число открытых сессий
func (s *GameServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
