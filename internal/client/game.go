package client

import (
	"time"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

const (
	// DefaultResponseTimeout после него неподтверждённое предсказание
	// считается потерянным и позиция перезапрашивается
	DefaultResponseTimeout = 2 * time.Second
	// DefaultPingInterval период RequestPing
	DefaultPingInterval = time.Second
)

// Options параметры клиентской петли
type Options struct {
	Interval        time.Duration // интервал шага, как на сервере
	ResponseTimeout time.Duration
	PingInterval    time.Duration // 0: не пинговать
	Metrics         *Metrics
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Interval:        protocol.MoveInterval,
		ResponseTimeout: DefaultResponseTimeout,
		PingInterval:    DefaultPingInterval,
	}
}

// Game состояние клиента: свой персонаж (предсказатель и сверка) и вид
// чужих персонажей. Все методы вызываются из одного потока кадра.
type Game struct {
	conn    Conn
	opts    Options
	metrics *Metrics
	logger  *logging.Logger

	self     world.EntityID
	name     string
	loggedIn bool

	body       *Body
	ledger     *Ledger
	predictor  *Predictor
	reconciler *Reconciler
	view       *View

	lastPing      time.Time
	resyncAt      time.Time
	resyncPending bool
	online        int
	lastFailure   string
}

// NewGame создаёт клиентское состояние поверх соединения
func NewGame(conn Conn, maps world.MapProvider, opts Options) *Game {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = def.ResponseTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	body := NewBody(world.Position{}, world.South)
	ledger := &Ledger{}
	predictor := NewPredictor(maps, body, ledger)
	predictor.SetInterval(opts.Interval)

	return &Game{
		conn:       conn,
		opts:       opts,
		metrics:    opts.Metrics,
		logger:     logging.GetClientLogger(),
		body:       body,
		ledger:     ledger,
		predictor:  predictor,
		reconciler: NewReconciler(ledger, body),
		view:       NewView(),
	}
}

// Login отправляет вход (или создание) персонажа
func (g *Game) Login(name string, create bool) error {
	g.name = name
	if create {
		return g.conn.Send(&protocol.AccountCreate{Name: name})
	}
	return g.conn.Send(&protocol.AccountLogin{Name: name})
}

// Logout отправляет выход из мира
func (g *Game) Logout() error {
	return g.conn.Send(&protocol.AccountLogout{})
}

// KeyPress нажатие клавиши направления
func (g *Game) KeyPress(d world.Direction) { g.predictor.KeyPress(d) }

// KeyRelease отпускание клавиши направления
func (g *Game) KeyRelease(d world.Direction) { g.predictor.KeyRelease(d) }

// Say отправляет реплику в чат
func (g *Game) Say(text string) error {
	return g.conn.Send(&protocol.Talk{Text: text})
}

// Self возвращает ID своего персонажа
func (g *Game) Self() (world.EntityID, bool) { return g.self, g.loggedIn }

// Body возвращает тело своего персонажа
func (g *Game) Body() *Body { return g.body }

// Ledger возвращает журнал предсказаний
func (g *Game) Ledger() *Ledger { return g.ledger }

// View возвращает вид чужих персонажей
func (g *Game) View() *View { return g.view }

// Stats возвращает статистику сверки
func (g *Game) Stats() ReconcileStats { return g.reconciler.Stats() }

// Online последнее значение OnlineCount
func (g *Game) Online() int { return g.online }

// LastFailure причина последнего отказа во входе
func (g *Game) LastFailure() string { return g.lastFailure }

// Drain обрабатывает все уже пришедшие пакеты, не дожидаясь новых
func (g *Game) Drain(inbox <-chan protocol.ServerPacket) int {
	n := 0
	for {
		select {
		case pkt, ok := <-inbox:
			if !ok {
				return n
			}
			g.HandlePacket(pkt)
			n++
		default:
			return n
		}
	}
}

// HandlePacket применяет пакет сервера
func (g *Game) HandlePacket(pkt protocol.ServerPacket) {
	switch p := pkt.(type) {
	case *protocol.LoginOk:
		g.self, g.loggedIn = p.EntityID, true
		g.ledger.Clear()
		g.body.Snap(p.Position)
		g.view.Clear()
		g.resyncPending = false
		g.logger.Info("Logged in as %q (entity %d) at %s", g.name, p.EntityID, p.Position)
	case *protocol.LoginFailed:
		g.lastFailure = p.Reason
		g.logger.Warn("Login of %q failed: %s", g.name, p.Reason)
	case *protocol.LoggedOut, *protocol.Disconnect:
		g.loggedIn = false
		g.ledger.Clear()
		g.view.Clear()
		g.logger.Info("Left the world (%T)", pkt)
	case *protocol.MoveResponse:
		if g.loggedIn {
			g.applyMoveResponse(p)
		}
	case *protocol.UserPosition:
		if g.loggedIn {
			g.reconciler.Resync(p.Position)
			g.resyncPending = false
			g.metrics.Corrections.WithLabelValues("resync").Inc()
			g.logger.Debug("Position resynced to %s", p.Position)
		}
	case *protocol.CharacterCreate, *protocol.CharacterRemove, *protocol.CharacterMove, *protocol.CharacterHeading:
		if !g.view.Apply(pkt) {
			g.logger.Trace("View ignored %T", pkt)
		}
	case *protocol.ChatMessage:
		g.logger.Info("[chat] %d: %s", p.EntityID, p.Text)
	case *protocol.SystemMessage:
		g.logger.Info("[system] %s", p.Text)
	case *protocol.OnlineCount:
		g.online = int(p.Count)
	default:
		g.logger.Trace("Unhandled server packet %T", pkt)
	}
}

func (g *Game) applyMoveResponse(p *protocol.MoveResponse) {
	before := g.reconciler.Stats()
	res := g.reconciler.ApplyMoveResponse(p)
	after := g.reconciler.Stats()

	if res.Mispredicted {
		g.metrics.Mispredictions.Inc()
		g.logger.Debug("Misprediction on #%d: server says %s, body at %s", p.RequestID, p.Position, g.body.Position)
	}
	g.metrics.Corrections.WithLabelValues("nudge").Add(float64(after.Nudges - before.Nudges))
	g.metrics.Corrections.WithLabelValues("merge").Add(float64(after.Merges - before.Merges))
	g.metrics.Corrections.WithLabelValues("settle").Add(float64(after.Settles - before.Settles))
}

// Frame один кадр клиентской петли: пинг, таймаут предсказаний, попытка
// шага по зажатой клавише и интерполяция всех тел.
func (g *Game) Frame(dt time.Duration) {
	now := g.conn.Now()
	if g.loggedIn {
		g.ping(now)
		g.expire(now)
		if req, ok := g.predictor.TryStartMove(now, g.conn.Ping()); ok {
			g.metrics.Predictions.Inc()
			if err := g.conn.Send(req); err != nil {
				// Запрос потерян до отправки: запись истечёт по таймауту
				g.logger.Warn("Failed to send move #%d: %v", req.ID, err)
			}
		}
	}
	g.body.Update(dt, g.opts.Interval)
	g.view.Update(dt, g.opts.Interval)
}

func (g *Game) ping(now time.Time) {
	if g.opts.PingInterval <= 0 || (!g.lastPing.IsZero() && now.Sub(g.lastPing) < g.opts.PingInterval) {
		return
	}
	g.lastPing = now
	if err := g.conn.Send(&protocol.RequestPing{Timestamp: uint64(now.UnixNano())}); err != nil {
		g.logger.Debug("Ping not sent: %v", err)
	}
	g.metrics.RTT.Set(g.conn.Ping().Seconds())
}

func (g *Game) expire(now time.Time) {
	if n := g.reconciler.Expire(now, g.opts.ResponseTimeout); n > 0 {
		g.metrics.Expired.Add(float64(n))
		g.logger.Warn("%d move responses lost, requesting position", n)
		g.requestResync(now)
		return
	}
	// Ответ на запрос позиции тоже мог потеряться
	if g.resyncPending && now.Sub(g.resyncAt) >= g.opts.ResponseTimeout {
		g.requestResync(now)
	}
}

func (g *Game) requestResync(now time.Time) {
	if g.resyncPending && now.Sub(g.resyncAt) < g.opts.ResponseTimeout {
		return
	}
	if err := g.conn.Send(&protocol.RequestPositionUpdate{}); err != nil {
		g.logger.Warn("Position request not sent: %v", err)
		return
	}
	g.resyncPending, g.resyncAt = true, now
}
