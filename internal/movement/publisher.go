package movement

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/tile-movement/internal/eventbus"
	"github.com/annel0/tile-movement/internal/logging"
)

const (
	// DefaultEventQueue ёмкость очереди событий между тиком и шиной
	DefaultEventQueue = 1024
	// DefaultPublishTimeout предел ожидания одной публикации (ack JetStream)
	DefaultPublishTimeout = 2 * time.Second
)

// publisher отправляет события в шину из своей горутины. Тик и вход/выход
// только кладут конверт в очередь; при переполнении событие теряется.
type publisher struct {
	bus     eventbus.EventBus
	queue   chan *eventbus.Envelope
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	metrics *Metrics
	logger  *logging.Logger
}

func newPublisher(bus eventbus.EventBus, capacity int, timeout time.Duration, m *Metrics, logger *logging.Logger) *publisher {
	p := &publisher{
		bus:     bus,
		queue:   make(chan *eventbus.Envelope, capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
	go p.loop()
	return p
}

// enqueue не блокирует
func (p *publisher) enqueue(env *eventbus.Envelope) {
	select {
	case <-p.stop:
		p.metrics.EventsDropped.Inc()
		return
	default:
	}
	select {
	case p.queue <- env:
	default:
		p.metrics.EventsDropped.Inc()
		p.logger.Debug("Event queue full, %s dropped", env.EventType)
	}
}

func (p *publisher) loop() {
	defer close(p.done)
	for {
		select {
		case env := <-p.queue:
			p.publish(env)
		case <-p.stop:
			// дописываем то, что уже в очереди
			for {
				select {
				case env := <-p.queue:
					p.publish(env)
				default:
					return
				}
			}
		}
	}
}

func (p *publisher) publish(env *eventbus.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.bus.Publish(ctx, env); err != nil {
		p.metrics.EventsFailed.Inc()
		p.logger.Warn("Failed to publish %s: %v", env.EventType, err)
	}
}

// close дожидается публикации уже принятых событий
func (p *publisher) close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}
