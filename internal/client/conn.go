package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/network"
	"github.com/annel0/tile-movement/internal/protocol"
)

// Conn всё, что клиентской логике нужно от соединения: неблокирующая
// отправка, сглаженный RTT и часы.
type Conn interface {
	Send(pkt protocol.ClientPacket) error
	Ping() time.Duration
	Now() time.Time
}

const (
	// DefaultSendQueue ёмкость исходящей очереди клиента
	DefaultSendQueue = 64
	// DefaultInbox ёмкость очереди входящих пакетов
	DefaultInbox = 256
	// rttWeight знаменатель EWMA: rtt += (sample - rtt) / rttWeight
	rttWeight = 8
)

// ErrSendQueueFull исходящая очередь переполнена
var ErrSendQueueFull = errors.New("client: send queue full")

// NetConn реализация Conn поверх network.PacketChannel. Чтение и запись идут
// в своих горутинах, кадр забирает входящие пакеты из Inbox без ожидания.
type NetConn struct {
	ch     network.PacketChannel
	send   chan []byte
	inbox  chan protocol.ServerPacket
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	clock  func() time.Time
	logger *logging.Logger

	rtt       atomic.Int64
	malformed atomic.Uint64
	errMu     sync.Mutex
	err       error
}

// NewNetConn запускает обслуживание канала
func NewNetConn(ch network.PacketChannel) *NetConn {
	c := &NetConn{
		ch:     ch,
		send:   make(chan []byte, DefaultSendQueue),
		inbox:  make(chan protocol.ServerPacket, DefaultInbox),
		done:   make(chan struct{}),
		clock:  time.Now,
		logger: logging.GetClientLogger(),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// DialConn подключается к серверу выбранным транспортом
func DialConn(ctx context.Context, typ network.ChannelType, addr string) (*NetConn, error) {
	ch, err := network.Dial(ctx, typ, addr)
	if err != nil {
		return nil, err
	}
	return NewNetConn(ch), nil
}

// Send кодирует пакет и ставит его в очередь, не блокируясь
func (c *NetConn) Send(pkt protocol.ClientPacket) error {
	data, err := protocol.EncodeClient(pkt)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return network.ErrChannelClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Ping возвращает сглаженный RTT (0, пока не пришёл ни один Pong)
func (c *NetConn) Ping() time.Duration {
	return time.Duration(c.rtt.Load())
}

// Now возвращает текущее время
func (c *NetConn) Now() time.Time {
	return c.clock()
}

// Inbox поток входящих пакетов (Pong сюда не попадает)
func (c *NetConn) Inbox() <-chan protocol.ServerPacket {
	return c.inbox
}

// Done закрывается при разрыве соединения
func (c *NetConn) Done() <-chan struct{} {
	return c.done
}

// Err причина разрыва
func (c *NetConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Malformed число отброшенных некорректных пакетов
func (c *NetConn) Malformed() uint64 {
	return c.malformed.Load()
}

// Close закрывает соединение и ждёт горутины
func (c *NetConn) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

func (c *NetConn) shutdown(err error) {
	c.once.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		_ = c.ch.Close()
	})
}

func (c *NetConn) readLoop() {
	defer c.wg.Done()
	for {
		data, err := c.ch.ReadPacket()
		if err != nil {
			c.shutdown(err)
			return
		}
		pkt, err := protocol.DecodeServer(data)
		if err != nil {
			c.malformed.Add(1)
			logging.LogProtocolError(c.ch.RemoteAddr(), err, data)
			continue
		}
		if pong, ok := pkt.(*protocol.Pong); ok {
			c.observePong(pong.Timestamp, c.clock())
			continue
		}
		select {
		case c.inbox <- pkt:
		case <-c.done:
			return
		}
	}
}

func (c *NetConn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case data := <-c.send:
			if err := c.ch.WritePacket(data); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// observePong обновляет EWMA по эху отметки времени из RequestPing
func (c *NetConn) observePong(ts uint64, now time.Time) {
	sample := now.Sub(time.Unix(0, int64(ts)))
	if sample < 0 {
		return
	}
	prev := time.Duration(c.rtt.Load())
	if prev == 0 {
		c.rtt.Store(int64(sample))
		return
	}
	c.rtt.Store(int64(prev + (sample-prev)/rttWeight))
	c.logger.Trace("RTT sample %v, smoothed %v", sample, c.Ping())
}
