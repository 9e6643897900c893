// Package network предоставляет транспорт пакетов (TCP, KCP, WebSocket),
// клиентские сессии и серверный обработчик игровых пакетов.
package network

import (
	"errors"
	"sync/atomic"
	"time"
)

// ChannelType тип канала связи
type ChannelType int

const (
	ChannelTCP ChannelType = iota
	ChannelKCP
	ChannelWebSocket
)

func (t ChannelType) String() string {
	switch t {
	case ChannelTCP:
		return "tcp"
	case ChannelKCP:
		return "kcp"
	case ChannelWebSocket:
		return "ws"
	}
	return "unknown"
}

// ErrChannelClosed канал закрыт локально
var ErrChannelClosed = errors.New("network: channel closed")

// PacketChannel упорядоченный надёжный канал, передающий целые пакеты.
// ReadPacket вызывается из одной горутины, WritePacket безопасен для
// конкурентного вызова.
type PacketChannel interface {
	ReadPacket() ([]byte, error)
	WritePacket(data []byte) error
	Close() error
	RemoteAddr() string
	Type() ChannelType
}

// Listener принимает входящие каналы
type Listener interface {
	Accept() (PacketChannel, error)
	Close() error
	Addr() string
}

// ConnectionStats статистика соединения
type ConnectionStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Connected       time.Time
	LastActivity    time.Time
	RemoteAddr      string
}

// counters потокобезопасные счётчики канала
type counters struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	lastActivity    atomic.Int64
}

func (c *counters) sent(n int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

func (c *counters) received(n int) {
	c.packetsReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *counters) snapshot() ConnectionStats {
	var last time.Time
	if ns := c.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return ConnectionStats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		LastActivity:    last,
	}
}
