package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
)

// streamChannel передаёт пакеты по потоку с заголовком длины u32 LE.
// Используется и для TCP, и для KCP в потоковом режиме.
type streamChannel struct {
	conn    net.Conn
	typ     ChannelType
	writeMu sync.Mutex
	stats   counters
}

func newStreamChannel(conn net.Conn, typ ChannelType) *streamChannel {
	return &streamChannel{conn: conn, typ: typ}
}

func (sc *streamChannel) ReadPacket() ([]byte, error) {
	data, err := protocol.ReadFrame(sc.conn)
	if err != nil {
		return nil, err
	}
	sc.stats.received(len(data))
	return data, nil
}

func (sc *streamChannel) WritePacket(data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if err := protocol.WriteFrame(sc.conn, data); err != nil {
		return err
	}
	sc.stats.sent(len(data))
	return nil
}

func (sc *streamChannel) Close() error {
	return sc.conn.Close()
}

func (sc *streamChannel) RemoteAddr() string {
	return sc.conn.RemoteAddr().String()
}

func (sc *streamChannel) Type() ChannelType {
	return sc.typ
}

// Stats возвращает статистику канала
func (sc *streamChannel) Stats() ConnectionStats {
	s := sc.stats.snapshot()
	s.RemoteAddr = sc.RemoteAddr()
	return s
}

// tcpListener принимает TCP-соединения
type tcpListener struct {
	ln net.Listener
}

// ListenTCP открывает TCP-слушатель
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen tcp on %s: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept() (PacketChannel, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newStreamChannel(conn, ChannelTCP), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

// DialTCP подключается к серверу по TCP
func DialTCP(ctx context.Context, addr string) (PacketChannel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newStreamChannel(conn, ChannelTCP), nil
}

// SetReadDeadline ограничивает ожидание следующего пакета
func (sc *streamChannel) SetReadDeadline(t time.Time) error {
	return sc.conn.SetReadDeadline(t)
}
