package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/protocol"
)

// wsWriteTimeout дедлайн записи одного сообщения
const wsWriteTimeout = 5 * time.Second

// wsChannel одно бинарное сообщение WebSocket = один пакет
type wsChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	stats   counters
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &wsChannel{conn: conn}
}

func (wc *wsChannel) ReadPacket() ([]byte, error) {
	for {
		mt, data, err := wc.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		wc.stats.received(len(data))
		return data, nil
	}
}

func (wc *wsChannel) WritePacket(data []byte) error {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := wc.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	wc.stats.sent(len(data))
	return nil
}

func (wc *wsChannel) Close() error {
	wc.writeMu.Lock()
	_ = wc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	wc.writeMu.Unlock()
	return wc.conn.Close()
}

func (wc *wsChannel) RemoteAddr() string {
	return wc.conn.RemoteAddr().String()
}

func (wc *wsChannel) Type() ChannelType {
	return ChannelWebSocket
}

// Stats возвращает статистику канала
func (wc *wsChannel) Stats() ConnectionStats {
	s := wc.stats.snapshot()
	s.RemoteAddr = wc.RemoteAddr()
	return s
}

// WSListener принимает WebSocket-подключения по HTTP-пути /ws
type WSListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	accepted chan PacketChannel
	done     chan struct{}
	once     sync.Once
}

// ListenWS запускает HTTP-сервер с эндпоинтом /ws
func ListenWS(addr string) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen ws on %s: %w", addr, err)
	}
	l := &WSListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		accepted: make(chan PacketChannel, 16),
		done:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.ServeHTTP)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.GetNetworkLogger().Error("WebSocket server error: %v", err)
		}
	}()
	return l, nil
}

// ServeHTTP апгрейдит запрос и отдаёт канал в Accept
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.GetNetworkLogger().Warn("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	select {
	case l.accepted <- newWSChannel(conn):
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *WSListener) Accept() (PacketChannel, error) {
	select {
	case ch := <-l.accepted:
		return ch, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *WSListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = l.srv.Shutdown(ctx)
	})
	return err
}

func (l *WSListener) Addr() string {
	return l.ln.Addr().String()
}

// DialWS подключается к ws://host:port/ws
func DialWS(ctx context.Context, url string) (PacketChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return newWSChannel(conn), nil
}

// Dial подключается к серверу выбранным транспортом
func Dial(ctx context.Context, typ ChannelType, addr string) (PacketChannel, error) {
	switch typ {
	case ChannelTCP:
		return DialTCP(ctx, addr)
	case ChannelKCP:
		return DialKCP(ctx, addr)
	case ChannelWebSocket:
		return DialWS(ctx, "ws://"+addr+"/ws")
	}
	return nil, fmt.Errorf("unsupported channel type %v", typ)
}

// ParseChannelType разбирает имя транспорта (tcp, kcp, ws)
func ParseChannelType(s string) (ChannelType, error) {
	switch s {
	case "tcp":
		return ChannelTCP, nil
	case "kcp":
		return ChannelKCP, nil
	case "ws", "websocket":
		return ChannelWebSocket, nil
	}
	return 0, fmt.Errorf("unknown transport %q", s)
}

// SetReadDeadline ограничивает ожидание следующего пакета
func (wc *wsChannel) SetReadDeadline(t time.Time) error {
	return wc.conn.SetReadDeadline(t)
}
