package network

import (
	"context"
	"fmt"

	"github.com/xtaci/kcp-go/v5"
)

// KCP: надёжный упорядоченный поток поверх UDP. Параметры FEC как у
// клиента и сервера должны совпадать.
const (
	kcpDataShards   = 10
	kcpParityShards = 3
)

// tuneKCP настраивает сессию для игрового трафика
func tuneKCP(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	sess.SetWindowSize(512, 512)
	sess.SetMtu(1400)
	sess.SetACKNoDelay(true)
}

type kcpListener struct {
	ln *kcp.Listener
}

// ListenKCP открывает KCP-слушатель на UDP-адресе
func ListenKCP(addr string) (Listener, error) {
	ln, err := kcp.ListenWithOptions(addr, nil, kcpDataShards, kcpParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to listen kcp on %s: %w", addr, err)
	}
	return &kcpListener{ln: ln}, nil
}

func (l *kcpListener) Accept() (PacketChannel, error) {
	sess, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tuneKCP(sess)
	return newStreamChannel(sess, ChannelKCP), nil
}

func (l *kcpListener) Close() error {
	return l.ln.Close()
}

func (l *kcpListener) Addr() string {
	return l.ln.Addr().String()
}

// DialKCP подключается к серверу по KCP
func DialKCP(ctx context.Context, addr string) (PacketChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := kcp.DialWithOptions(addr, nil, kcpDataShards, kcpParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	tuneKCP(sess)
	return newStreamChannel(sess, ChannelKCP), nil
}
