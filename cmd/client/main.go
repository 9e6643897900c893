// Headless-клиент: входит персонажем и бродит случайными направлениями,
// периодически печатая статистику предсказаний.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/tile-movement/internal/client"
	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/network"
	"github.com/annel0/tile-movement/internal/world"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:7777", "Server address (ws://host:port/ws for websocket)")
		transport = flag.String("transport", "tcp", "Transport: tcp, kcp, ws")
		name      = flag.String("name", "bot", "Character name")
		create    = flag.Bool("create", false, "Create the character instead of logging in")
		mapDir    = flag.String("maps", "", "Directory with YAML maps (same as the server)")
		duration  = flag.Duration("duration", 0, "Stop after this long (0 = until Ctrl+C)")
		turnEvery = flag.Duration("turn", 2*time.Second, "Change direction this often")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for directions")
	)
	flag.Parse()

	if err := logging.InitDefaultLogger("client"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.CloseComponents()

	maps := world.NewMapSet(world.DefaultMap())
	if *mapDir != "" {
		loaded, err := world.LoadMapDir(*mapDir)
		if err != nil {
			logging.Error("❌ %v", err)
			return
		}
		maps = loaded
	} else {
		logging.Warn("No -maps given, predicting on the default map %d", world.DefaultMapID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	typ, err := network.ParseChannelType(*transport)
	if err != nil {
		logging.Error("❌ %v", err)
		return
	}
	conn, err := client.DialConn(ctx, typ, *addr)
	if err != nil {
		logging.Error("❌ Подключение к %s: %v", *addr, err)
		return
	}
	defer conn.Close()

	game := client.NewGame(conn, maps, client.DefaultOptions())
	if err := game.Login(*name, *create); err != nil {
		logging.Error("❌ Вход: %v", err)
		return
	}

	run(ctx, conn, game, *turnEvery, rand.New(rand.NewSource(*seed)))

	_ = game.Logout()
	// даём writeLoop отправить Logout
	time.Sleep(100 * time.Millisecond)

	st := game.Stats()
	logging.Info("📊 Итог: ответов %d, ошибок предсказания %d, ресинков %d, истекло %d, пинг %s",
		st.Responses, st.Mispredicted, st.Resyncs, st.ExpiredTotals, conn.Ping())
}

func run(ctx context.Context, conn *client.NetConn, game *client.Game, turnEvery time.Duration, rng *rand.Rand) {
	frame := time.NewTicker(time.Second / 60)
	defer frame.Stop()
	turn := time.NewTicker(turnEvery)
	defer turn.Stop()
	report := time.NewTicker(10 * time.Second)
	defer report.Stop()

	var held world.Direction
	holding := false
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			logging.Warn("Соединение закрыто: %v", conn.Err())
			return
		case now := <-frame.C:
			game.Drain(conn.Inbox())
			if reason := game.LastFailure(); reason != "" {
				logging.Error("❌ Вход отклонён: %s", reason)
				return
			}
			game.Frame(now.Sub(last))
			last = now
		case <-turn.C:
			if holding {
				game.KeyRelease(held)
			}
			// каждый четвёртый поворот стоим на месте
			if rng.Intn(4) == 0 {
				holding = false
				continue
			}
			held = world.Directions[rng.Intn(len(world.Directions))]
			holding = true
			game.KeyPress(held)
		case <-report.C:
			st := game.Stats()
			pos := game.Body().Position
			logging.Info("📍 %s, рядом %d, онлайн %d, пинг %s, ошибок предсказания %d/%d",
				pos, game.View().Len(), game.Online(), conn.Ping(), st.Mispredicted, st.Responses)
		}
	}
}
