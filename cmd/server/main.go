package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/tile-movement/internal/api"
	"github.com/annel0/tile-movement/internal/auth"
	"github.com/annel0/tile-movement/internal/config"
	"github.com/annel0/tile-movement/internal/eventbus"
	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/movement"
	"github.com/annel0/tile-movement/internal/network"
	"github.com/annel0/tile-movement/internal/observability"
	"github.com/annel0/tile-movement/internal/storage"
	"github.com/annel0/tile-movement/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	opts := logging.DefaultOptions()
	opts.Dir = cfg.Logging.Dir
	logging.SetOptions(opts)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.CloseComponents()
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevel(level)
	logging.SetComponentsLevel(level)

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		_ = logging.CloseComponents()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("🎮 Запуск сервера движения...")

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	maps, err := loadMaps(cfg.World)
	if err != nil {
		return err
	}
	spawn := world.Position{Map: cfg.World.SpawnMap, X: cfg.World.SpawnX, Y: cfg.World.SpawnY}
	if maps.TileBlocked(spawn.Map, spawn.X, spawn.Y) {
		return fmt.Errorf("spawn %s is not walkable", spawn)
	}

	positions, err := storage.OpenPositionRepo(ctx, storage.Options{
		Backend:       cfg.Storage.GetBackend(),
		RedisAddr:     cfg.Storage.RedisAddr,
		MariaDSN:      cfg.Storage.MariaDSN,
		PostgresDSN:   cfg.Storage.PostgresDSN,
		MongoURI:      cfg.Storage.MongoURI,
		MongoDatabase: cfg.Storage.MongoDatabase,
		CacheAddr:     cfg.Storage.CacheRedisAddr,
	})
	if err != nil {
		return fmt.Errorf("position storage: %w", err)
	}
	defer positions.Close()

	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	eventbus.Init(bus)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Event logging listener not started: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start(5 * time.Second)
	defer busMetrics.Stop()

	handler := network.NewGameHandler(maps, positions, spawn, network.NewMetrics(reg))
	scheduler := movement.NewScheduler(maps, handler, movement.Options{
		Interval:     cfg.Movement.Interval(),
		PendingLimit: cfg.Movement.PendingLimit(),
		AreaRadius:   cfg.Movement.Radius(),
		Workers:      cfg.Movement.WorkerCount(),
		Metrics:      movement.NewMetrics(reg),
		Bus:          bus,
	})
	handler.AttachScheduler(scheduler)
	// после server.Stop: события выхода попадают в шину до её закрытия
	defer scheduler.Close()

	server := network.NewGameServer(network.ServerConfig{
		TCPAddr:     fmt.Sprintf(":%d", cfg.Server.GetTCPPort()),
		KCPAddr:     fmt.Sprintf(":%d", cfg.Server.GetKCPPort()),
		WSAddr:      fmt.Sprintf(":%d", cfg.Server.GetWSPort()),
		TickRate:    cfg.Movement.Tick(),
		Autosave:    cfg.Storage.Autosave(),
		SendQueue:   network.DefaultSendQueue,
		IdleTimeout: 2 * time.Minute,
	}, handler)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("game server: %w", err)
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.GetJWTSecret(), cfg.Auth.TokenTTL())
	if err != nil {
		server.Stop()
		return fmt.Errorf("jwt: %w", err)
	}
	admin := auth.AdminCredentials{Username: cfg.Auth.GetAdminUser(), PasswordHash: cfg.Auth.GetAdminPasswordHash()}
	if !admin.Enabled() {
		logging.Warn("Admin login disabled: no admin password hash configured")
	}
	rest, err := api.NewRestServer(api.Config{
		Addr:       fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		World:      scheduler,
		Sessions:   handler,
		Issuer:     issuer,
		Admin:      admin,
		Registerer: reg,
		Gatherer:   reg,
	})
	if err != nil {
		server.Stop()
		return fmt.Errorf("admin api: %w", err)
	}
	go func() {
		if err := rest.Start(); err != nil {
			logging.Error("Admin API stopped: %v", err)
		}
	}()

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics endpoint stopped: %v", err)
		}
	}()

	logging.Info("✅ Сервер запущен: %d карт, спавн %s, хранилище %s", len(maps.IDs()), spawn, cfg.Storage.GetBackend())
	<-ctx.Done()
	logging.Info("🛑 Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rest.Stop(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	// Stop отключает сессии; OnDisconnect сохраняет позиции
	server.Stop()
	return nil
}

// loadMaps читает карты из Badger, дополняя их YAML-файлами из map_dir
func loadMaps(wc config.WorldConfig) (*world.MapSet, error) {
	maps := world.NewMapSet()
	if wc.MapDir != "" {
		dirMaps, err := world.LoadMapDir(wc.MapDir)
		if err != nil {
			return nil, err
		}
		maps = dirMaps
	}

	if wc.BadgerPath != "" {
		store, err := storage.NewMapStore(wc.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("map store: %w", err)
		}
		defer store.Close()
		for _, id := range maps.IDs() {
			m, _ := maps.Get(id)
			if err := store.SaveMap(m); err != nil {
				return nil, err
			}
		}
		stored, err := store.LoadAll()
		if err != nil {
			return nil, err
		}
		maps = stored
	}

	if len(maps.IDs()) == 0 {
		logging.Warn("No maps configured, using the default %dx%d map %d",
			world.DefaultMapSize, world.DefaultMapSize, world.DefaultMapID)
		maps.Put(world.DefaultMap())
	}
	return maps, nil
}

func openBus(bc config.EventBusConfig) (eventbus.EventBus, error) {
	if bc.URL == "" {
		return eventbus.NewMemoryBus(1024), nil
	}
	bus, err := eventbus.NewJetStreamBus(bc.URL, bc.Stream, time.Duration(bc.Retention)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	return bus, nil
}
