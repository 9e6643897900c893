package logging

import (
	"errors"
	"sort"
	"sync"
)

// Компоненты с отдельным файлом лога
const (
	ComponentNetwork = "network"
	ComponentServer  = "server"
	ComponentGame    = "game"
	ComponentClient  = "client"
	ComponentStorage = "storage"
	ComponentHTTP    = "http"
	ComponentAPI     = "api"
)

// registry логгеры компонентов, создаются при первом обращении.
// Если файл не открылся, компонент пишет только в консоль.
type registry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	level   *LogLevel // консольный уровень для всех компонентов
}

var components = newRegistry()

func newRegistry() *registry {
	return &registry{loggers: make(map[string]*Logger)}
}

func (r *registry) get(name string) *Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l
	}
	l, err := NewLogger(name)
	if err != nil {
		l = newConsoleLogger(name)
		l.Warn("file log disabled: %v", err)
	}
	if r.level != nil {
		l.SetLevels(*r.level, DEBUG)
	}
	r.loggers[name] = l
	return l
}

func (r *registry) setLevel(level LogLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = &level
	for _, l := range r.loggers {
		l.SetLevels(level, DEBUG)
	}
}

func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *registry) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, l := range r.loggers {
		errs = append(errs, l.Close())
	}
	r.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// GetComponentLogger возвращает логгер компонента
func GetComponentLogger(component string) *Logger { return components.get(component) }

// SetComponentsLevel задаёт консольный уровень уже созданным и будущим логгерам
func SetComponentsLevel(level LogLevel) { components.setLevel(level) }

// Components возвращает имена созданных логгеров
func Components() []string { return components.names() }

// CloseComponents сбрасывает и закрывает файлы всех компонентов
func CloseComponents() error { return components.close() }

func GetNetworkLogger() *Logger { return GetComponentLogger(ComponentNetwork) }
func GetServerLogger() *Logger  { return GetComponentLogger(ComponentServer) }
func GetGameLogger() *Logger    { return GetComponentLogger(ComponentGame) }
func GetClientLogger() *Logger  { return GetComponentLogger(ComponentClient) }
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
