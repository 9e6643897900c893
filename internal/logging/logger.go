package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации, по умолчанию INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Options настройки файлового вывода
type Options struct {
	Dir        string // Каталог для логов
	MaxSizeMB  int    // Размер файла до ротации
	MaxBackups int    // Сколько старых файлов хранить
	MaxAgeDays int
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{Dir: "logs", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7}
}

// Logger представляет логгер компонента
type Logger struct {
	component       string
	console         *zap.SugaredLogger
	file            *zap.SugaredLogger
	rotator         *lumberjack.Logger
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
	mu              sync.RWMutex
}

var (
	defaultOptions = DefaultOptions()
	defaultLogger  = newConsoleLogger("default")
	optionsMu      sync.RWMutex
)

// SetOptions задаёт параметры для логгеров, создаваемых после вызова
func SetOptions(opts Options) {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	defaultOptions = opts
}

func currentOptions() Options {
	optionsMu.RLock()
	defer optionsMu.RUnlock()
	return defaultOptions
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
}

// newConsoleLogger создаёт логгер только с выводом в stdout
func newConsoleLogger(component string) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return &Logger{
		component:       component,
		console:         zap.New(core).Named(component).Sugar(),
		minConsoleLevel: INFO,
		minFileLevel:    DEBUG,
	}
}

// NewLogger создаёт логгер компонента с файлом logs/<component>.log (ротация через lumberjack)
func NewLogger(component string) (*Logger, error) {
	opts := currentOptions()
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", opts.Dir, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, component+".log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(rotator), zapcore.DebugLevel)

	l := newConsoleLogger(component)
	l.file = zap.New(fileCore).Named(component).Sugar()
	l.rotator = rotator
	return l, nil
}

// Close сбрасывает буферы и закрывает файл
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.console.Sync()
	if l.file != nil {
		_ = l.file.Sync()
	}
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// SetLevels устанавливает минимальные уровни для консоли и файла
func (l *Logger) SetLevels(consoleLevel, fileLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minConsoleLevel = consoleLevel
	l.minFileLevel = fileLevel
}

func (l *Logger) levels() (LogLevel, LogLevel) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minConsoleLevel, l.minFileLevel
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	consoleLevel, fileLevel := l.levels()

	if level >= consoleLevel {
		write(l.console, level, msg)
	}
	if l.file != nil && level >= fileLevel {
		write(l.file, level, msg)
	}
}

func write(s *zap.SugaredLogger, level LogLevel, msg string) {
	switch level {
	case TRACE:
		s.Debug("[TRACE] " + msg)
	case DEBUG:
		s.Debug(msg)
	case INFO:
		s.Info(msg)
	case WARN:
		s.Warn(msg)
	default:
		s.Error(msg)
	}
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// InitDefaultLogger заменяет логгер по умолчанию файловым логгером компонента
func InitDefaultLogger(component string) error {
	l, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию
func CloseDefaultLogger() {
	_ = defaultLogger.Close()
}

// SetDefaultLevel меняет консольный уровень логгера по умолчанию
func SetDefaultLevel(level LogLevel) {
	defaultLogger.SetLevels(level, DEBUG)
}

func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogProtocolError логирует ошибки декодирования пакета
func LogProtocolError(connID string, err error, data []byte) {
	logger := GetNetworkLogger()
	logger.Warn("Protocol error from %s: %v", connID, err)
	if len(data) > 0 {
		logger.Debug("Raw data (%d bytes):\n%s", len(data), HexDump(data))
	}
}

// LogEntityMovement логирует авторитетное перемещение сущности
func LogEntityMovement(entityID uint32, fromMap, fromX, fromY, toMap, toX, toY uint16, direction uint8) {
	GetGameLogger().Trace("Entity %d movement: %d:(%d,%d) -> %d:(%d,%d) dir:%d",
		entityID, fromMap, fromX, fromY, toMap, toX, toY, direction)
}
