// Package logging предоставляет структурированный логгер для всех
// компонентов IVR: единый интерфейс с полями (Field) и реализацию
// поверх logrus с опциональной ротацией файлов через lumberjack.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger интерфейс для структурированного логирования
type Logger interface {
	// Основные методы логирования
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// Контекстные логгеры
	WithComponent(component string) Logger
	WithFields(fields ...Field) Logger
}

// Field представляет поле лога
type Field struct {
	Key   string
	Value interface{}
}

// Helpers для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Uint32(key string, value uint32) Field          { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value} }
func Any(key string, value interface{}) Field        { return Field{key, value} }
func Err(err error) Field                            { return Field{logrus.ErrorKey, err} }

// Config настройки логгера
type Config struct {
	// Level минимальный уровень: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format json или text
	Format string `mapstructure:"format" yaml:"format"`
	// Output stdout, stderr или путь к файлу
	Output string `mapstructure:"output" yaml:"output"`

	// Ротация файла, используется только когда Output - файл
	MaxSize    int  `mapstructure:"max_size" yaml:"max_size"`       // megabytes
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"` // number of backups
	MaxAge     int  `mapstructure:"max_age" yaml:"max_age"`         // days
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stderr",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// New создает логгер по конфигурации
func New(cfg Config) (Logger, error) {
	level, err := logrus.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch strings.ToLower(orDefault(cfg.Format, "text")) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	l.SetOutput(outputFor(cfg))
	return FromLogrus(l), nil
}

func outputFor(cfg Config) io.Writer {
	switch strings.ToLower(orDefault(cfg.Output, "stderr")) {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		return &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// FromLogrus оборачивает готовый logrus.Logger
func FromLogrus(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// logrusLogger реализация Logger поверх logrus
type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.DebugLevel, msg, fields)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.InfoLevel, msg, fields)
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.WarnLevel, msg, fields)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.ErrorLevel, msg, fields)
}

func (l *logrusLogger) log(ctx context.Context, level logrus.Level, msg string, fields []Field) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.entry
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if len(fields) > 0 {
		entry = entry.WithFields(toLogrus(fields))
	}
	entry.Log(level, msg)
}

func (l *logrusLogger) WithComponent(component string) Logger {
	return &logrusLogger{entry: l.entry.WithField("component", component)}
}

func (l *logrusLogger) WithFields(fields ...Field) Logger {
	return &logrusLogger{entry: l.entry.WithFields(toLogrus(fields))}
}

func toLogrus(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return FromLogrus(l)
}
