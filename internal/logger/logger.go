package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	*zerolog.Logger
	component string
}

var levelsByEnv = map[string]zerolog.Level{
	"development": zerolog.DebugLevel,
	"staging":     zerolog.InfoLevel,
	"production":  zerolog.InfoLevel,
	"test":        zerolog.WarnLevel,
}

// Config controls where and how a component logger writes.
type Config struct {
	AppEnv  string
	Out     io.Writer
	NoColor bool
}

// New creates a console logger for a component, configured from APP_ENV.
func New(component string) *Logger {
	return NewWithConfig(component, Config{AppEnv: os.Getenv("APP_ENV")})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{Logger: &l, component: "nop"}
}

// NewWithConfig creates a component logger with an explicit configuration.
func NewWithConfig(component string, cfg Config) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	production := cfg.AppEnv == "production"

	writer := zerolog.ConsoleWriter{
		Out:     out,
		NoColor: cfg.NoColor,
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
		FormatLevel: func(i interface{}) string {
			level, ok := i.(string)
			if !ok {
				return "???"
			}
			if cfg.NoColor {
				return "[" + levelLabel(level) + "]"
			}
			return levelColor(level) + "[" + levelLabel(level) + "]\033[0m"
		},
	}
	if !production {
		writer.TimeFormat = "2006-01-02 15:04:05"
	}

	zl := zerolog.New(writer).Level(levelFor(cfg.AppEnv))
	if !production {
		zl = zl.With().Timestamp().Logger()
	}
	return &Logger{Logger: &zl, component: component}
}

func levelFor(env string) zerolog.Level {
	if level, ok := levelsByEnv[env]; ok {
		return level
	}
	return zerolog.DebugLevel
}

func levelLabel(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	case "fatal":
		return "FATAL"
	}
	return level
}

func levelColor(level string) string {
	switch level {
	case "debug":
		return "\033[36m"
	case "info":
		return "\033[34m"
	case "warn":
		return "\033[33m"
	case "error":
		return "\033[31m"
	case "fatal":
		return "\033[35m"
	}
	return ""
}

// Component returns the name the logger was created for.
func (l *Logger) Component() string { return l.component }

func (l *Logger) Debug() *zerolog.Event   { return l.Logger.Debug() }
func (l *Logger) Info() *zerolog.Event    { return l.Logger.Info() }
func (l *Logger) Success() *zerolog.Event { return l.Logger.Info().Bool("success", true) }
func (l *Logger) Warn() *zerolog.Event    { return l.Logger.Warn() }
func (l *Logger) Error() *zerolog.Event   { return l.Logger.Error() }

func (l *Logger) LogDebug(msg string)   { l.Debug().Msg(msg) }
func (l *Logger) LogInfo(msg string)    { l.Info().Msg(msg) }
func (l *Logger) LogSuccess(msg string) { l.Success().Msg(msg) }
func (l *Logger) LogWarn(msg string)    { l.Warn().Msg(msg) }

func (l *Logger) LogError(msg string, err error) {
	if err != nil {
		l.Error().Err(err).Msg(msg)
		return
	}
	l.Error().Msg(msg)
}

func (l *Logger) LogDebugf(format string, v ...interface{})   { l.Debug().Msgf(format, v...) }
func (l *Logger) LogInfof(format string, v ...interface{})    { l.Info().Msgf(format, v...) }
func (l *Logger) LogSuccessf(format string, v ...interface{}) { l.Success().Msgf(format, v...) }
func (l *Logger) LogWarnf(format string, v ...interface{})    { l.Warn().Msgf(format, v...) }
func (l *Logger) LogErrorf(format string, v ...interface{})   { l.Error().Msgf(format, v...) }

// WithOrder returns a child logger tagged with an order identifier.
func (l *Logger) WithOrder(orderID string) *Logger {
	child := l.Logger.With().Str("order", orderID).Logger()
	return &Logger{Logger: &child, component: l.component}
}
