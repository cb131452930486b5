package queue

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger adapts a zerolog.Logger to asynq.Logger.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl.With().Str("component", "asynq").Logger()}
}

func (l *Logger) Debug(args ...any) { l.zl.Debug().Msg(fmt.Sprint(args...)) }
func (l *Logger) Info(args ...any)  { l.zl.Info().Msg(fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...any)  { l.zl.Warn().Msg(fmt.Sprint(args...)) }
func (l *Logger) Error(args ...any) { l.zl.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs at fatal level, which exits the process.
func (l *Logger) Fatal(args ...any) { l.zl.Fatal().Msg(fmt.Sprint(args...)) }
