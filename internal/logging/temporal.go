package logging

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalLogger routes Temporal SDK logs (workflow and activity loggers
// included) through zerolog.
type TemporalLogger struct {
	logger zerolog.Logger
}

var _ log.Logger = (*TemporalLogger)(nil)

func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.write(l.logger.Debug(), msg, keyvals)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.write(l.logger.Info(), msg, keyvals)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.write(l.logger.Warn(), msg, keyvals)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.write(l.logger.Error(), msg, keyvals)
}

func (l *TemporalLogger) write(e *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 == len(keyvals) {
			e = e.Interface("extra", keyvals[i])
			break
		}
		if err, ok := keyvals[i+1].(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, keyvals[i+1])
	}
	e.Msg(msg)
}
