package adapter

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/srediag/gwbridge/api"
)

// ZapSink writes the host log channel to a zap logger.
type ZapSink struct {
	log   *zap.Logger
	debug atomic.Bool
}

// NewZapSink returns a sink on top of log. A nil logger discards everything.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

// SetDebug enables forwarding of debug lines.
func (s *ZapSink) SetDebug(on bool) { s.debug.Store(on) }

func (s *ZapSink) Debug() bool { return s.debug.Load() }

// LogMessage maps the one-byte level onto zap. Unknown levels log as info.
func (s *ZapSink) LogMessage(level api.LogLevel, message string) {
	switch level {
	case api.LogDebug:
		if s.debug.Load() {
			s.log.Debug(message)
		}
	case api.LogWarning:
		s.log.Warn(message)
	case api.LogError:
		s.log.Error(message)
	default:
		s.log.Info(message)
	}
}

// Logger returns the underlying logger.
func (s *ZapSink) Logger() *zap.Logger { return s.log }
