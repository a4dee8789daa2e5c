package client

import (
	"github.com/rs/zerolog"
)

type RestyLogger struct {
	Log zerolog.Logger
}

func (r RestyLogger) Errorf(format string, v ...interface{}) {
	r.Log.Error().Msgf(format, v...)
}

func (r RestyLogger) Warnf(format string, v ...interface{}) {
	r.Log.Warn().Msgf(format, v...)
}

func (r RestyLogger) Debugf(format string, v ...interface{}) {
	r.Log.Debug().Msgf(format, v...)
}
