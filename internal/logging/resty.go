package logging

import "github.com/rs/zerolog/log"

// RestyLogger routes resty's internal messages into the global logger.
type RestyLogger struct{}

// Resty returns a logger suitable for resty.Client.SetLogger.
func Resty() RestyLogger { return RestyLogger{} }

func (RestyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Str("component", "http").Msgf(format, v...)
}

func (RestyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Str("component", "http").Msgf(format, v...)
}

func (RestyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("component", "http").Msgf(format, v...)
}
