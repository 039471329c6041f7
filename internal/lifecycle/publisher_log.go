package lifecycle

import "github.com/rs/zerolog"

// LogPublisher emits lifecycle events as structured log lines.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(l zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: l.With().Str("component", "lifecycle").Logger()}
}

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Info().Str("engine", e.EngineID)
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(e.Name)
}
