package parser

import (
	"log/slog"
	"time"
)

// Parser extracts records from dataroma HTML. The zero value is not
// usable; create one with New. A Parser holds no per-page state and is
// safe for concurrent use.
type Parser struct {
	logger *slog.Logger

	// now supplies the fallback reporting quarter when a holdings page
	// does not state its period.
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for skipped-row warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = l
	}
}

// WithClock sets the clock used for the fallback reporting quarter.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}
