// Package logging builds the per-run zap logger.
//
// Every run gets its own logger. Entries go to an optional console writer and to a
// Sink that groups formatted lines by the "metric" field, so that each metric result
// can carry the log lines that explain it.
package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MetricField is the field key used to scope entries to a metric
const MetricField = "metric"

// GeneralScope collects entries logged without a metric field
const GeneralScope = "general"

// Options configures New
type Options struct {
	Writer  io.Writer // console output; nil disables it
	Verbose bool      // console at debug level
	Debug   bool      // sink keeps debug entries
}

// Metric returns the field that scopes an entry to a metric id.
func Metric(id string) zap.Field { return zap.String(MetricField, id) }

// ForMetric returns a child logger scoped to a metric id.
func ForMetric(l *zap.Logger, id string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.With(Metric(id))
}

// New creates a logger and the sink capturing its entries.
func New(opts Options) (*zap.Logger, *Sink) {
	sinkLevel := zapcore.InfoLevel
	if opts.Debug {
		sinkLevel = zapcore.DebugLevel
	}

	sink := &Sink{lines: make(map[string][]string)}
	cores := []zapcore.Core{&captureCore{LevelEnabler: sinkLevel, sink: sink}}

	if opts.Writer != nil {
		consoleLevel := zapcore.InfoLevel
		if opts.Verbose {
			consoleLevel = zapcore.DebugLevel
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = ""
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(opts.Writer),
			consoleLevel,
		))
	}

	return zap.New(zapcore.NewTee(cores...)), sink
}

// Sink stores formatted log lines per metric id
type Sink struct {
	mu    sync.Mutex
	lines map[string][]string
}

// Lines returns a copy of the lines logged for a metric id.
func (s *Sink) Lines(metricID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.lines[metricID]
	if len(src) == 0 {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Scopes returns the metric ids that have lines, sorted.
func (s *Sink) Scopes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	scopes := make([]string, 0, len(s.lines))
	for k := range s.lines {
		scopes = append(scopes, k)
	}
	sort.Strings(scopes)
	return scopes
}

func (s *Sink) add(scope, line string) {
	s.mu.Lock()
	s.lines[scope] = append(s.lines[scope], line)
	s.mu.Unlock()
}

// captureCore is a zapcore.Core writing into a Sink
type captureCore struct {
	zapcore.LevelEnabler
	sink   *Sink
	metric string
	fields []zapcore.Field
}

func (c *captureCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	for _, f := range fields {
		if f.Key == MetricField && f.Type == zapcore.StringType {
			clone.metric = f.String
		}
	}
	return &clone
}

func (c *captureCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *captureCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	scope := c.metric
	all := append(append([]zapcore.Field(nil), c.fields...), fields...)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range all {
		if f.Key == MetricField {
			if f.Type == zapcore.StringType {
				scope = f.String
			}
			continue
		}
		f.AddTo(enc)
	}
	if scope == "" {
		scope = GeneralScope
	}

	c.sink.add(scope, formatLine(ent.Level, ent.Message, enc.Fields))
	return nil
}

func (c *captureCore) Sync() error { return nil }

func formatLine(level zapcore.Level, msg string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString(levelName(level))
	b.WriteString(": ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	return b.String()
}

func levelName(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	default:
		return "ERROR"
	}
}
