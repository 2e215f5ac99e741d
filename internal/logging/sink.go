// Package logging provides the shared logging sink for a workflow run.
//
// The sink writes structured lines of the form "[timestamp] LEVEL: message"
// to two destinations at once: a size/count-bounded rotating log file and a
// live console stream. Every component receives the same *Sink by injection;
// worker goroutines may log concurrently, serialization happens inside the
// sink's writers.
//
// Key types:
//   - [Sink] - the injected logging object
//   - [Options] - construction parameters
//   - [Decorator] - console styling strategy, selected once at startup
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeFormat = "2006-01-02 15:04:05"

	// Rotation bounds for the persistent log.
	defaultMaxSizeMB  = 5
	defaultMaxBackups = 5
)

// Options configures a [Sink].
type Options struct {
	// FilePath is the rotating log file destination. Empty disables the
	// file destination (used by tests that only need the console stream).
	FilePath string

	// Console is the live console stream. Nil disables it.
	Console io.Writer

	// MaxSizeMB and MaxBackups bound the rotating file. Zero values take
	// the package defaults.
	MaxSizeMB  int
	MaxBackups int

	// Decorator styles console banners. Nil selects [PlainDecorator].
	Decorator Decorator
}

// Sink is the process-wide logging destination.
//
// Construct with [New], or [Init] for the idempotent package-level instance.
// All methods are safe for concurrent use.
type Sink struct {
	log zerolog.Logger
	dec Decorator
}

// syncWriter serializes writes from worker goroutines onto one destination.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// lineWriter renders zerolog events as "[timestamp] LEVEL: message".
func lineWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:     &syncWriter{w: w},
		NoColor: true,
		FormatTimestamp: func(i interface{}) string {
			if ts, ok := i.(string); ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					return "[" + t.Format(timeFormat) + "]"
				}
				return "[" + ts + "]"
			}
			return fmt.Sprintf("[%v]", i)
		},
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("%s:", i))
		},
	}
}

// New creates a Sink writing to the destinations named in opts.
func New(opts Options) *Sink {
	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, lineWriter(opts.Console))
	}
	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = defaultMaxSizeMB
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = defaultMaxBackups
		}
		writers = append(writers, lineWriter(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}))
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	dec := opts.Decorator
	if dec == nil {
		dec = PlainDecorator{}
	}

	return &Sink{
		log: zerolog.New(out).With().Timestamp().Logger(),
		dec: dec,
	}
}

var (
	initMu     sync.Mutex
	configured *Sink
)

// Init returns the package-level Sink, creating it on first call.
//
// Subsequent calls return the already-configured instance and ignore opts,
// so repeated initialization never duplicates destinations.
func Init(opts Options) *Sink {
	initMu.Lock()
	defer initMu.Unlock()
	if configured == nil {
		configured = New(opts)
	}
	return configured
}

// Infof logs at informational severity.
func (s *Sink) Infof(format string, args ...any) {
	s.log.Info().Msgf(format, args...)
}

// Warnf logs at warning severity.
func (s *Sink) Warnf(format string, args ...any) {
	s.log.Warn().Msgf(format, args...)
}

// Errorf logs at error severity.
func (s *Sink) Errorf(format string, args ...any) {
	s.log.Error().Msgf(format, args...)
}

// Banner logs a highlighted section header: a rule, the title, a rule.
func (s *Sink) Banner(title string) {
	rule := strings.Repeat("=", 60)
	s.Infof("%s", rule)
	s.Infof("%s", s.dec.Title(title))
	s.Infof("%s", rule)
}
