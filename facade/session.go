// File: facade/session.go
// Unified facade for processes taking part in core lending.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session wires configuration, logging, control, affinity, the lifecycle
// tool and a worker team into one value. A Go program embeds a Session and
// runs its parallel work through Parallel; the session lends and borrows
// cores at every region boundary on the program's behalf.

package facade

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/corelend/adapters"
	"github.com/momentics/corelend/api"
	"github.com/momentics/corelend/control"
	"github.com/momentics/corelend/internal/concurrency"
	"github.com/momentics/corelend/internal/lifecycle"
)

// Option tunes how a Session is assembled.
type Option func(*options)

type options struct {
	workers   int
	logWriter io.Writer
	getenv    func(string) string
	fatal     func(error)
	pin       bool
}

// WithWorkers sets the team size. Defaults to the CPU count capped by
// Config.MaxThreads.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithLogWriter sends JSON logs to w instead of stderr.
func WithLogWriter(w io.Writer) Option { return func(o *options) { o.logWriter = w } }

// WithGetenv sets the environment lookup used by Reload.
func WithGetenv(fn func(string) string) Option { return func(o *options) { o.getenv = fn } }

// WithFatal replaces the handler for an unusable core table.
func WithFatal(fn func(error)) Option { return func(o *options) { o.fatal = fn } }

// WithStartPinning pins worker i to core i at start when rebinding is enabled.
func WithStartPinning() Option { return func(o *options) { o.pin = true } }

// Session is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type Session struct {
	id       string
	cfg      *control.Config
	log      *control.Logger
	control  *adapters.ControlAdapter
	binder   *adapters.AffinityAdapter
	tool     *lifecycle.Tool
	team     *concurrency.Team
	reloader *control.Reloader
	started  time.Time
	once     sync.Once
}

var _ api.GracefulShutdown = (*Session)(nil)

// New validates cfg and starts a session. A nil cfg is loaded from the
// process environment.
func New(cfg *control.Config, opts ...Option) (*Session, error) {
	o := options{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		loaded, err := control.LoadConfig(o.getenv)
		if err != nil {
			return nil, fmt.Errorf("facade: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("facade: %w", err)
	}
	if o.workers <= 0 {
		o.workers = min(runtime.NumCPU(), cfg.MaxThreads)
	}
	if o.workers > cfg.MaxThreads {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "team larger than record capacity").
			WithContext("workers", o.workers).
			WithContext("maxThreads", cfg.MaxThreads).
			Wrap(api.ErrInvalidArgument)
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		control: adapters.NewControlAdapter(),
		binder:  adapters.NewAffinityAdapter(cfg.Rebind),
		started: time.Now(),
	}
	s.log = control.NewLogger(cfg.Level(), o.logWriter).Clone().Str("session", s.id).Logger()
	s.reloader = control.NewReloader(s.control.Store(), o.getenv)
	s.control.SetConfig(cfg.ToMap())

	toolOpts := []lifecycle.Option{
		lifecycle.WithLogger(s.log),
		lifecycle.WithMetrics(s.control.Metrics()),
		lifecycle.WithBinder(s.binder),
	}
	if o.fatal != nil {
		toolOpts = append(toolOpts, lifecycle.WithFatal(o.fatal))
	}
	s.tool = lifecycle.New(cfg, toolOpts...)

	teamOpts := []concurrency.TeamOption{
		concurrency.WithTeamBinder(s.binder),
		concurrency.WithTeamLogger(s.log),
	}
	if o.pin && cfg.Rebind {
		teamOpts = append(teamOpts, concurrency.WithIdentityPinning())
	}
	s.team = concurrency.NewTeam(o.workers, s.tool, teamOpts...)

	s.control.OnReload(s.applyTunables)
	s.registerProbes()
	s.tool.ObserveInit()

	s.log.Info().
		Str("role", s.tool.Role().String()).
		Str("mapfile", cfg.MapFile).
		Int("workers", o.workers).
		Bool("rebind", cfg.Rebind).
		Log("session started")
	return s, nil
}

func (s *Session) registerProbes() {
	s.control.RegisterDebugProbe("session.id", func() any { return s.id })
	s.control.RegisterDebugProbe("session.uptime", func() any { return time.Since(s.started).String() })
	s.control.RegisterDebugProbe("table.cells", func() any {
		tbl := s.tool.Table()
		if tbl == nil {
			return nil
		}
		return tbl.Snapshot().Cells
	})
	s.control.RegisterDebugProbe("lifecycle.cycles", func() any { return s.tool.Cycles() })
	s.control.RegisterDebugProbe("lifecycle.held", func() any { return s.tool.HeldCores() })
	s.control.RegisterDebugProbe("lifecycle.grant", func() any { return s.tool.Grant() })
	s.control.RegisterDebugProbe("team", func() any { return s.team.Stats() })
	s.control.RegisterDebugProbe("affinity", func() any { return s.binder.Stats() })
}

// applyTunables pushes the runtime-adjustable settings from the store into the tool.
func (s *Session) applyTunables() {
	store := s.control.Store()
	if v, ok := store.Get("retryInterval"); ok {
		if d, ok := v.(time.Duration); ok {
			s.tool.SetRetryInterval(d)
		}
	}
	if v, ok := store.Get("maxAttempts"); ok {
		if n, ok := v.(int); ok {
			s.tool.SetMaxAttempts(n)
		}
	}
	s.log.Debug().
		Dur("retryInterval", s.tool.RetryInterval()).
		Int("maxAttempts", s.tool.MaxAttempts()).
		Log("tunables applied")
}

// ID returns the session identifier attached to every log line.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was started with.
func (s *Session) Config() *control.Config { return s.cfg }

// Control returns the control surface.
func (s *Session) Control() api.Control { return s.control }

// Tool returns the lifecycle tool.
func (s *Session) Tool() *lifecycle.Tool { return s.tool }

// NumWorkers returns the team size.
func (s *Session) NumWorkers() int { return s.team.NumWorkers() }

// Parallel runs body once per worker as one parallel region.
func (s *Session) Parallel(body func(tid int)) error {
	return s.team.Parallel(body)
}

// Reload re-reads the configuration sources. Only the retry interval and
// attempt cap take effect on a running session.
func (s *Session) Reload() error {
	cfg, err := s.reloader.Reload()
	if err != nil {
		s.log.Warning().Err(err).Log("reload rejected")
		return err
	}
	if cfg.Opportunist != s.cfg.Opportunist || cfg.MapFile != s.cfg.MapFile {
		s.log.Notice().Log("role and table path changes apply to new sessions only")
	}
	return nil
}

// Shutdown finalizes the tool and stops the team. Closing the tool then
// returns every core the process still holds and unmaps the table.
func (s *Session) Shutdown() error {
	var err error
	s.once.Do(func() {
		s.tool.ObserveFinalize()
		s.team.Close()
		err = s.tool.Close()
		s.log.Info().
			Int("cycles", s.tool.Cycles()).
			Dur("uptime", time.Since(s.started)).
			Log("session stopped")
	})
	return err
}
