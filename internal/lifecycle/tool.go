// File: internal/lifecycle/tool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tool is the per-process lifecycle handler. It owns the table handle, the
// per-thread records and the grant of the current region.

package lifecycle

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-catrate"

	"github.com/momentics/corelend/api"
	"github.com/momentics/corelend/control"
	"github.com/momentics/corelend/internal/table"
)

// Metric counter names.
const (
	MetricBootstraps     = "lifecycle.bootstraps"
	MetricRegions        = "lifecycle.regions"
	MetricBulkClaims     = "lifecycle.bulk_claims"
	MetricBulkRetries    = "lifecycle.bulk_retries"
	MetricCoresBorrowed  = "lifecycle.cores_borrowed"
	MetricCoresReleased  = "lifecycle.cores_released"
	MetricReclaims       = "lifecycle.reclaims"
	MetricReclaimRetries = "lifecycle.reclaim_retries"
	MetricGaveUp         = "lifecycle.gave_up"
	MetricRebinds        = "lifecycle.rebinds"
	MetricRebindFailures = "lifecycle.rebind_failures"
	MetricDropped        = "lifecycle.dropped_events"
)

// Option configures a Tool.
type Option func(*Tool)

// WithLogger sets the logger; the tool tags it with its component name.
func WithLogger(l *control.Logger) Option {
	return func(t *Tool) { t.log = control.Component(l, "lifecycle") }
}

// WithMetrics sets the registry counters are written to.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(t *Tool) { t.metrics = m }
}

// WithBinder sets the affinity binder used for rebinding.
func WithBinder(b api.Binder) Option {
	return func(t *Tool) { t.binder = b }
}

// WithFatal replaces the handler for unrecoverable setup errors.
// The default logs at critical level and exits with status 1.
func WithFatal(fn func(error)) Option {
	return func(t *Tool) { t.fatal = fn }
}

// WithTable hands the tool an already opened table. The caller keeps
// ownership and must close it.
func WithTable(tb *table.Table) Option {
	return func(t *Tool) { t.table = tb }
}

// WithClock replaces the time source used for cycle accounting.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) { t.now = now }
}

// Tool implements api.Host.
type Tool struct {
	role     api.Role
	mapFile  string
	log      *control.Logger
	metrics  *control.MetricsRegistry
	binder   api.Binder
	fatal    func(error)
	now      func() time.Time
	limiter  *catrate.Limiter
	records  []record
	boot     sync.Once
	table    *table.Table
	owned    bool
	ready    atomic.Bool
	stable   int
	cycles   atomic.Int64
	grant    atomic.Pointer[grant]
	final    atomic.Bool
	inits    atomic.Int64
	interval atomic.Int64
	attempts atomic.Int64
}

var _ api.Host = (*Tool)(nil)

// grant is the set of cores claimed for one region. An entry is taken once,
// either by the thread it is handed to or by returnGrant.
type grant struct {
	cores *queue.Queue
	taken []atomic.Bool
}

func newGrant(cores []int) *grant {
	g := &grant{cores: queue.New(), taken: make([]atomic.Bool, len(cores))}
	for _, c := range cores {
		g.cores.Add(c)
	}
	return g
}

func (g *grant) core(i int) int { return g.cores.Get(i).(int) }

// New creates a tool for the process described by cfg. The table is not
// opened until the first region begins.
func New(cfg *control.Config, opts ...Option) *Tool {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	t := &Tool{
		role:    api.RolePrimary,
		mapFile: cfg.MapFile,
		now:     time.Now,
		limiter: catrate.NewLimiter(map[time.Duration]int{time.Second: 4, time.Minute: 30}),
	}
	if cfg.Opportunist {
		t.role = api.RoleOpportunist
	}
	threads := cfg.MaxThreads
	if threads <= 0 {
		threads = control.DefaultMaxThreads
	}
	t.records = make([]record, threads)
	for i := range t.records {
		t.records[i].reset()
	}
	t.interval.Store(int64(cfg.RetryInterval))
	t.attempts.Store(int64(cfg.MaxAttempts))
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = control.NopLogger()
	}
	if t.fatal == nil {
		t.fatal = t.exit
	}
	return t
}

func (t *Tool) exit(err error) {
	t.log.Crit().Err(err).Str("mapfile", t.mapFile).Log("core table unavailable")
	os.Exit(1)
}

// Role reports the process role.
func (t *Tool) Role() api.Role { return t.role }

// StableCores is the number of leading threads that never borrow.
func (t *Tool) StableCores() int { return t.stable }

// Cycles is the number of regions entered so far.
func (t *Tool) Cycles() int { return int(t.cycles.Load()) }

// Finalized reports whether ObserveFinalize has been called.
func (t *Tool) Finalized() bool { return t.final.Load() }

// Table returns the mapped table, or nil before the first region.
func (t *Tool) Table() *table.Table {
	if !t.ready.Load() {
		return nil
	}
	return t.table
}

// SetRetryInterval changes the sleep between claim scans.
func (t *Tool) SetRetryInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.interval.Store(int64(d))
}

// RetryInterval returns the sleep between claim scans.
func (t *Tool) RetryInterval() time.Duration { return time.Duration(t.interval.Load()) }

// MaxAttempts returns the claim attempt cap.
func (t *Tool) MaxAttempts() int { return int(t.attempts.Load()) }

// SetMaxAttempts changes the claim attempt cap; 0 means unbounded.
func (t *Tool) SetMaxAttempts(n int) {
	if n < 0 {
		n = 0
	}
	t.attempts.Store(int64(n))
}

// Grant returns the cores claimed for the current region.
func (t *Tool) Grant() []int {
	g := t.grant.Load()
	if g == nil {
		return nil
	}
	out := make([]int, g.cores.Length())
	for i := range out {
		out[i] = g.core(i)
	}
	return out
}

// Thread returns the state of thread tid.
func (t *Tool) Thread(tid int) (ThreadState, bool) {
	if tid < 0 || tid >= len(t.records) {
		return ThreadState{}, false
	}
	r := &t.records[tid]
	return ThreadState{
		ID:           tid,
		HeldCore:     r.held(),
		BoundCore:    int(r.boundCore.Load()),
		OSThreadID:   int(r.osTID.Load()),
		CycleElapsed: time.Duration(r.cycleElapsed.Load()),
	}, true
}

// HeldCores counts records currently holding a core.
func (t *Tool) HeldCores() int {
	n := 0
	for i := range t.records {
		if t.records[i].held() != api.NoCore {
			n++
		}
	}
	return n
}

// OnRegionBegin handles the start of a parallel region of requested threads.
func (t *Tool) OnRegionBegin(th api.ThreadInfo, requested int) {
	t.Dispatch(th, api.EventRegionBegin, requested)
}

// OnRegionEnd handles the end of a parallel region.
func (t *Tool) OnRegionEnd(th api.ThreadInfo) {
	t.Dispatch(th, api.EventRegionEnd, 0)
}

// OnSyncRegion handles a synchronization notification; only implicit
// barriers in the overhead state have an effect.
func (t *Tool) OnSyncRegion(th api.ThreadInfo, kind api.SyncKind, ep api.Endpoint, state api.ExecState) {
	if ev, ok := Translate(kind, ep, state); ok {
		t.Dispatch(th, ev, 0)
	}
}

// ObserveInit counts a start observation of the message-passing runtime.
func (t *Tool) ObserveInit() {
	n := t.inits.Add(1)
	t.log.Info().Int64("observed", n).Str("role", t.role.String()).Log("runtime init observed")
}

// ObserveFinalize stops all further ownership transitions and aborts
// pending retry loops.
func (t *Tool) ObserveFinalize() {
	if t.final.Swap(true) {
		return
	}
	t.log.Info().Int("cycles", t.Cycles()).Int("held", t.HeldCores()).Log("runtime finalize observed")
}

// Close finalizes the tool, returns every core the process still holds and
// unmaps the table if the tool opened it. Call it once no thread of the
// process is inside a region.
func (t *Tool) Close() error {
	t.ObserveFinalize()
	t.boot.Do(func() {})
	if t.ready.Load() {
		t.returnHeld()
	}
	if t.owned && t.table != nil {
		return t.table.Close()
	}
	return nil
}

// Dispatch applies one lifecycle event for thread th.
func (t *Tool) Dispatch(th api.ThreadInfo, ev api.Event, requested int) {
	if th.ID < 0 || th.ID >= len(t.records) {
		t.metrics.Add(MetricDropped, 1)
		t.warnf("thread-range", "thread %d outside record capacity %d", th.ID, len(t.records))
		return
	}
	switch ev {
	case api.EventRegionBegin:
		t.regionBegin(th, requested)
	case api.EventRegionEnd:
		t.regionEnd(th)
	case api.EventBarrierBegin, api.EventBarrierEnd:
		if t.final.Load() || !t.ready.Load() {
			return
		}
		if ev == api.EventBarrierBegin {
			t.barrierBegin(th)
		} else {
			t.barrierEnd(th)
		}
	}
}

func (t *Tool) bootstrap() {
	t.boot.Do(func() {
		if t.table == nil {
			tb, err := table.Open(t.mapFile)
			if err != nil {
				t.fatal(fmt.Errorf("lifecycle: bootstrap: %w", err))
				return
			}
			t.table = tb
			t.owned = true
		}
		if t.role == api.RoleOpportunist {
			t.stable = 1
		}
		for i := range t.records {
			t.records[i].reset()
			if t.role == api.RolePrimary && i > 0 {
				t.records[i].startOwned.Store(true)
			}
		}
		t.ready.Store(true)
		t.metrics.Add(MetricBootstraps, 1)
		t.log.Info().
			Str("mapfile", t.table.Path()).
			Str("role", t.role.String()).
			Int("cores", t.table.CoreCount()).
			Int("stable", t.stable).
			Log("core table mapped")
	})
}

func (t *Tool) regionBegin(th api.ThreadInfo, requested int) {
	rec := &t.records[th.ID]
	rec.osTID.Store(int32(osThreadID()))
	if t.cycles.Load() == 0 {
		t.bootstrap()
	}
	if t.ready.Load() && t.role == api.RoleOpportunist && t.cycles.Load() >= 1 && th.ID == 0 {
		t.borrow(requested - t.stable)
	}
	t.cycles.Add(1)
	t.metrics.Add(MetricRegions, 1)
	rec.cycleStart.Store(t.now().UnixNano())
}

func (t *Tool) regionEnd(th api.ThreadInfo) {
	rec := &t.records[th.ID]
	start := rec.cycleStart.Load()
	if start == 0 {
		return
	}
	elapsed := time.Duration(t.now().UnixNano() - start)
	rec.cycleElapsed.Store(int64(elapsed))
	t.log.Debug().Int("thread", th.ID).Int("cycle", t.Cycles()).Dur("elapsed", elapsed).Log("region end")
}

// borrow claims want cores for the whole process and publishes them as the
// region grant. A request larger than the borrowable part of the table can
// never succeed and is trimmed to fit.
func (t *Tool) borrow(want int) {
	t.returnGrant()
	if want <= 0 {
		t.grant.Store(newGrant(nil))
		return
	}
	if limit := t.table.CoreCount() - 1; want > limit {
		t.warnf("oversized-grant", "requested %d cores, table lends at most %d", want, limit)
		want = limit
	}
	var cores []int
	ok := t.retry(MetricBulkRetries, func() bool {
		cores = t.table.ClaimAll(want)
		return cores != nil
	})
	if ok {
		t.metrics.Add(MetricBulkClaims, 1)
		t.metrics.Add(MetricCoresBorrowed, int64(len(cores)))
		t.log.Debug().Int("want", want).Int("cycle", t.Cycles()).Log("cores borrowed")
	} else {
		cores = nil
	}
	t.grant.Store(newGrant(cores))
}

// returnGrant releases the entries of the current grant that no thread took.
func (t *Tool) returnGrant() int {
	g := t.grant.Load()
	if g == nil {
		return 0
	}
	n := 0
	for i := range g.taken {
		if g.taken[i].Swap(true) {
			continue
		}
		if t.table.Release(g.core(i), t.role) {
			t.metrics.Add(MetricCoresReleased, 1)
			n++
		}
	}
	return n
}

// returnHeld releases the cores held by every record and the untaken part
// of the grant.
func (t *Tool) returnHeld() {
	n := 0
	for i := range t.records {
		rec := &t.records[i]
		if core := rec.held(); core != api.NoCore {
			t.release(rec, core)
			n++
		}
	}
	n += t.returnGrant()
	if n > 0 {
		t.log.Info().Int("cores", n).Log("cores returned at teardown")
	}
}

func (t *Tool) barrierBegin(th api.ThreadInfo) {
	rec := &t.records[th.ID]
	switch t.role {
	case api.RoleOpportunist:
		if th.ID < t.stable {
			return
		}
		if core := rec.held(); core != api.NoCore {
			t.release(rec, core)
		}
	case api.RolePrimary:
		if th.ID == 0 || t.cycles.Load() == 0 {
			return
		}
		core := rec.held()
		if core == api.NoCore && rec.startOwned.Swap(false) {
			core = th.Proc
		}
		if core != api.NoCore {
			t.release(rec, core)
		}
	}
}

func (t *Tool) release(rec *record, core int) {
	if t.table.Release(core, t.role) {
		t.metrics.Add(MetricCoresReleased, 1)
	}
	rec.heldCore.Store(api.NoCore)
}

func (t *Tool) barrierEnd(th api.ThreadInfo) {
	rec := &t.records[th.ID]
	switch t.role {
	case api.RolePrimary:
		if th.ID == 0 {
			return
		}
		rec.startOwned.Store(false)
		core := api.NoCore
		ok := t.retry(MetricReclaimRetries, func() bool {
			c, got := t.table.ClaimFirstAvailable(api.RolePrimary)
			core = c
			return got
		})
		if !ok {
			return
		}
		rec.heldCore.Store(int32(core))
		t.metrics.Add(MetricReclaims, 1)
		if core != rec.currentCore(th) {
			t.rebind(rec, th, core)
		}
	case api.RoleOpportunist:
		if th.ID < t.stable || t.cycles.Load() <= 1 {
			return
		}
		g := t.grant.Load()
		idx := th.ID - t.stable
		if g == nil || idx >= len(g.taken) || g.taken[idx].Swap(true) {
			return
		}
		core := g.core(idx)
		rec.heldCore.Store(int32(core))
		t.rebind(rec, th, core)
	}
}

// retry runs attempt until it succeeds, the tool is finalized, or the
// attempt cap is reached.
func (t *Tool) retry(counter string, attempt func() bool) bool {
	limit := t.attempts.Load()
	for n := int64(1); ; n++ {
		if t.final.Load() {
			return false
		}
		if attempt() {
			return true
		}
		if limit > 0 && n >= limit {
			t.metrics.Add(MetricGaveUp, 1)
			t.warnf(counter, "no core after %d attempts, continuing without one", n)
			return false
		}
		t.metrics.Add(counter, 1)
		if d := time.Duration(t.interval.Load()); d > 0 {
			time.Sleep(d)
		}
	}
}

func (t *Tool) rebind(rec *record, th api.ThreadInfo, core int) {
	if t.binder == nil {
		rec.boundCore.Store(int32(core))
		return
	}
	t.metrics.Add(MetricRebinds, 1)
	if err := t.binder.Bind(core); err != nil {
		t.metrics.Add(MetricRebindFailures, 1)
		if _, ok := t.limiter.Allow("rebind"); ok {
			t.log.Warning().Err(err).Int("thread", th.ID).Int("core", core).Log("rebind failed")
		}
		return
	}
	rec.boundCore.Store(int32(core))
}

func (t *Tool) warnf(category, format string, args ...any) {
	if _, ok := t.limiter.Allow(category); ok {
		t.log.Warning().Str("category", category).Log(fmt.Sprintf(format, args...))
	}
}
