package concurrency_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/corelend/api"
	"github.com/momentics/corelend/control"
	"github.com/momentics/corelend/internal/concurrency"
	"github.com/momentics/corelend/internal/lifecycle"
	"github.com/momentics/corelend/internal/table"
)

// traceHost records every notification in arrival order.
type traceHost struct {
	mu     sync.Mutex
	events []string
}

func (h *traceHost) add(s string) {
	h.mu.Lock()
	h.events = append(h.events, s)
	h.mu.Unlock()
}

func (h *traceHost) OnRegionBegin(th api.ThreadInfo, requested int) {
	h.add(fmt.Sprintf("region-begin/%d/%d", th.ID, requested))
}

func (h *traceHost) OnRegionEnd(th api.ThreadInfo) {
	h.add(fmt.Sprintf("region-end/%d", th.ID))
}

func (h *traceHost) OnSyncRegion(th api.ThreadInfo, kind api.SyncKind, ep api.Endpoint, state api.ExecState) {
	ev, ok := lifecycle.Translate(kind, ep, state)
	if !ok {
		h.add("ignored")
		return
	}
	h.add(fmt.Sprintf("%s/%d", ev, th.ID))
}

func (h *traceHost) ObserveInit()     {}
func (h *traceHost) ObserveFinalize() {}

func (h *traceHost) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

type fakeBinder struct {
	mu    sync.Mutex
	cores []int
	fail  bool
}

func (b *fakeBinder) Bind(core int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bind refused")
	}
	b.cores = append(b.cores, core)
	return nil
}

func (b *fakeBinder) Unbind() error { return nil }

func TestTeamRegionOrdering(t *testing.T) {
	host := &traceHost{}
	team := concurrency.NewTeam(3, host)
	defer team.Close()

	var ran atomic.Int32
	require.NoError(t, team.Parallel(func(tid int) { ran.Add(1) }))
	assert.Equal(t, int32(3), ran.Load())

	events := host.snapshot()
	require.Len(t, events, 8)
	assert.Equal(t, "region-begin/0/3", events[0])
	assert.Equal(t, "region-end/0", events[len(events)-1])

	// Every thread passes barrier end before its barrier begin.
	pos := map[string]int{}
	for i, ev := range events {
		pos[ev] = i
	}
	for tid := 0; tid < 3; tid++ {
		end, okEnd := pos[fmt.Sprintf("barrier-end/%d", tid)]
		begin, okBegin := pos[fmt.Sprintf("barrier-begin/%d", tid)]
		require.True(t, okEnd)
		require.True(t, okBegin)
		assert.Less(t, end, begin)
	}
	assert.Equal(t, int64(1), team.Stats()["regions"])
}

func TestTeamRecoversPanics(t *testing.T) {
	team := concurrency.NewTeam(2, nil)
	defer team.Close()

	err := team.Parallel(func(tid int) {
		if tid == 1 {
			panic("boom")
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker 1 panicked: boom")
	assert.Equal(t, int64(1), team.Stats()["panics"])

	require.NoError(t, team.Parallel(func(int) {}), "team survives a panicking region")
}

func TestTeamClose(t *testing.T) {
	team := concurrency.NewTeam(2, nil)
	team.Close()
	team.Close()
	assert.ErrorIs(t, team.Parallel(func(int) {}), concurrency.ErrTeamClosed)
}

func TestTeamStartPinning(t *testing.T) {
	binder := &fakeBinder{}
	team := concurrency.NewTeam(3, nil,
		concurrency.WithTeamBinder(binder),
		concurrency.WithStartCores([]int{4}),
		concurrency.WithIdentityPinning())
	defer team.Close()

	assert.Equal(t, []int{4, 1, 2}, team.Procs())
	assert.ElementsMatch(t, []int{4, 1, 2}, binder.cores)
}

func TestTeamStartPinningFailureLeavesWorkerUnpinned(t *testing.T) {
	team := concurrency.NewTeam(2, nil,
		concurrency.WithTeamBinder(&fakeBinder{fail: true}),
		concurrency.WithIdentityPinning())
	defer team.Close()

	assert.Equal(t, []int{api.NoCore, api.NoCore}, team.Procs())
	require.NoError(t, team.Parallel(func(int) {}))
}

// TestTeamsShareCores runs a primary and an opportunist team against one
// table file, each through its own mapping, and checks that no core is ever
// held by both and that nothing leaks once both finish.
func TestTeamsShareCores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moc.dat")
	require.NoError(t, table.Create(path, 4))

	newTool := func(opportunist bool) *lifecycle.Tool {
		cfg := control.DefaultConfig()
		cfg.MapFile = path
		cfg.Opportunist = opportunist
		cfg.RetryInterval = 50 * time.Microsecond
		cfg.MaxThreads = 4
		tool := lifecycle.New(cfg, lifecycle.WithFatal(func(err error) { t.Error(err) }))
		t.Cleanup(func() { _ = tool.Close() })
		return tool
	}
	prim := newTool(false)
	opp := newTool(true)
	primTeam := concurrency.NewTeam(3, prim)
	oppTeam := concurrency.NewTeam(3, opp)
	defer primTeam.Close()
	defer oppTeam.Close()

	var violations atomic.Int32
	check := func(tool *lifecycle.Tool, want api.CellState) func(int) {
		return func(tid int) {
			st, _ := tool.Thread(tid)
			if st.HeldCore != api.NoCore && tool.Table().Load(st.HeldCore) != want {
				violations.Add(1)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}

	const regions = 20
	var wg sync.WaitGroup
	run := func(team *concurrency.Team, body func(int)) {
		defer wg.Done()
		for i := 0; i < regions; i++ {
			if err := team.Parallel(body); err != nil {
				t.Error(err)
				return
			}
		}
	}
	wg.Add(2)
	go run(primTeam, check(prim, api.CellPrimary))
	go run(oppTeam, check(opp, api.CellOpportunist))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		prim.ObserveFinalize()
		opp.ObserveFinalize()
		<-done
		t.Fatal("teams did not finish")
	}

	assert.Zero(t, violations.Load())
	assert.Equal(t, regions, prim.Cycles())
	assert.Equal(t, regions, opp.Cycles())

	tbl := prim.Table()
	require.NotNil(t, tbl)
	assert.Equal(t, 0, opp.HeldCores())
	assert.Equal(t, 0, tbl.HeldCount(api.CellOpportunist))
	assert.Equal(t, 0, tbl.HeldCount(api.CellPrimary))
}
