package task

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Report string
	Steps  []string
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry[payload](KindQuery)

	info := reg.Create("is the bridge closed?", "deep")
	require.True(t, strings.HasPrefix(info.ID, "query_"))
	require.Equal(t, StatusPending, info.Status)
	require.Equal(t, KindQuery, info.Kind)

	_, _, err := reg.Result(info.ID)
	require.ErrorIs(t, err, ErrNotFinished)

	require.NoError(t, reg.Progress(info.ID, 30))
	got, err := reg.Get(info.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)
	require.Equal(t, 30, got.Progress)

	require.NoError(t, reg.Stash(info.ID, func(p *payload) { p.Steps = append(p.Steps, "research") }))
	_, partial, err := reg.Peek(info.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"research"}, partial.Steps)

	require.NoError(t, reg.Complete(info.ID, payload{Report: "done", Steps: partial.Steps}))
	got, result, err := reg.Result(info.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.True(t, got.HasResult)
	require.Equal(t, "done", result.Report)
}

func TestRegistryFail(t *testing.T) {
	reg := NewRegistry[payload](KindTimeline)
	info := reg.Create("", "")

	require.NoError(t, reg.Progress(info.ID, 50))
	require.NoError(t, reg.Fail(info.ID, errors.New("agent unreachable")))

	got, _, err := reg.Result(info.ID)
	require.ErrorIs(t, err, ErrFailed)
	require.Contains(t, err.Error(), "agent unreachable")
	require.Equal(t, StatusError, got.Status)
	require.Equal(t, 0, got.Progress)
	require.Equal(t, "agent unreachable", got.ErrorMessage)
}

func TestRegistryUnknownID(t *testing.T) {
	reg := NewRegistry[payload](KindVerification)

	_, err := reg.Get("verification_missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, reg.Progress("verification_missing", 10), ErrNotFound)
	_, _, err = reg.Result("verification_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryProgressClamped(t *testing.T) {
	reg := NewRegistry[payload](KindQuery)
	info := reg.Create("q", "quick")

	require.NoError(t, reg.Progress(info.ID, 250))
	got, _ := reg.Get(info.ID)
	require.Equal(t, 100, got.Progress)

	require.NoError(t, reg.Progress(info.ID, -5))
	got, _ = reg.Get(info.ID)
	require.Equal(t, 0, got.Progress)
}

func TestRegistryPrune(t *testing.T) {
	base := time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)
	clock := base
	reg := NewRegistry[payload](KindQuery)
	reg.now = func() time.Time { return clock }

	done := reg.Create("old done", "deep")
	require.NoError(t, reg.Complete(done.ID, payload{}))
	failed := reg.Create("old failed", "deep")
	require.NoError(t, reg.Fail(failed.ID, errors.New("boom")))
	running := reg.Create("old running", "deep")
	require.NoError(t, reg.Progress(running.ID, 10))

	clock = base.Add(2 * time.Hour)
	fresh := reg.Create("fresh", "deep")
	require.NoError(t, reg.Complete(fresh.ID, payload{}))

	removed := reg.Prune(base.Add(time.Hour))
	require.Equal(t, 2, removed)

	_, err := reg.Get(done.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Get(running.ID)
	require.NoError(t, err)
	_, err = reg.Get(fresh.ID)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	require.Equal(t, fresh.ID, list[0].ID)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry[payload](KindQuery)

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info := reg.Create("q", "deep")
			_ = reg.Progress(info.ID, 50)
			_ = reg.Stash(info.ID, func(p *payload) { p.Report = "partial" })
			_ = reg.Complete(info.ID, payload{Report: "final"})
			ids <- info.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		require.False(t, seen[id], "ids must be unique")
		seen[id] = true
		_, p, err := reg.Result(id)
		require.NoError(t, err)
		require.Equal(t, "final", p.Report)
	}
	require.Len(t, seen, 50)
}
