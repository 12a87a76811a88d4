package ingress_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/ingress"
	"github.com/JonMunkholm/staffgrid/internal/view"
	"github.com/JonMunkholm/staffgrid/internal/view/viewtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingBroadcaster wraps a SyncManager and counts broadcasts.
type countingBroadcaster struct {
	*view.SyncManager
	n atomic.Int32
}

func (c *countingBroadcaster) Broadcast(ctx context.Context) view.BroadcastResult {
	c.n.Add(1)
	return c.SyncManager.Broadcast(ctx)
}

type fixture struct {
	store   *core.Store
	widget  *viewtest.Widget
	views   *countingBroadcaster
	ingress *ingress.Ingress
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := core.NewStore()
	require.NoError(t, store.Seed(core.DefaultSeed()))

	widget := viewtest.New(16)
	mgr := view.NewSyncManager(widget, store, view.SyncConfig{})
	require.NoError(t, mgr.ActivateNamed(context.Background(), view.InlineEditTable))
	require.NoError(t, mgr.ActivateNamed(context.Background(), view.ModalEditTable))

	views := &countingBroadcaster{SyncManager: mgr}
	return &fixture{store: store, widget: widget, views: views, ingress: ingress.New(store, views, nil)}
}

func (f *fixture) assertViewsCurrent(t *testing.T) {
	t.Helper()
	want := view.Project(f.store.Snapshot())
	for _, id := range f.widget.Live() {
		assert.Equal(t, want, f.widget.Rows(id), "view %s", id)
	}
}

func TestOnCellEdited_PartialUpdate(t *testing.T) {
	f := newFixture(t)
	before, _ := f.store.Get(2)

	changed := f.ingress.OnCellEdited(context.Background(), view.InlineEditTable, map[string]any{
		"id":   float64(2),
		"name": "  김철수B ",
	})
	require.True(t, changed)

	after, _ := f.store.Get(2)
	assert.Equal(t, "김철수B", after.Name)
	assert.Equal(t, before.Department, after.Department)
	assert.Equal(t, before.JoinDate, after.JoinDate)
	assert.EqualValues(t, 1, f.views.n.Load())
	f.assertViewsCurrent(t)
}

func TestOnCellEdited_IgnoresUnknownFields(t *testing.T) {
	f := newFixture(t)

	changed := f.ingress.OnCellEdited(context.Background(), view.InlineEditTable, map[string]any{
		"id":         "3",
		"department": "QA",
		"salary":     1000,
		"actions":    "<button>",
	})
	require.True(t, changed)

	got, _ := f.store.Get(3)
	assert.Equal(t, "QA", got.Department)
}

func TestOnCellEdited_UnparsableDateDropsOnlyThatField(t *testing.T) {
	f := newFixture(t)
	before, _ := f.store.Get(1)

	changed := f.ingress.OnCellEdited(context.Background(), view.InlineEditTable, map[string]any{
		"id":       json.Number("1"),
		"name":     "홍길순",
		"joinDate": "someday",
	})
	require.True(t, changed)

	got, _ := f.store.Get(1)
	assert.Equal(t, "홍길순", got.Name)
	assert.Equal(t, before.JoinDate, got.JoinDate)
}

func TestOnCellEdited_ParsesDate(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.ingress.OnCellEdited(context.Background(), view.InlineEditTable, map[string]any{
		"id":       4,
		"joinDate": "2024. 5. 6.",
	}))
	got, _ := f.store.Get(4)
	assert.Equal(t, core.NewDate(2024, time.May, 6), got.JoinDate)
}

func TestOnCellEdited_DroppedRows(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]any
	}{
		{"missing id", map[string]any{"name": "x"}},
		{"null id", map[string]any{"id": nil, "name": "x"}},
		{"fractional id", map[string]any{"id": 1.5, "name": "x"}},
		{"text id", map[string]any{"id": "abc", "name": "x"}},
		{"unknown id", map[string]any{"id": 999, "name": "x"}},
		{"only bad date", map[string]any{"id": 1, "joinDate": "??"}},
		{"only unknown fields", map[string]any{"id": 1, "color": "red"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.store.Snapshot()

			assert.False(t, f.ingress.OnCellEdited(context.Background(), view.InlineEditTable, tt.row))
			assert.Equal(t, before, f.store.Snapshot())
			assert.Zero(t, f.views.n.Load())
		})
	}
}

func TestOnDeleteRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.ingress.OnDeleteRequested(ctx, 5))
	_, ok := f.store.Get(5)
	assert.False(t, ok)
	assert.EqualValues(t, 1, f.views.n.Load())
	f.assertViewsCurrent(t)

	assert.False(t, f.ingress.OnDeleteRequested(ctx, 5))
	assert.EqualValues(t, 1, f.views.n.Load())
}

func TestOnEditRequested_ReturnsCopy(t *testing.T) {
	f := newFixture(t)

	working, ok := f.ingress.OnEditRequested(context.Background(), 6)
	require.True(t, ok)
	working.Name = "changed"

	stored, _ := f.store.Get(6)
	assert.Equal(t, "정우진", stored.Name)
	assert.Equal(t, ingress.EditingExisting, f.ingress.Dialog().State().Mode)

	_, ok = f.ingress.OnEditRequested(context.Background(), 404)
	assert.False(t, ok)
}

func TestRun_ConsumesWidgetEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.ingress.Run(ctx, f.widget.Events()) }()

	f.widget.Emit(view.CellEdited{ViewID: view.InlineEditTable, Row: map[string]any{"id": 1, "department": "개발"}})
	f.widget.Emit(view.DeleteRequested{ID: 2})
	f.widget.Emit(view.EditRequested{ID: 3})

	require.Eventually(t, func() bool {
		return f.ingress.Dialog().State().Mode == ingress.EditingExisting
	}, time.Second, time.Millisecond)

	got, _ := f.store.Get(1)
	assert.Equal(t, "개발", got.Department)
	_, ok := f.store.Get(2)
	assert.False(t, ok)
	f.assertViewsCurrent(t)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	f := newFixture(t)
	f.widget.CloseEvents()
	assert.NoError(t, f.ingress.Run(context.Background(), f.widget.Events()))
}
