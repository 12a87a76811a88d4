package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/staffgrid/internal/blob"
	"github.com/JonMunkholm/staffgrid/internal/config"
	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/download"
	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/ingress"
	"github.com/JonMunkholm/staffgrid/internal/metrics"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

type fixture struct {
	srv     *Server
	store   *core.Store
	hub     *Hub
	views   *view.SyncManager
	ingress *ingress.Ingress
	archive blob.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := config.LoadFrom(func(string) string { return "" })
	require.NoError(t, err)

	store := core.NewStore()
	require.NoError(t, store.Seed(core.DefaultSeed()))

	hub := NewHub(16, nil)
	views := view.NewSyncManager(hub, store, view.SyncConfig{
		Retry: view.RetryPolicy{Attempts: 1},
	})
	in := ingress.New(store, views, nil)
	archive := blob.NewMemory()

	srv := NewServer(cfg, Deps{
		Store:    store,
		Views:    views,
		Hub:      hub,
		Ingress:  in,
		Importer: importer.New(store, importer.Config{Limiter: core.NewImportLimiter(1, time.Second)}),
		Archive:  &download.Archive{Store: archive, Prefix: "exports/"},
		Metrics:  metrics.New(),
	})
	t.Cleanup(hub.Close)

	return &fixture{srv: srv, store: store, hub: hub, views: views, ingress: in, archive: archive}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) json(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return f.do(t, method, path, r, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.json(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", got["status"])
	assert.EqualValues(t, 10, got["employees"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListEmployeesAndDepartments(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodGet, "/api/employees", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]core.Employee](t, rec)
	require.Len(t, list, 10)
	assert.Equal(t, 1, list[0].ID)

	rec = f.json(t, http.MethodGet, "/api/departments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.store.DistinctDepartments(), decode[[]string](t, rec))
}

func TestGetEmployee(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodGet, "/api/employees/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[core.Employee](t, rec).ID)

	rec = f.json(t, http.MethodGet, "/api/employees/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NF001", errorCode(t, rec))

	rec = f.json(t, http.MethodGet, "/api/employees/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", errorCode(t, rec))
}

func TestDeleteEmployee(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodDelete, "/api/employees/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 9, f.store.Len())

	rec = f.json(t, http.MethodDelete, "/api/employees/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NF001", errorCode(t, rec))
	assert.Equal(t, 9, f.store.Len())
}

func TestEditCells(t *testing.T) {
	f := newFixture(t)
	before, _ := f.store.Get(1)

	rec := f.json(t, http.MethodPost, "/api/employees/1/cells", `{"name":"김수정","joinDate":"not a date","id":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, _ := f.store.Get(1)
	assert.Equal(t, "김수정", after.Name)
	assert.Equal(t, before.JoinDate, after.JoinDate, "unparsable date is dropped")
	other, _ := f.store.Get(5)
	assert.NotEqual(t, "김수정", other.Name, "id in the body never redirects the edit")

	rec = f.json(t, http.MethodPost, "/api/employees/42/cells", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.json(t, http.MethodPost, "/api/employees/1/cells", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDialogCreateFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodPost, "/api/dialog/new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[ingress.DialogState](t, rec)
	assert.Equal(t, ingress.CreatingNew, st.Mode)
	assert.Equal(t, 11, st.ID)

	rec = f.json(t, http.MethodPut, "/api/dialog", `{"name":"신입","department":"개발","joinDate":"2024-05-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.json(t, http.MethodPut, "/api/dialog", `{"joinDate":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", errorCode(t, rec))

	rec = f.json(t, http.MethodPost, "/api/dialog/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[core.Employee](t, rec)
	assert.Equal(t, core.Employee{ID: 11, Name: "신입", Department: "개발", JoinDate: core.NewDate(2024, time.May, 1)}, saved)
	assert.Equal(t, 11, f.store.Len())

	rec = f.json(t, http.MethodPost, "/api/dialog/save", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DLG001", errorCode(t, rec))
}

func TestDialogEditDeletedRecord(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodPost, "/api/dialog/edit/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingress.EditingExisting, decode[ingress.DialogState](t, rec).Mode)

	require.NoError(t, f.store.Remove(4))

	rec = f.json(t, http.MethodPost, "/api/dialog/save", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ingress.Closed, f.ingress.Dialog().State().Mode)

	rec = f.json(t, http.MethodPost, "/api/dialog/edit/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDialogCancel(t *testing.T) {
	f := newFixture(t)
	f.json(t, http.MethodPost, "/api/dialog/new", "")

	rec := f.json(t, http.MethodPost, "/api/dialog/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingress.Closed, f.ingress.Dialog().State().Mode)
	assert.Equal(t, 10, f.store.Len())
}

func multipartCSV(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartCSV(t, "people.csv", "Name,Department,JoinDate\n새사람,영업,2024-02-02\n,영업,2024-02-02\n")

	rec := f.do(t, http.MethodPost, "/api/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[importer.Report](t, rec)
	assert.Equal(t, "people.csv", report.FileName)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "VAL003", report.Outcomes[0].Code)
	assert.Equal(t, 11, f.store.Len())
}

func TestImportDryRun(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartCSV(t, "people.csv", "이름,부서,입사일\n새사람,영업,2024-02-02\n")

	rec := f.do(t, http.MethodPost, "/api/import?dryRun=true", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[importer.Report](t, rec).SuccessCount)
	assert.Equal(t, 10, f.store.Len())
}

func TestImportRejectsExport(t *testing.T) {
	f := newFixture(t)
	export, err := importer.ExportBytes(f.store.List())
	require.NoError(t, err)
	body, ct := multipartCSV(t, "employees-export.csv", string(export))

	rec := f.do(t, http.MethodPost, "/api/import", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[importer.Report](t, rec)
	assert.True(t, report.Fatal)
	assert.Equal(t, 10, f.store.Len())
}

func TestImportWithoutFile(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	rec := f.do(t, http.MethodPost, "/api/import", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", errorCode(t, rec))
}

func TestExportArchivesCopy(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, importer.CSVMimeType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), importer.ExportFileName)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Id,Name,Department,JoinDate\n"))

	list, err := f.archive.List(context.Background(), "exports/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, strings.HasSuffix(list[0].Key, "-"+importer.ExportFileName))
}

func TestTemplate(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodGet, "/api/template", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(importer.TemplateBytes()), rec.Body.String())
}

func TestActivateWithoutWidget(t *testing.T) {
	f := newFixture(t)

	rec := f.json(t, http.MethodPost, "/api/views/"+view.FilterTable+"/activate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "VIEW001", errorCode(t, rec))
	assert.Equal(t, view.Uninitialized, f.views.State(view.FilterTable))

	rec = f.json(t, http.MethodPost, "/api/views/nope/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "VIEW003", errorCode(t, rec))
}

func TestViewLifecycle(t *testing.T) {
	f := newFixture(t)
	_, msgs, cancel := f.hub.Subscribe(view.FilterTable)
	defer cancel()

	rec := f.json(t, http.MethodPost, "/api/views/"+view.FilterTable+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	desc := decode[view.Descriptor](t, rec)
	assert.Equal(t, view.FilterTable, desc.ID)

	init := <-msgs
	assert.Equal(t, MsgInitialize, init.Type)
	assert.Len(t, init.Rows, 10)

	// Deleting through the API pushes the new projection.
	require.Equal(t, http.StatusNoContent, f.json(t, http.MethodDelete, "/api/employees/1", "").Code)
	replace := <-msgs
	assert.Equal(t, MsgReplaceData, replace.Type)
	assert.Len(t, replace.Rows, 9)

	rec = f.json(t, http.MethodPost, "/api/views/"+view.FilterTable+"/clear-filters", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, MsgClearFilters, (<-msgs).Type)

	rec = f.json(t, http.MethodGet, "/api/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var live []string
	for _, v := range decode[[]viewInfo](t, rec) {
		if v.State == view.Live.String() {
			live = append(live, v.ID)
		}
	}
	assert.Equal(t, []string{view.FilterTable}, live)

	rec = f.json(t, http.MethodPost, "/api/views/"+view.FilterTable+"/deactivate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, MsgDestroy, (<-msgs).Type)

	rec = f.json(t, http.MethodPost, "/api/views/"+view.FilterTable+"/clear-filters", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VIEW002", errorCode(t, rec))
}

func TestViewEventsReachIngress(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ingress.Run(ctx, f.hub.Events()) }()
	defer func() {
		cancel()
		<-done
	}()

	rec := f.json(t, http.MethodPost, "/api/views/"+view.ModalEditTable+"/events", `{"type":"deleteRequested","id":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return f.store.Len() == 9 }, time.Second, 5*time.Millisecond)

	rec = f.json(t, http.MethodPost, "/api/views/"+view.InlineEditTable+"/events", `{"type":"cellEdited","row":{"id":4,"department":"총무"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		e, _ := f.store.Get(4)
		return e.Department == "총무"
	}, time.Second, 5*time.Millisecond)

	rec = f.json(t, http.MethodPost, "/api/views/"+view.InlineEditTable+"/events", `{"type":"shrug"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/views/"+view.PaginationTable+"/stream", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	events := bufio.NewReader(res.Body)
	next := func() string {
		for {
			line, err := events.ReadString('\n')
			require.NoError(t, err)
			if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
				return name
			}
		}
	}
	require.Equal(t, "hello", next())

	require.Eventually(t, func() bool { return f.hub.Subscribers(view.PaginationTable) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.views.ActivateNamed(context.Background(), view.PaginationTable))
	assert.Equal(t, MsgInitialize, next())
}

func TestUnknownStream(t *testing.T) {
	f := newFixture(t)
	rec := f.json(t, http.MethodGet, "/api/views/nope/stream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"), "window reset")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.json(t, http.MethodGet, "/api/employees", "")

	rec := f.json(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `staffgrid_http_requests_total{method="GET",route="/api/employees",status="200"} 1`)
}
