package enginebridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/config"
	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/engines/web"
	"github.com/hupe1980/enginebridge/internal/testutil"
	"github.com/hupe1980/enginebridge/runner"
	"github.com/hupe1980/enginebridge/session"
	"github.com/hupe1980/enginebridge/workflow"
)

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "sess-123", Path: "/"})
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != "sess-123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<html><body><ul><li class="order">A-1</li><li class="order">A-2</li></ul></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newWebHandle(t *testing.T, name, base string) *web.Handle {
	t.Helper()
	h, err := web.New(func(o *web.Options) {
		o.Name = name
		o.BaseURL = base
	})
	require.NoError(t, err)
	return h
}

func login(ctx context.Context, handle core.EngineHandle) (any, error) {
	h := handle.(*web.Handle)
	_, err := h.PostForm(ctx, "/login", url.Values{"user": {"alice"}})
	return nil, err
}

func countOrders(ctx context.Context, handle core.EngineHandle) (any, error) {
	h := handle.(*web.Handle)
	page, err := h.Get(ctx, "/orders")
	if err != nil {
		return nil, err
	}
	return page.Doc.Find(".order").Length(), nil
}

func TestNew_Defaults(t *testing.T) {
	b := New()
	assert.NotNil(t, b.Executor())
	assert.NotNil(t, b.RunStore())
	assert.NoError(t, b.Close())
}

func TestBridge_CrossEngineSessionTransfer(t *testing.T) {
	srv := newShop(t)
	ctx := context.Background()

	b := New(func(o *Options) {
		o.Gateway = session.NewGateway()
		o.Timer = &testutil.RecordingTimer{}
	})

	wf := b.DefineWorkflow("orders", "login then read orders", nil)
	wf.MustAddStep("Login", core.EngineBrowser, login, workflow.ProducesSession(), workflow.WithoutSession())
	wf.MustAddStep("Orders", core.EngineWeb, countOrders)
	wf.MustAddStep("OrdersAsync", core.EngineWebAsync, countOrders)

	handles := core.Handles{
		core.EngineBrowser:  newWebHandle(t, "login", srv.URL),
		core.EngineWeb:      newWebHandle(t, "web", srv.URL),
		core.EngineWebAsync: newWebHandle(t, "web_async", srv.URL),
	}

	ok, err := b.ExecuteSync(ctx, wf, handles)
	require.NoError(t, err)
	assert.True(t, ok)

	status := b.Status(wf)
	assert.Equal(t, 3, status.Completed)
	assert.Equal(t, 2, wf.Steps()[1].Result())
	assert.Equal(t, 2, wf.Steps()[2].Result())

	state, isState := wf.SessionData().(*session.State)
	require.True(t, isState)
	assert.Equal(t, "login", state.Source)

	details := b.StepDetails(wf)
	require.Len(t, details, 3)
	assert.Equal(t, "Login", details[0].Name)
	assert.NotNil(t, details[0].Duration)

	history, err := b.History(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	require.NoError(t, b.Reset(wf))
	assert.Nil(t, wf.SessionData())
	assert.Equal(t, 0, b.Status(wf).Completed)
}

func TestBridge_WithoutSessionBusinessStepFails(t *testing.T) {
	srv := newShop(t)

	b := New(func(o *Options) { o.Timer = &testutil.RecordingTimer{} })
	wf := b.DefineWorkflow("orders", "", nil)
	wf.MustAddStep("Orders", core.EngineWeb, countOrders)

	ok, err := b.ExecuteSync(context.Background(), wf, core.Handles{core.EngineWeb: newWebHandle(t, "web", srv.URL)})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, wf.Steps()[0].ErrorMessage(), "403")
}

func TestBridge_ExecuteAsyncWait(t *testing.T) {
	b := New(func(o *Options) { o.Timer = &testutil.RecordingTimer{} })
	wf := b.DefineWorkflow("async", "", nil)
	wf.MustAddStep("A", core.EngineWebAsync, testutil.NewScript("A").Succeed(1).Action())

	ok, events, err := b.ExecuteAsyncWait(context.Background(), wf, testutil.Handles(core.EngineWebAsync))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, events)

	assert.Error(t, b.StopRun("missing"))
}

const definition = `
name: orders
steps:
  - name: Login
    engine: browser
    action: login
    produces_session: true
    requires_session: false
  - name: Orders
    engine: web
    action: orders
    retry_count: 1
`

func TestBridge_LoadWorkflow(t *testing.T) {
	b := New()
	b.RegisterAction("login", testutil.NewScript("login").Succeed(nil).Action())
	b.RegisterAction("orders", testutil.NewScript("orders").Succeed(2).Action())

	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o600))

	wf, err := b.LoadWorkflow(path)
	require.NoError(t, err)
	require.Equal(t, 2, wf.Len())
	assert.Equal(t, 1, wf.Steps()[1].RetryCount())

	wf, err = b.ReadWorkflow(strings.NewReader(definition))
	require.NoError(t, err)
	assert.Equal(t, "orders", wf.Name)

	_, err = New().ReadWorkflow(strings.NewReader(definition))
	require.ErrorIs(t, err, workflow.ErrUnknownAction)
}

func TestBridge_ExecuteAll(t *testing.T) {
	b := New(func(o *Options) { o.Timer = &testutil.RecordingTimer{} })

	var jobs []runner.Job
	for i := range 3 {
		wf := b.DefineWorkflow(fmt.Sprintf("wf-%d", i), "", nil)
		wf.MustAddStep("A", core.EngineWeb, testutil.NewScript("A").Succeed(i).Action())
		jobs = append(jobs, runner.Job{Workflow: wf, Handles: testutil.Handles(core.EngineWeb)})
	}

	results, err := b.ExecuteAll(context.Background(), jobs...)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
log: {level: error}
backoff: {strategy: constant, initial: 1ms}
store: {driver: sqlite, path: %q}
`, filepath.Join(t.TempDir(), "runs.db"))))
	require.NoError(t, err)

	b, err := NewFromConfig(cfg, func(o *Options) { o.Timer = &testutil.RecordingTimer{} })
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	wf := b.DefineWorkflow("cfg", "", nil)
	wf.MustAddStep("A", core.EngineWeb, testutil.NewScript("A").Fail(errors.New("down")).Succeed("ok").Action(),
		workflow.WithRetries(1))

	ok, err := b.ExecuteSync(context.Background(), wf, testutil.Handles(core.EngineWeb))
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := b.History(context.Background(), "cfg", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].Steps[0].Attempts)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "mongo"
	_, err := NewFromConfig(cfg)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestBridge_RenderWorkflow(t *testing.T) {
	b := New()
	b.RegisterAction("login", testutil.NewScript("login").Action())

	wf, err := b.RenderWorkflow([]byte("name: {{ .name }}\nsteps:\n  - name: Login\n    engine: browser\n    action: login\n"),
		map[string]any{"name": "rendered"})
	require.NoError(t, err)
	assert.Equal(t, "rendered", wf.Name)
}
