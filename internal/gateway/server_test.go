package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/discussion"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/relay"
	"github.com/soyeahso/agentdesk/internal/store"
)

const (
	testToken = "test-token-123"
	testWait  = 2 * time.Second
	testTick  = 10 * time.Millisecond
)

func waitTimeout() <-chan time.Time { return time.After(5 * time.Second) }

type completerFunc func(ctx context.Context, expertName, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, expertName, prompt string) (string, error) {
	return f(ctx, expertName, prompt)
}

type fixture struct {
	srv       *Server
	ts        *httptest.Server
	desk      *agent.Desk
	disc      *discussion.Discussion
	files     *store.AgentFiles
	workflows string

	mu      sync.Mutex
	prompts []string
}

func newFixture(t *testing.T, reply string, replyErr error, opts ...ServerOption) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthModeToken, Token: testToken}

	root := t.TempDir()
	log := logging.Nop()
	hk := hooks.NewManager(log)

	f := &fixture{workflows: filepath.Join(root, "workflows")}
	f.files = store.NewAgentFiles(filepath.Join(root, "agents"), log)
	f.disc = discussion.New(store.NewMemoryTurnStore(), hk, log)
	c := completerFunc(func(_ context.Context, _ string, prompt string) (string, error) {
		f.mu.Lock()
		f.prompts = append(f.prompts, prompt)
		f.mu.Unlock()
		return reply, replyErr
	})
	in := agent.NewInteractor(c, f.disc, f.disc, 0, hk, log)
	f.desk = agent.NewDesk(f.files, in, hk, log)

	raw := map[string]any{
		"gateway": map[string]any{"port": 18790, "auth": map[string]any{"token": testToken}},
		"logging": map[string]any{"level": "info"},
	}
	opts = append([]ServerOption{
		WithHooks(hk),
		WithWorkflowsDir(f.workflows),
		WithConfigRaw(raw, ""),
	}, opts...)
	f.srv = New(cfg, f.desk, f.disc, f.files, log, opts...)
	f.ts = httptest.NewServer(f.srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
}

// connect dials and completes the handshake.
func (f *fixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, EventConnectChallenge, challenge.Event)

	req, err := NewRequest("connect-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0"},
		Auth:        &ConnectAuth{Token: testToken},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake rejected: %+v", hello.Error)
	return conn
}

// call sends a request and reads frames until its response arrives. Events
// received on the way are returned in order.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var events []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent {
			events = append(events, f)
			continue
		}
		require.Equal(t, id, f.ID)
		return f, events
	}
}

func okPayload(t *testing.T, f Frame, target any) {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error: %+v", f.Error)
	require.NoError(t, json.Unmarshal(f.Payload, target))
}

func errCode(t *testing.T, f Frame) string {
	t.Helper()
	require.NotNil(t, f.OK)
	require.False(t, *f.OK)
	require.NotNil(t, f.Error)
	return f.Error.Code
}

func eventNames(events []Frame) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
	}
	return names
}

func ptr(i int) *int { return &i }

// --- HTTP ---

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNotFoundEndpoint(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, err := http.Get(f.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func authGet(t *testing.T, url, secret string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPRoutes_RequireAuth(t *testing.T) {
	f := newFixture(t, "", nil)

	for _, path := range []string{"/discussion", "/files/agents/x.json", "/agents/x/export"} {
		assert.Equal(t, http.StatusUnauthorized, authGet(t, f.ts.URL+path, "").StatusCode, path)
		assert.Equal(t, http.StatusUnauthorized, authGet(t, f.ts.URL+path, "wrong").StatusCode, path)
	}
}

func TestAgentExportEndpoint(t *testing.T) {
	f := newFixture(t, "", nil)
	require.NoError(t, f.files.Write("data_scientist", "analyzes datasets"))

	resp := authGet(t, f.ts.URL+"/agents/Data%20Scientist!/export", testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="data_scientist.json"`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var rec map[string]string
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "analyzes datasets", rec["description"])
}

func TestAgentExportEndpoint_NotFound(t *testing.T) {
	f := newFixture(t, "", nil)

	resp := authGet(t, f.ts.URL+"/agents/Nobody/export", testToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body["error"], "file not found: "))
	assert.True(t, strings.HasSuffix(body["error"], "nobody.json"))
}

func TestFileDownloadEndpoint(t *testing.T) {
	f := newFixture(t, "", nil)
	require.NoError(t, os.MkdirAll(f.workflows, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.workflows, "review.yaml"), []byte("steps: []\n"), 0o644))

	resp := authGet(t, f.ts.URL+"/files/workflows/review.yaml", testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "steps: []\n", string(body))

	assert.Equal(t, http.StatusNotFound, authGet(t, f.ts.URL+"/files/workflows/missing.yaml", testToken).StatusCode)
	assert.Equal(t, http.StatusNotFound, authGet(t, f.ts.URL+"/files/secrets/review.yaml", testToken).StatusCode)
}

func TestDiscussionEndpoint(t *testing.T) {
	f := newFixture(t, "", nil)
	require.NoError(t, f.disc.Append(context.Background(), "Editor", "Looks **good**.", "check tone"))

	resp := authGet(t, f.ts.URL+"/discussion", testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<h3>Editor</h3>")
	assert.Contains(t, string(body), "<strong>good</strong>")
	assert.Contains(t, string(body), "check tone")
}

// --- handshake ---

func TestWebSocketHandshakeSuccess(t *testing.T) {
	f := newFixture(t, "", nil)
	f.connect(t)
	assert.Eventually(t, func() bool { return f.srv.Clients() == 1 }, testWait, testTick)
}

func TestWebSocketHandshakeHello(t *testing.T) {
	f := newFixture(t, "", nil)
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)

	req, _ := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0"},
		Auth:        &ConnectAuth{Token: testToken},
	})
	require.NoError(t, conn.WriteJSON(req))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	var hello HelloOK
	okPayload(t, helloResp, &hello)
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "agents.save")
	assert.Contains(t, hello.Features.Events, EventDiscussionAppended)
	assert.Equal(t, maxPayloadBytes, hello.Policy.MaxPayload)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	f := newFixture(t, "", nil)
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "connect", ConnectParams{
		Client: ClientInfo{ID: "test-client"},
		Auth:   &ConnectAuth{Token: "wrong-token"},
	})
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, CodeUnauthorized, errCode(t, errResp))
}

func TestWebSocketHandshakeNotConnect(t *testing.T) {
	f := newFixture(t, "", nil)
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, CodeProtocolError, errCode(t, errResp))
}

// --- RPC ---

func TestRPCHealth(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, _ := call(t, conn, "h-1", "health", nil)
	var health HealthResponse
	okPayload(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 1, health.Clients)
}

func TestRPCHealth_Relays(t *testing.T) {
	relays := relay.NewManagerFromConfig(config.RelayConfig{
		IRC: &config.IRCConfig{Server: "irc.test", Nick: "deskbot", Channels: []string{"#experts", "#log"}},
	}, hooks.NewManager(logging.Nop()), logging.Nop())
	f := newFixture(t, "", nil, WithRelays(relays))
	conn := f.connect(t)

	resp, _ := call(t, conn, "h-1", "health", nil)
	var health HealthResponse
	okPayload(t, resp, &health)
	require.Contains(t, health.Relays, "irc")
	assert.Equal(t, relay.Status{Channels: 2}, health.Relays["irc"])
}

func TestRPCAgentsEvents(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, _ := call(t, conn, "ev-1", "agents.events", nil)
	var empty struct {
		Events []domain.AgentEvent `json:"events"`
	}
	okPayload(t, resp, &empty)
	assert.Empty(t, empty.Events)

	db, err := store.Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.RecordAgentEvent(ctx, store.EventAgentSaved, "Editor"))
	require.NoError(t, db.RecordAgentEvent(ctx, store.EventAgentDeleted, "Editor"))

	f = newFixture(t, "", nil, WithEventLog(db))
	conn = f.connect(t)

	resp, _ = call(t, conn, "ev-2", "agents.events", map[string]any{"limit": 1})
	var got struct {
		Events []domain.AgentEvent `json:"events"`
	}
	okPayload(t, resp, &got)
	require.Len(t, got.Events, 1)
	assert.Equal(t, store.EventAgentDeleted, got.Events[0].Kind)
	assert.Equal(t, "Editor", got.Events[0].ExpertName)
}

func TestRPCUnknownMethod(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, _ := call(t, conn, "u-1", "chat.send", nil)
	assert.Equal(t, CodeMethodNotFound, errCode(t, resp))
}

func TestRPCAgentsSaveAndList(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, events := call(t, conn, "s-1", "agents.save", agentsSaveParams{
		ExpertName:  "Data Scientist",
		Description: "analyzes datasets",
	})
	var saved struct {
		Index int         `json:"index"`
		State agent.State `json:"state"`
	}
	okPayload(t, resp, &saved)
	assert.Equal(t, 0, saved.Index)
	require.Len(t, saved.State.Agents, 1)
	assert.Equal(t, []string{EventAgentsChanged}, eventNames(events))
	assert.FileExists(t, filepath.Join(f.files.Dir(), "Data Scientist.json"))

	resp, _ = call(t, conn, "s-2", "agents.save", agentsSaveParams{
		Index:       ptr(0),
		ExpertName:  "Data Scientist",
		Description: "cleans datasets",
	})
	okPayload(t, resp, &saved)

	resp, _ = call(t, conn, "l-1", "agents.list", nil)
	var state agent.State
	okPayload(t, resp, &state)
	require.Len(t, state.Agents, 1)
	assert.Equal(t, "cleans datasets", state.Agents[0].Description)
	assert.Equal(t, agent.NoSelection, state.SelectedIndex)
}

func TestRPCAgentsSave_Errors(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, _ := call(t, conn, "s-1", "agents.save", agentsSaveParams{Description: "nameless"})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))

	resp, _ = call(t, conn, "s-2", "agents.save", agentsSaveParams{Index: ptr(3), ExpertName: "Ghost"})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))

	resp, _ = call(t, conn, "s-3", "agents.save", agentsSaveParams{ExpertName: "../../outside", Description: "x"})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))
}

func TestRPCAgentsDelete(t *testing.T) {
	f := newFixture(t, "", nil)
	_, err := f.desk.AddOrUpdate(context.Background(), nil, "Editor", "edits")
	require.NoError(t, err)
	conn := f.connect(t)

	resp, events := call(t, conn, "d-1", "agents.delete", agentIndexParams{Index: ptr(5)})
	var state agent.State
	okPayload(t, resp, &state)
	assert.Len(t, state.Agents, 1)
	assert.Empty(t, events)

	resp, events = call(t, conn, "d-2", "agents.delete", agentIndexParams{Index: ptr(0)})
	okPayload(t, resp, &state)
	assert.Empty(t, state.Agents)
	assert.Equal(t, []string{EventAgentsChanged}, eventNames(events))
	assert.NoFileExists(t, filepath.Join(f.files.Dir(), "Editor.json"))

	resp, _ = call(t, conn, "d-3", "agents.delete", nil)
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))
}

func TestRPCAgentsSelect(t *testing.T) {
	f := newFixture(t, "Three outliers in column B.", nil)
	_, err := f.desk.AddOrUpdate(context.Background(), nil, "Data Scientist", "analyzes datasets")
	require.NoError(t, err)
	conn := f.connect(t)

	resp, _ := call(t, conn, "c-1", "context.set", agent.InteractContext{UserInput: "look at outliers"})
	var state agent.State
	okPayload(t, resp, &state)
	assert.Equal(t, "look at outliers", state.UserInput)

	resp, events := call(t, conn, "sel-1", "agents.select", agentIndexParams{Index: ptr(0)})
	var out struct {
		Result agent.InteractResult `json:"result"`
		State  agent.State          `json:"state"`
	}
	okPayload(t, resp, &out)

	assert.True(t, out.Result.Appended)
	assert.Equal(t, "Three outliers in column B.", out.Result.Response)
	assert.Equal(t, 0, out.State.SelectedIndex)
	assert.Equal(t, "Data Scientist", out.State.FormName)
	assert.Equal(t,
		[]string{EventAgentsChanged, EventDiscussionAppended, EventAgentsChanged},
		eventNames(events))

	f.mu.Lock()
	require.Len(t, f.prompts, 1)
	assert.Equal(t, "Act as the Data Scientist who analyzes datasets. Additional input: look at outliers.", f.prompts[0])
	f.mu.Unlock()

	resp, _ = call(t, conn, "g-1", "discussion.get", nil)
	var view DiscussionView
	okPayload(t, resp, &view)
	assert.Equal(t, "\n\n\n\nlook at outliers\n\nData Scientist:\n\n    Three outliers in column B.\n\n===\n\n", view.Text)
	assert.Equal(t, "Data Scientist", view.LastAgent)
	require.Len(t, view.Turns, 1)
}

func TestRPCAgentsInteract_ProviderError(t *testing.T) {
	f := newFixture(t, "", errors.New("groq: 503 unavailable"))
	_, err := f.desk.AddOrUpdate(context.Background(), nil, "Editor", "edits prose")
	require.NoError(t, err)
	conn := f.connect(t)

	resp, events := call(t, conn, "i-1", "agents.interact", agentIndexParams{Index: ptr(0)})
	var out struct {
		Result agent.InteractResult `json:"result"`
		State  agent.State          `json:"state"`
	}
	okPayload(t, resp, &out)
	assert.False(t, out.Result.Appended)
	assert.Contains(t, out.Result.Error, "503")
	assert.Equal(t, 0, out.State.SelectedIndex)
	assert.NotContains(t, eventNames(events), EventDiscussionAppended)
	assert.Empty(t, f.disc.Text())

	resp, _ = call(t, conn, "i-2", "agents.interact", agentIndexParams{Index: ptr(4)})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))
}

func TestRPCDiscussionSearchAndReset(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()
	require.NoError(t, f.disc.Append(ctx, "Editor", "Tighten the intro.", ""))
	require.NoError(t, f.disc.Append(ctx, "Statistician", "The sample is too small.", ""))
	conn := f.connect(t)

	resp, _ := call(t, conn, "q-1", "discussion.search", discussionSearchParams{Query: "sample"})
	var found struct {
		Turns []struct {
			ExpertName string `json:"expertName"`
		} `json:"turns"`
	}
	okPayload(t, resp, &found)
	require.Len(t, found.Turns, 1)
	assert.Equal(t, "Statistician", found.Turns[0].ExpertName)

	resp, _ = call(t, conn, "q-2", "discussion.search", discussionSearchParams{})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))

	resp, events := call(t, conn, "r-1", "discussion.reset", nil)
	var ok map[string]bool
	okPayload(t, resp, &ok)
	assert.True(t, ok["ok"])
	assert.Equal(t, []string{EventDiscussionReset}, eventNames(events))
	assert.Empty(t, f.disc.Text())
}

func TestRPCFilesListAndExport(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)
	require.NoError(t, f.files.Write("writer", "writes"))

	resp, _ := call(t, conn, "f-1", "files.list", filesListParams{Kind: "agents"})
	var listed struct {
		Kind  string             `json:"kind"`
		Files []store.ExportFile `json:"files"`
	}
	okPayload(t, resp, &listed)
	require.Len(t, listed.Files, 1)
	assert.Equal(t, "writer.json", listed.Files[0].Name)
	assert.True(t, strings.HasPrefix(listed.Files[0].DataURL, "data:application/json;base64,"))

	resp, _ = call(t, conn, "f-2", "files.list", filesListParams{Kind: "workflows"})
	okPayload(t, resp, &listed)
	assert.Empty(t, listed.Files)

	resp, _ = call(t, conn, "f-3", "files.list", filesListParams{Kind: "etc"})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))

	resp, _ = call(t, conn, "e-1", "files.export", filesExportParams{ExpertName: "Writer"})
	var exported store.ExportFile
	okPayload(t, resp, &exported)
	assert.Equal(t, "writer.json", exported.Name)
	raw, err := base64.StdEncoding.DecodeString(exported.Base64)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"expertName": "writer"`)

	resp, _ = call(t, conn, "e-2", "files.export", filesExportParams{ExpertName: "Missing One"})
	assert.Equal(t, CodeNotFound, errCode(t, resp))
	assert.Contains(t, resp.Error.Message, "missing_one.json")
}

func TestRPCConfigGetSet(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)

	resp, _ := call(t, conn, "cg-1", "config.get", configGetParams{Key: "gateway.port"})
	var got map[string]any
	okPayload(t, resp, &got)
	assert.Equal(t, float64(18790), got["value"])

	resp, _ = call(t, conn, "cs-1", "config.set", configSetParams{Key: "logging.level", Value: "debug"})
	okPayload(t, resp, &got)
	resp, _ = call(t, conn, "cg-2", "config.get", configGetParams{Key: "logging.level"})
	okPayload(t, resp, &got)
	assert.Equal(t, "debug", got["value"])

	resp, _ = call(t, conn, "cg-3", "config.get", configGetParams{Key: "gateway.auth.token"})
	assert.Equal(t, CodeForbidden, errCode(t, resp))
	resp, _ = call(t, conn, "cs-2", "config.set", configSetParams{Key: "llm.providers.groq.apiKey", Value: "x"})
	assert.Equal(t, CodeForbidden, errCode(t, resp))
	resp, _ = call(t, conn, "cg-4", "config.get", configGetParams{})
	assert.Equal(t, CodeInvalidParams, errCode(t, resp))
	resp, _ = call(t, conn, "cg-5", "config.get", configGetParams{Key: "discussion.window"})
	assert.Equal(t, CodeNotFound, errCode(t, resp))
}

func TestBroadcastReachesOtherClients(t *testing.T) {
	f := newFixture(t, "", nil)
	actor := f.connect(t)
	watcher := f.connect(t)
	require.Eventually(t, func() bool { return f.srv.Clients() == 2 }, testWait, testTick)

	resp, _ := call(t, actor, "s-1", "agents.save", agentsSaveParams{ExpertName: "Editor", Description: "edits"})
	var saved map[string]any
	okPayload(t, resp, &saved)

	var evt Frame
	require.NoError(t, watcher.ReadJSON(&evt))
	assert.Equal(t, EventAgentsChanged, evt.Event)
	var payload struct {
		Reason string      `json:"reason"`
		State  agent.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, hooks.EventAgentSaved, payload.Reason)
	assert.Len(t, payload.State.Agents, 1)
	assert.Positive(t, evt.Seq)
}

func TestNotifyFilesChanged(t *testing.T) {
	f := newFixture(t, "", nil)
	conn := f.connect(t)
	require.Eventually(t, func() bool { return f.srv.Clients() == 1 }, testWait, testTick)

	f.srv.NotifyFilesChanged(f.workflows)

	var evt Frame
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, EventFilesChanged, evt.Event)
	assert.JSONEq(t, `{"kind":"workflows"}`, string(evt.Payload))
}

func TestServerMethods(t *testing.T) {
	f := newFixture(t, "", nil)
	assert.Equal(t, []string{
		"agents.delete", "agents.events", "agents.interact", "agents.list", "agents.save", "agents.select",
		"config.get", "config.set", "context.set",
		"discussion.get", "discussion.reset", "discussion.search",
		"files.export", "files.list", "health",
	}, f.srv.Methods())
}

func TestServerStart_EmitsLifecycleHooks(t *testing.T) {
	f := newFixture(t, "", nil)
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	hk := hooks.NewManager(logging.Nop())
	started := make(chan string, 1)
	stopped := make(chan struct{}, 1)
	hk.On(hooks.EventGatewayStart, "test", func(_ context.Context, p hooks.Payload) error {
		started <- p.Str("addr")
		return nil
	})
	hk.On(hooks.EventGatewayStop, "test", func(context.Context, hooks.Payload) error {
		stopped <- struct{}{}
		return nil
	})
	srv := New(cfg, f.desk, f.disc, f.files, logging.Nop(), WithHooks(hk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case addr := <-started:
		assert.NotEmpty(t, addr)
	case <-waitTimeout():
		t.Fatal("gateway_start not emitted")
	}

	cancel()
	select {
	case <-stopped:
	case <-waitTimeout():
		t.Fatal("gateway_stop not emitted")
	}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-waitTimeout():
		t.Fatal("server did not stop")
	}
}

func TestStartRequiresDesk(t *testing.T) {
	srv := New(config.Defaults(), nil, nil, nil, logging.Nop())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrNotReady)
}

func TestServerStart(t *testing.T) {
	f := newFixture(t, "", nil)
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	srv := New(cfg, f.desk, f.disc, f.files, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-waitTimeout():
		t.Fatal("server did not stop")
	}
}
