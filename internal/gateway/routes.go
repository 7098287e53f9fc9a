package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/version"
)

// safeConfigPrefixes lists the config paths config.get and config.set may
// touch. Everything else, credentials included, is denied.
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"llm.provider",
	"llm.fallbacks",
	"llm.maxTokens",
	"llm.temperature",
	"discussion.window",
	"logging",
	"workspace.watch",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// interactTimeout bounds an agents.select or agents.interact call.
const interactTimeout = 5 * time.Minute

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /discussion", s.requireAuth(s.handleDiscussion))
	mux.HandleFunc("GET /files/{kind}/{name}", s.requireAuth(s.handleFileDownload))
	mux.HandleFunc("GET /agents/{name}/export", s.requireAuth(s.handleAgentExport))

	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)

	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("agents.save", s.rpcAgentsSave)
	s.Handle("agents.delete", s.rpcAgentsDelete)
	s.Handle("agents.select", s.rpcAgentsSelect)
	s.Handle("agents.interact", s.rpcAgentsInteract)
	s.Handle("agents.events", s.rpcAgentsEvents)
	s.Handle("context.set", s.rpcContextSet)

	s.Handle("discussion.get", s.rpcDiscussionGet)
	s.Handle("discussion.reset", s.rpcDiscussionReset)
	s.Handle("discussion.search", s.rpcDiscussionSearch)

	s.Handle("files.list", s.rpcFilesList)
	s.Handle("files.export", s.rpcFilesExport)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Commit:   version.Commit,
		Clients:  s.clients.Count(),
		UptimeMs: s.uptime().Milliseconds(),
		Agents:   len(s.desk.Snapshot().Agents),
		Turns:    len(s.discussion.Turns()),
	}
	if s.relays != nil && s.relays.Count() > 0 {
		resp.Relays = s.relays.Statuses()
	}
	rc.Respond(resp)
}

// --- config ---

type configGetParams struct {
	Key string `json:"key"`
}

// resolveConfigKey checks key against the allowlist and splits it. On
// failure it returns the error code and message to respond with.
func resolveConfigKey(key string) (path []string, code, msg string) {
	if key == "" {
		return nil, CodeInvalidParams, "key is required"
	}
	if !isAllowedConfigPath(key) {
		return nil, CodeForbidden, "access denied for config path: " + key
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return nil, CodeInvalidParams, err.Error()
	}
	return path, "", ""
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, code, msg := resolveConfigKey(p.Key)
	if code != "" {
		rc.RespondError(code, msg)
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !found {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, code, msg := resolveConfigKey(p.Key)
	if code != "" {
		rc.RespondError(code, msg)
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	var err error
	if s.configPath != "" {
		err = config.SaveRaw(s.configPath, s.configRaw)
	}
	s.mu.Unlock()
	if err != nil {
		rc.RespondErr(err)
		return
	}

	s.log.Info().Str("key", p.Key).Msg("config value set")
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value, "restartRequired": true})
}

// --- agents ---

func (s *Server) rpcAgentsList(rc *RequestContext) {
	rc.Respond(s.desk.Snapshot())
}

type agentsSaveParams struct {
	Index       *int   `json:"index,omitempty"`
	ExpertName  string `json:"expertName"`
	Description string `json:"description"`
}

func (s *Server) rpcAgentsSave(rc *RequestContext) {
	var p agentsSaveParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	at, err := s.desk.AddOrUpdate(rc.Ctx, p.Index, p.ExpertName, p.Description)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"index": at, "state": s.desk.Snapshot()})
}

type agentIndexParams struct {
	Index *int `json:"index"`
}

func (p agentIndexParams) index() (int, bool) {
	if p.Index == nil {
		return 0, false
	}
	return *p.Index, true
}

func (s *Server) rpcAgentsDelete(rc *RequestContext) {
	var p agentIndexParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	index, ok := p.index()
	if !ok {
		rc.RespondError(CodeInvalidParams, "index is required")
		return
	}
	if err := s.desk.Delete(rc.Ctx, index); err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(s.desk.Snapshot())
}

func (s *Server) rpcAgentsSelect(rc *RequestContext) {
	s.runInteraction(rc, s.desk.Select)
}

func (s *Server) rpcAgentsInteract(rc *RequestContext) {
	s.runInteraction(rc, s.desk.Interact)
}

func (s *Server) runInteraction(rc *RequestContext, run func(context.Context, int) (*agent.InteractResult, error)) {
	var p agentIndexParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	index, ok := p.index()
	if !ok {
		rc.RespondError(CodeInvalidParams, "index is required")
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, interactTimeout)
	defer cancel()

	result, err := run(ctx, index)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	s.broadcastAgents("interacted")
	rc.Respond(map[string]any{"result": result, "state": s.desk.Snapshot()})
}

type limitParams struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) rpcAgentsEvents(rc *RequestContext) {
	if s.events == nil {
		rc.Respond(map[string]any{"events": []domain.AgentEvent{}})
		return
	}
	var p limitParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	events, err := s.events.AgentEvents(rc.Ctx, p.Limit)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"events": events})
}

func (s *Server) rpcContextSet(rc *RequestContext) {
	var p agent.InteractContext
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	s.desk.SetContext(p)
	rc.Respond(s.desk.Snapshot())
}

// --- discussion ---

// DiscussionView is the discussion.get payload.
type DiscussionView struct {
	Text        string        `json:"text"`
	Whiteboard  string        `json:"whiteboard"`
	LastAgent   string        `json:"lastAgent,omitempty"`
	LastComment string        `json:"lastComment,omitempty"`
	Turns       []domain.Turn `json:"turns"`
}

func (s *Server) rpcDiscussionGet(rc *RequestContext) {
	lastAgent, lastComment := s.discussion.Last()
	rc.Respond(DiscussionView{
		Text:        s.discussion.Text(),
		Whiteboard:  s.discussion.Whiteboard(),
		LastAgent:   lastAgent,
		LastComment: lastComment,
		Turns:       s.discussion.Turns(),
	})
}

func (s *Server) rpcDiscussionReset(rc *RequestContext) {
	if err := s.discussion.Reset(rc.Ctx); err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"ok": true})
}

type discussionSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) rpcDiscussionSearch(rc *RequestContext) {
	var p discussionSearchParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if strings.TrimSpace(p.Query) == "" {
		rc.RespondError(CodeInvalidParams, "query is required")
		return
	}
	turns, err := s.discussion.Search(rc.Ctx, p.Query, p.Limit)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	rc.Respond(map[string]any{"turns": turns})
}

// --- files ---

type filesListParams struct {
	Kind string `json:"kind"`
}

func (s *Server) rpcFilesList(rc *RequestContext) {
	var p filesListParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Kind == "" {
		p.Kind = "agents"
	}
	dir, ok := s.filesDir(p.Kind)
	if !ok {
		rc.RespondError(CodeInvalidParams, "kind must be agents or workflows")
		return
	}
	files, err := store.ListExportableFiles(dir)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(map[string]any{"kind": p.Kind, "files": files})
}

type filesExportParams struct {
	ExpertName string `json:"expertName"`
}

func (s *Server) rpcFilesExport(rc *RequestContext) {
	var p filesExportParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ExpertName == "" {
		rc.RespondError(CodeInvalidParams, "expertName is required")
		return
	}
	f, err := s.files.Export(p.ExpertName)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(f)
}
