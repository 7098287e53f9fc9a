package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/relay"
	"github.com/soyeahso/agentdesk/internal/store"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Version  string                  `json:"version,omitempty"`
	Commit   string                  `json:"commit,omitempty"`
	Clients  int                     `json:"clients,omitempty"`
	UptimeMs int64                   `json:"uptimeMs,omitempty"`
	Agents   int                     `json:"agents,omitempty"`
	Turns    int                     `json:"turns,omitempty"`
	Relays   map[string]relay.Status `json:"relays,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// requireAuth guards HTTP routes with the gateway credentials, passed as
// "Authorization: Bearer <token or password>".
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSONError(w, http.StatusUnauthorized, "credentials required")
			return
		}
		res := Authorize(s.auth, &ConnectAuth{Token: secret, Password: secret})
		if !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			writeJSONError(w, http.StatusUnauthorized, res.Reason)
			return
		}
		next(w, r)
	}
}

// handleDiscussion renders the transcript as an HTML page.
func (s *Server) handleDiscussion(w http.ResponseWriter, _ *http.Request) {
	body, err := s.discussion.RenderHTML()
	if err != nil {
		s.log.Error().Err(err).Msg("rendering discussion")
		writeJSONError(w, http.StatusInternalServerError, "rendering discussion failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>Discussion</title></head><body>\n%s</body></html>\n", body)
}

// handleFileDownload serves a raw file from the agents or workflows directory.
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.filesDir(r.PathValue("kind"))
	if !ok {
		handleNotFound(w, r)
		return
	}
	name := r.PathValue("name")
	data, err := store.ReadFile(dir, name)
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	sendAttachment(w, name, data)
}

// handleAgentExport serves an agent file under its normalized download name.
func (s *Server) handleAgentExport(w http.ResponseWriter, r *http.Request) {
	f, err := s.files.Export(r.PathValue("name"))
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(f.Base64)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendAttachment(w, f.Name, data)
}

func (s *Server) writeFileError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrFileNotFound) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("reading file for download")
	writeJSONError(w, http.StatusInternalServerError, "storage error")
}

func sendAttachment(w http.ResponseWriter, name string, data []byte) {
	ctype := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(name), ".json") {
		ctype = "application/json"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// filesDir maps a files kind to its directory.
func (s *Server) filesDir(kind string) (string, bool) {
	switch kind {
	case "agents":
		return s.files.Dir(), true
	case "workflows":
		return s.workflowsDir, s.workflowsDir != ""
	}
	return "", false
}

// RequestHandler processes an RPC request from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// RespondErr maps a desk or store error to an error response.
func (rc *RequestContext) RespondErr(err error) {
	code := errorCode(err)
	if code == CodeStorageError {
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
	}
	rc.RespondError(code, err.Error())
}

// Params unmarshals the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrFileNotFound):
		return CodeNotFound
	case errors.Is(err, agent.ErrIndexOutOfRange), errors.Is(err, domain.ErrEmptyName), errors.Is(err, domain.ErrInvalidName):
		return CodeInvalidParams
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeUnavailable
	default:
		return CodeStorageError
	}
}
