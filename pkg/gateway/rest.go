package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/workflow"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// stateResponse adds a message in the caller's language to failed states.
type stateResponse struct {
	workflow.State
	Message string `json:"message,omitempty"`
}

func localize(r *http.Request, st workflow.State) stateResponse {
	out := stateResponse{State: st}
	if st.ErrorCode != "" {
		out.Message = apperr.Message(st.ErrorCode, apperr.Lang(r.Header.Get("Accept-Language")))
	}
	return out
}

func channelParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel id is required"})
		return "", false
	}
	return id, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusPayload(r.Context()))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	states := s.deps.Workflows.Snapshot()
	out := make([]stateResponse, 0, len(states))
	for _, st := range states {
		out = append(out, localize(r, st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, localize(r, s.deps.Workflows.State(id)))
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, localize(r, s.deps.Bridge.Initialize(r.Context(), id)))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, localize(r, s.deps.Bridge.Join(r.Context(), id)))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, localize(r, s.deps.Bridge.Preview(r.Context(), id)))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	s.deps.Workflows.Reset(id)
	writeJSON(w, http.StatusOK, localize(r, s.deps.Workflows.State(id)))
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, localize(r, s.deps.Workflows.CheckJoinStatus(r.Context(), id)))
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Bridge.NavigateToChannel(r.Context(), id); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	res := s.deps.Resolver.ResolveChannel(r.Context(), id)
	if !res.Success && res.ErrorCode != "" {
		res.Error = apperr.Message(res.ErrorCode, apperr.Lang(r.Header.Get("Accept-Language")))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := channelParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Resolver.CheckPermission(r.Context(), id))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bridge.OpenSettings(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": s.deps.Bridge.Logout(r.Context())})
}

func (s *Server) handleBotInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.deps.Resolver.BotInfo(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot credential not configured"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSetBotToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if !s.deps.Tokens.SetBotToken(r.Context(), strings.TrimSpace(body.Token)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": true})
}

func (s *Server) handleClearBotToken(w http.ResponseWriter, r *http.Request) {
	s.deps.Tokens.ClearBotToken(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"configured": false})
}
