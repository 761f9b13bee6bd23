package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/util"
	"github.com/go-chi/chi/v5"
)

// sessionCreated is returned by POST /sessions.
type sessionCreated struct {
	SessionID string `json:"session_id"`
	Greeting  string `json:"greeting"`
}

func credential(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(CredentialHeader))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Server.decodeJSON: failed to decode JSON", "error", err, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker != nil {
		if err := s.checker(r.Context()); err != nil {
			slog.Error("Server.healthHandler: dependency check failed", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("unhealthy"))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "ok"}))
}

func (s *Server) greetingHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"greeting": s.engine.Greeting()}))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := util.NewSessionID()
	slog.Debug("Server.createSessionHandler: issued session id", "sessionID", id)
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionCreated{SessionID: id, Greeting: s.engine.Greeting()}))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "getSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.ResetSession(r.Context(), id); err != nil {
		writeError(w, "resetSessionHandler", err)
		return
	}
	slog.Info("Server.resetSessionHandler: session reset", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
}

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateSessionID(id); err != nil {
		writeError(w, "turnHandler", err)
		return
	}
	var req models.TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "turnHandler", err)
		return
	}

	res, err := s.engine.ProcessTurn(r.Context(), id, req.Message, credential(r))
	if err != nil {
		writeError(w, "turnHandler", err)
		return
	}
	slog.Debug("Server.turnHandler: turn processed", "sessionID", id, "phase", res.Phase, "enabled", res.Enabled, "hasReply", res.Reply != "")
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) replyHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := models.ValidateSessionID(id); err != nil {
		writeError(w, "replyHandler", err)
		return
	}
	var req models.ReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "replyHandler", err)
		return
	}

	res, err := s.engine.CompleteTurn(r.Context(), id, req.Reply, credential(r))
	if err != nil {
		writeError(w, "replyHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) getHealingModeHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.HealingMode(r.Context())
	if err != nil {
		writeError(w, "getHealingModeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

func (s *Server) setHealingModeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.HealingModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "setHealingModeHandler", err)
		return
	}
	if err := s.engine.SetHealingMode(r.Context(), *req.Enabled); err != nil {
		writeError(w, "setHealingModeHandler", err)
		return
	}
	status, err := s.engine.HealingMode(r.Context())
	if err != nil {
		writeError(w, "setHealingModeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Healing mode updated", status))
}
