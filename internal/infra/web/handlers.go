package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/infra/logging"
)

type providerView struct {
	model.ProviderDescriptor
	Availability *model.Availability `json:"availability,omitempty"`
	Progress     *model.Progress     `json:"progress,omitempty"`
	Catalog      []model.ModelSpec   `json:"catalog,omitempty"`
}

func viewOf(p provider.ModelProvider) providerView {
	v := providerView{ProviderDescriptor: p.Descriptor(), Progress: p.Progress()}
	if sw, ok := p.(provider.ModelSwitcher); ok {
		v.Catalog = sw.Catalog()
	}
	return v
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "auth disabled", http.StatusNotFound)
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.adminKey)) != 1 {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint()
	if err != nil {
		http.Error(w, "Failed to mint token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.reg.List()
	out := make([]providerView, 0, len(providers))
	for _, p := range providers {
		out = append(out, viewOf(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	detections := s.reg.Detect(r.Context())
	out := make([]providerView, 0, len(detections))
	for _, d := range detections {
		v := viewOf(d.Provider)
		av := d.Availability
		v.Availability = &av
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAutoSelect(w http.ResponseWriter, r *http.Request) {
	p, err := s.reg.AutoSelect(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": p.Descriptor().Name})
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	p := s.reg.Active()
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": viewOf(p)})
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.reg.SetActive(r.Context(), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": req.Name})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg model.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sess, err := s.chat.CreateSession(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DestroySession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloneSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.CloneSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handlePrompt streams the reply as server-sent events: one
// data: {"delta":...} event per text fragment, then a [DONE] sentinel. A
// terminal failure is reported as a data: {"error":...,"cancelled":...}
// event so the client can distinguish "cancelled" from "failed".
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sessionID := chi.URLParam(r, "id")
	if s.limiter != nil {
		allowed, lerr := s.limiter.Allow(r.Context(), sessionID)
		if lerr != nil {
			// Fail open: a broken limiter store must not take chat down.
			logging.With(r.Context(), s.log).Warn().Err(lerr).Msg("prompt limiter check failed")
		} else if !allowed {
			http.Error(w, "Too many prompts", http.StatusTooManyRequests)
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, err := s.chat.StreamPrompt(r.Context(), sessionID, req.Text, func(delta string) error {
		b, merr := json.Marshal(map[string]string{"delta": delta})
		if merr != nil {
			return merr
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", b); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Str("session_id", sessionID).Msg("prompt stream ended with error")
		b, _ := json.Marshal(map[string]any{
			"error":     err.Error(),
			"cancelled": errors.Is(err, domain.ErrCancelled),
		})
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.ResetApplication(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrProviderNotFound), errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrNoActiveProvider):
		status = http.StatusConflict
	case domain.IsConfigError(err), errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotInitialized):
		status = http.StatusConflict
	}
	logging.With(r.Context(), s.log).Debug().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}
