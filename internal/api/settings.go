package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/llm"
	"github.com/bull/znatok/internal/settings"
)

const providerTestTimeout = 60 * time.Second

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settings.MaskSecrets(s.deps.Settings.Get()))
}

// handleSaveSettings replaces the whole settings document. Masked secrets
// keep their stored values.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := decodeJSON(w, r, &next); err != nil {
		s.writeError(w, r, err)
		return
	}

	merged := settings.MergeMasked(s.deps.Settings.Get(), next)
	if err := s.deps.Settings.Replace(merged); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Settings saved", zap.String("provider", merged.CurrentProvider))
	writeJSON(w, http.StatusOK, settings.MaskSecrets(s.deps.Settings.Get()))
}

type testProviderRequest struct {
	Provider string                   `json:"provider"`
	Config   *settings.ProviderConfig `json:"config,omitempty"`
}

type testProviderResponse struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Message  string `json:"message,omitempty"`
}

// handleTestProvider sends a short prompt with the given or stored provider
// configuration.
func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var req testProviderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := req.Provider
	if kind == "" {
		kind = s.deps.Settings.Get().CurrentProvider
	}

	stored := s.deps.Settings.Get().Providers[kind]
	cfg := stored
	if req.Config != nil {
		cfg = *req.Config
		if cfg.APIKey == settings.Mask {
			cfg.APIKey = stored.APIKey
		}
	}
	cfg.Provider = kind

	ctx, cancel := context.WithTimeout(r.Context(), providerTestTimeout)
	defer cancel()

	reply, err := s.deps.TestProvider(ctx, kind, cfg)
	if err != nil {
		s.logger.Warn("Provider test failed", zap.String("provider", kind), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, llm.ErrUnknownProvider) || errors.Is(err, llm.ErrProviderNotConfigured) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, testProviderResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, testProviderResponse{Status: "ok", Response: reply})
}

type integrationsResponse struct {
	Status          string `json:"status"`
	TelegramRunning bool   `json:"telegram_running"`
}

// handleIntegrations saves the integrations block and brings the Telegram
// bot in line with it.
func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	var in settings.Integrations
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	current := s.deps.Settings.Get()
	next := current.Clone()
	next.Integrations = in
	merged := settings.MergeMasked(current, next)
	if err := s.deps.Settings.Replace(merged); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.applyTelegram(merged.Integrations.Telegram)
	running := s.deps.Bots != nil && s.deps.Bots.Running()
	writeJSON(w, http.StatusOK, integrationsResponse{Status: "ok", TelegramRunning: running})
}

// applyTelegram restarts the bot when it is enabled with a token and stops it
// otherwise.
func (s *Server) applyTelegram(cfg settings.TelegramConfig) {
	if s.deps.Bots == nil || s.deps.NewTelegram == nil {
		return
	}
	if cfg.Enabled && cfg.BotToken != "" {
		s.logger.Info("Restarting telegram bot")
		s.deps.Bots.Restart(s.deps.NewTelegram(cfg.BotToken))
		return
	}
	s.logger.Info("Stopping telegram bot")
	s.deps.Bots.Stop()
}
