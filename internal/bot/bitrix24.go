package bot

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/settings"
	"github.com/bull/znatok/internal/storage"
)

const (
	bitrixSignatureHeader = "X-Bitrix24-Signature"
	maxWebhookBody        = 1 << 20

	bitrixHelp = "🤖 *Znatok AI Assistant*\n\n" +
		"Я помогу вам найти информацию в корпоративных документах.\n\n" +
		"*Как использовать:*\nПросто напишите ваш вопрос, и я найду ответ в документах компании!\n\n" +
		"*Примеры вопросов:*\n• Какая политика удаленной работы?\n• Как оформить отпуск?\n• Правила ИТ безопасности\n• Документы для onboarding\n\n" +
		"*Особенности:*\n• Ищу информацию только в загруженных документах\n• Если информации нет - честно скажу об этом\n• Ответы основаны на актуальных данных компании\n\n" +
		"Начните с любого вопроса! 🚀"
	bitrixWelcome = "🤖 *Добро пожаловать в Znatok AI Assistant!*\n\n" +
		"Задайте вопрос о корпоративных документах, и я найду нужную информацию.\n\n" +
		"Напишите /help для справки или сразу задайте вопрос!"
	bitrixUnknownCommand = "Неизвестная команда. Используйте /help для справки."
	bitrixFailed         = "❌ Произошла ошибка при обработке запроса. Попробуйте позже."
	bitrixEmptyQuestion  = "Пожалуйста, задайте вопрос."
)

// SettingsSource supplies the current integration settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Bitrix24Webhook answers Bitrix24 chat-bot events.
type Bitrix24Webhook struct {
	settings SettingsSource
	asker    Asker
	logger   *zap.Logger
}

func NewBitrix24Webhook(src SettingsSource, asker Asker, logger *zap.Logger) *Bitrix24Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bitrix24Webhook{
		settings: src,
		asker:    asker,
		logger:   logger.With(zap.String("component", "bitrix24-bot")),
	}
}

type bitrixEvent struct {
	Event string        `json:"event"`
	Data  bitrixPayload `json:"data"`
}

type bitrixPayload struct {
	Message  string   `json:"message"`
	Command  string   `json:"command"`
	DialogID flexible `json:"dialog_id"`
	UserID   flexible `json:"user_id"`
}

// flexible accepts a JSON string or number.
type flexible string

func (f *flexible) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexible(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexible(n.String())
	return nil
}

func (h *Bitrix24Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.settings.Get().Integrations.Bitrix24
	if !cfg.Enabled {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Bitrix24 integration is disabled"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid body"})
		return
	}

	if sig := r.Header.Get(bitrixSignatureHeader); cfg.VerifyWebhook && sig != "" {
		if !VerifySignature(body, sig, cfg.ClientSecret) {
			h.logger.Warn("Bitrix24 webhook signature mismatch")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	ev, err := parseEvent(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	switch ev.Event {
	case "ONIMBOTMESSAGEADD":
		writeJSON(w, http.StatusOK, h.handleMessage(r, ev.Data))
	case "ONIMCOMMANDADD":
		writeJSON(w, http.StatusOK, handleCommand(ev.Data))
	default:
		h.logger.Warn("Unknown bitrix24 event", zap.String("event", ev.Event))
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	}
}

func (h *Bitrix24Webhook) handleMessage(r *http.Request, d bitrixPayload) map[string]string {
	message := strings.TrimSpace(d.Message)
	if message == "" {
		return map[string]string{"result": bitrixEmptyQuestion}
	}
	dialog := string(d.DialogID)
	h.logger.Info("Bitrix24 question", zap.String("user_id", string(d.UserID)), zap.String("dialog_id", dialog))

	resp, err := h.asker.Ask(r.Context(), rag.AskRequest{
		Question:       message,
		Department:     storage.AllDepartments,
		ConversationID: "b24:" + dialog,
	})
	if err != nil {
		h.logger.Error("Bitrix24 ask failed", zap.Error(err))
		return map[string]string{"dialog_id": dialog, "message": bitrixFailed}
	}

	text := FormatAnswer("", resp, "📎 *Источники:*")
	return map[string]string{"result": text, "dialog_id": dialog, "message": text}
}

func handleCommand(d bitrixPayload) map[string]string {
	msg := bitrixUnknownCommand
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d.Command), "/")) {
	case "help":
		msg = bitrixHelp
	case "start":
		msg = bitrixWelcome
	}
	return map[string]string{"dialog_id": string(d.DialogID), "message": msg}
}

// VerifySignature compares sig with the hex HMAC-SHA256 of body under secret.
func VerifySignature(body []byte, sig, secret string) bool {
	if sig == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

// parseEvent reads a JSON event, or the form encoding Bitrix24 uses for
// outgoing webhooks (event=...&data[PARAMS][MESSAGE]=...).
func parseEvent(contentType string, body []byte) (bitrixEvent, error) {
	var ev bitrixEvent
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return ev, err
		}
		ev.Event = form.Get("event")
		ev.Data = bitrixPayload{
			Message:  first(form, "data[PARAMS][MESSAGE]", "data[message]"),
			Command:  first(form, "data[COMMAND][0][COMMAND]", "data[command]"),
			DialogID: flexible(first(form, "data[PARAMS][DIALOG_ID]", "data[dialog_id]")),
			UserID:   flexible(first(form, "data[PARAMS][FROM_USER_ID]", "data[user_id]")),
		}
		return ev, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	err := dec.Decode(&ev)
	return ev, err
}

func first(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
