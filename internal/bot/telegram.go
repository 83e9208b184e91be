package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/storage"
)

const (
	telegramAPI         = "https://api.telegram.org"
	telegramPollTimeout = 30

	telegramWelcome = "🤖 *Добро пожаловать в Znatok AI Assistant!*\n\n" +
		"Я помогу вам найти информацию в корпоративных документах.\n\n" +
		"*Доступные команды:*\n/start - показать это сообщение\n/help - помощь по использованию\n\n" +
		"*Как использовать:*\nПросто напишите ваш вопрос, и я найду ответ в документах компании!"
	telegramHelp = "*Помощь по использованию Znatok AI Assistant*\n\n" +
		"Просто напишите вопрос. Примеры:\n• Политика удалённой работы\n• Как оформить отпуск?\n• Правила ИТ безопасности"

	replyAskAfterMention = "Задайте вопрос после упоминания."
	replyFailed          = "❌ Ошибка обработки запроса."
)

// Asker answers a question end to end.
type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (*rag.AskResponse, error)
}

// Telegram is a long-polling Bot API client that answers questions.
type Telegram struct {
	token     string
	baseURL   string
	client    *http.Client
	asker     Asker
	logger    *zap.Logger
	partDelay time.Duration
	timeout   int

	botID    int64
	username string
}

func NewTelegram(token string, asker Asker, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		token:     token,
		baseURL:   telegramAPI,
		client:    &http.Client{Timeout: (telegramPollTimeout + 10) * time.Second},
		asker:     asker,
		logger:    logger.With(zap.String("component", "telegram")),
		partDelay: 300 * time.Millisecond,
		timeout:   telegramPollTimeout,
	}
}

func (t *Telegram) Name() string { return "telegram" }

type tgUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgMessage struct {
	MessageID int64      `json:"message_id"`
	From      *tgUser    `json:"from"`
	Chat      tgChat     `json:"chat"`
	Text      string     `json:"text"`
	ReplyTo   *tgMessage `json:"reply_to_message"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Run fetches the bot identity, then polls for updates until ctx is done.
// Poll errors are retried with exponential backoff.
func (t *Telegram) Run(ctx context.Context) error {
	var me tgUser
	if err := t.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	t.botID, t.username = me.ID, me.Username
	t.logger.Info("Telegram bot initialized", zap.String("username", me.Username))

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = time.Minute

	var offset int64
	for {
		var updates []tgUpdate
		err := t.call(ctx, "getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         t.timeout,
			"allowed_updates": []string{"message"},
		}, &updates)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			wait := b.NextBackOff()
			t.logger.Warn("Telegram poll failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message != nil {
				t.handle(ctx, u.Message)
			}
		}
	}
}

// question decides whether msg is addressed to the bot and extracts the
// question. ok is false when the message must be ignored. A non-empty reply is
// sent instead of answering.
func (t *Telegram) question(msg *tgMessage) (q, reply string, ok bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return "", "", false
	}
	if strings.HasPrefix(text, "/") {
		switch command(text) {
		case "start":
			return "", telegramWelcome, true
		case "help":
			return "", telegramHelp, true
		}
		return "", "", false
	}

	if msg.Chat.Type == "private" {
		return text, "", true
	}
	if msg.ReplyTo != nil && msg.ReplyTo.From != nil && t.botID != 0 && msg.ReplyTo.From.ID == t.botID {
		return text, "", true
	}
	if mention := "@" + t.username; t.username != "" && strings.Contains(text, mention) {
		clean := strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
		if clean == "" {
			return "", replyAskAfterMention, true
		}
		return clean, "", true
	}
	return "", "", false
}

// command returns the command name of "/name@bot args".
func command(text string) string {
	name := strings.Fields(text)[0][1:]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func (t *Telegram) handle(ctx context.Context, msg *tgMessage) {
	q, reply, ok := t.question(msg)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	if reply != "" {
		t.send(ctx, chatID, reply)
		return
	}

	_ = t.call(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": "typing"}, nil)
	t.logger.Info("Telegram question", zap.Int64("chat_id", chatID))

	resp, err := t.asker.Ask(ctx, rag.AskRequest{
		Question:       q,
		Department:     storage.AllDepartments,
		ConversationID: "tg:" + strconv.FormatInt(chatID, 10),
	})
	if err != nil {
		t.logger.Error("Telegram ask failed", zap.Error(err))
		t.send(ctx, chatID, replyFailed)
		return
	}

	parts := SplitMessage(FormatAnswer("*Ответ:*\n", resp, "*Источники:*"), MaxMessageLength)
	for i, part := range parts {
		if i > 0 && t.partDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.partDelay):
			}
		}
		t.send(ctx, chatID, part)
	}
}

// send posts text as Markdown, falling back to plain text when Telegram
// rejects the markup.
func (t *Telegram) send(ctx context.Context, chatID int64, text string) {
	err := t.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID, "text": text, "parse_mode": "Markdown",
	}, nil)
	if err == nil {
		return
	}
	err = t.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, nil)
	if err != nil {
		t.logger.Error("Telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (t *Telegram) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var r tgResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("%s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !r.OK {
		return fmt.Errorf("%s: %s", method, r.Description)
	}
	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}
