package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/znatok/internal/rag"
	"github.com/bull/znatok/internal/settings"
)

type stubAsker struct {
	mu   sync.Mutex
	reqs []rag.AskRequest
	resp *rag.AskResponse
	err  error
}

func (s *stubAsker) Ask(ctx context.Context, req rag.AskRequest) (*rag.AskResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.resp, s.err
}

func (s *stubAsker) last() rag.AskRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

type loopBot struct {
	name    string
	started atomic.Int32
}

func (b *loopBot) Name() string { return b.name }

func (b *loopBot) Run(ctx context.Context) error {
	b.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type failingBot struct{}

func (failingBot) Name() string                  { return "failing" }
func (failingBot) Run(ctx context.Context) error { return errors.New("bad token") }

func TestSupervisor_Lifecycle(t *testing.T) {
	s := NewSupervisor(context.Background(), nil)
	assert.False(t, s.Running())

	first := &loopBot{name: "first"}
	require.NoError(t, s.Start(first))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(&loopBot{name: "second"}), ErrAlreadyRunning)

	second := &loopBot{name: "second"}
	s.Restart(second)
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return second.started.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), first.started.Load())

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()
}

func TestSupervisor_TaskExit(t *testing.T) {
	s := NewSupervisor(context.Background(), nil)
	require.NoError(t, s.Start(failingBot{}))
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Start(&loopBot{name: "again"}))
	s.Stop()
}

func TestSupervisor_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSupervisor(ctx, nil)
	require.NoError(t, s.Start(&loopBot{name: "bot"}))
	cancel()
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
}

func TestFormatAnswer(t *testing.T) {
	resp := &rag.AskResponse{
		Answer:  "Три дня в неделю.",
		Sources: []rag.Source{{Source: "policy.txt"}, {Source: "faq.pdf"}, {Source: "policy.txt"}},
	}
	got := FormatAnswer("*Ответ:*\n", resp, "*Источники:*")
	assert.Equal(t, "*Ответ:*\nТри дня в неделю.\n\n*Источники:*\n• policy.txt\n• faq.pdf", got)

	assert.Equal(t, "*Ответ:*\nНет.", FormatAnswer("*Ответ:*\n", &rag.AskResponse{Answer: "Нет."}, "*Источники:*"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	parts := SplitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one", "line two", "line three"}, parts)

	parts = SplitMessage("aaaa bbbb cccc", 10)
	assert.Equal(t, []string{"aaaa bbbb", "cccc"}, parts)

	parts = SplitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)

	long := strings.Repeat("Привет мир. ", 1000)
	for _, p := range SplitMessage(long, MaxMessageLength) {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), MaxMessageLength)
	}
}

func TestTelegram_Question(t *testing.T) {
	tg := NewTelegram("token", nil, nil)
	tg.botID, tg.username = 42, "znatok_bot"

	group := tgChat{ID: -100, Type: "group"}
	tests := []struct {
		name      string
		msg       tgMessage
		wantQ     string
		wantReply string
		wantOK    bool
	}{
		{"private", tgMessage{Chat: tgChat{ID: 1, Type: "private"}, Text: "Как оформить отпуск?"}, "Как оформить отпуск?", "", true},
		{"start", tgMessage{Chat: tgChat{ID: 1, Type: "private"}, Text: "/start"}, "", telegramWelcome, true},
		{"help with bot name", tgMessage{Chat: group, Text: "/help@znatok_bot"}, "", telegramHelp, true},
		{"other command ignored", tgMessage{Chat: tgChat{ID: 1, Type: "private"}, Text: "/settings"}, "", "", false},
		{"group ignored", tgMessage{Chat: group, Text: "просто болтаем"}, "", "", false},
		{"group mention", tgMessage{Chat: group, Text: "@znatok_bot сколько дней удалёнки?"}, "сколько дней удалёнки?", "", true},
		{"group bare mention", tgMessage{Chat: group, Text: "@znatok_bot"}, "", replyAskAfterMention, true},
		{"group reply to bot", tgMessage{Chat: group, Text: "а в пятницу?", ReplyTo: &tgMessage{From: &tgUser{ID: 42}}}, "а в пятницу?", "", true},
		{"group reply to someone else", tgMessage{Chat: group, Text: "да", ReplyTo: &tgMessage{From: &tgUser{ID: 7}}}, "", "", false},
		{"empty", tgMessage{Chat: tgChat{ID: 1, Type: "private"}, Text: "  "}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, reply, ok := tg.question(&tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantQ, q)
			assert.Equal(t, tt.wantReply, reply)
		})
	}
}

func TestTelegram_Run(t *testing.T) {
	var (
		mu      sync.Mutex
		sent    []map[string]any
		polled  atomic.Int32
		gotSend = make(chan struct{}, 1)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bot123:abc/"))
		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			io.WriteString(w, `{"ok":true,"result":{"id":42,"username":"znatok_bot"}}`)
		case "getUpdates":
			if polled.Add(1) == 1 {
				io.WriteString(w, `{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"chat":{"id":555,"type":"private"},"text":"Сколько дней удалёнки?"}}]}`)
				return
			}
			time.Sleep(10 * time.Millisecond)
			io.WriteString(w, `{"ok":true,"result":[]}`)
		case "sendChatAction":
			io.WriteString(w, `{"ok":true,"result":true}`)
		case "sendMessage":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			sent = append(sent, body)
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{}}`)
			select {
			case gotSend <- struct{}{}:
			default:
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	asker := &stubAsker{resp: &rag.AskResponse{Answer: "Три дня.", Sources: []rag.Source{{Source: "policy.txt"}}}}
	tg := NewTelegram("123:abc", asker, nil)
	tg.baseURL = srv.URL
	tg.timeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()

	select {
	case <-gotSend:
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "tg:555", asker.last().ConversationID)
	assert.Equal(t, "all", asker.last().Department)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, float64(555), sent[0]["chat_id"])
	assert.Equal(t, "*Ответ:*\nТри дня.\n\n*Источники:*\n• policy.txt", sent[0]["text"])
	assert.Equal(t, "Markdown", sent[0]["parse_mode"])
}

func TestTelegram_RunFailsOnBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	tg := NewTelegram("bad", &stubAsker{}, nil)
	tg.baseURL = srv.URL
	err := tg.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func b24Settings(verify bool, secret string) *settings.Store {
	s := settings.Default()
	s.Integrations.Bitrix24 = settings.Bitrix24Config{Enabled: true, ClientSecret: secret, VerifyWebhook: verify}
	return settings.NewMemoryStore(s)
}

func postWebhook(t *testing.T, h http.Handler, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/bitrix24/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBitrix24_Message(t *testing.T) {
	asker := &stubAsker{resp: &rag.AskResponse{Answer: "Три дня.", Sources: []rag.Source{{Source: "policy.txt"}}}}
	h := NewBitrix24Webhook(b24Settings(false, ""), asker, nil)

	rec, out := postWebhook(t, h, `{"event":"ONIMBOTMESSAGEADD","data":{"message":"Сколько дней?","dialog_id":"chat12","user_id":7}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat12", out["dialog_id"])
	assert.Equal(t, "Три дня.\n\n📎 *Источники:*\n• policy.txt", out["message"])
	assert.Equal(t, "b24:chat12", asker.last().ConversationID)

	_, out = postWebhook(t, h, `{"event":"ONIMBOTMESSAGEADD","data":{"message":"  "}}`, nil)
	assert.Equal(t, bitrixEmptyQuestion, out["result"])

	asker.err = errors.New("llm down")
	_, out = postWebhook(t, h, `{"event":"ONIMBOTMESSAGEADD","data":{"message":"q","dialog_id":5}}`, nil)
	assert.Equal(t, bitrixFailed, out["message"])
	assert.Equal(t, "5", out["dialog_id"])
}

func TestBitrix24_Commands(t *testing.T) {
	h := NewBitrix24Webhook(b24Settings(false, ""), &stubAsker{}, nil)

	_, out := postWebhook(t, h, `{"event":"ONIMCOMMANDADD","data":{"command":"HELP","dialog_id":"1"}}`, nil)
	assert.Equal(t, bitrixHelp, out["message"])
	_, out = postWebhook(t, h, `{"event":"ONIMCOMMANDADD","data":{"command":"/start","dialog_id":"1"}}`, nil)
	assert.Equal(t, bitrixWelcome, out["message"])
	_, out = postWebhook(t, h, `{"event":"ONIMCOMMANDADD","data":{"command":"dance","dialog_id":"1"}}`, nil)
	assert.Equal(t, bitrixUnknownCommand, out["message"])

	_, out = postWebhook(t, h, `{"event":"ONAPPINSTALL"}`, nil)
	assert.Equal(t, map[string]string{"result": "ok"}, out)
}

func TestBitrix24_Signature(t *testing.T) {
	body := `{"event":"ONIMCOMMANDADD","data":{"command":"help","dialog_id":"1"}}`
	h := NewBitrix24Webhook(b24Settings(true, "s3cret"), &stubAsker{}, nil)

	rec, _ := postWebhook(t, h, body, map[string]string{bitrixSignatureHeader: sign(body, "s3cret")})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = postWebhook(t, h, body, map[string]string{bitrixSignatureHeader: sign(body, "other")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unsigned requests pass, as Bitrix24 does not sign every event.
	rec, _ = postWebhook(t, h, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, VerifySignature([]byte(body), "abc", ""))
}

func TestBitrix24_FormEncoded(t *testing.T) {
	asker := &stubAsker{resp: &rag.AskResponse{Answer: "Да."}}
	h := NewBitrix24Webhook(b24Settings(false, ""), asker, nil)

	form := "event=ONIMBOTMESSAGEADD&data%5BPARAMS%5D%5BMESSAGE%5D=%D0%9F%D1%80%D0%B8%D0%B2%D0%B5%D1%82&data%5BPARAMS%5D%5BDIALOG_ID%5D=chat3"
	req := httptest.NewRequest(http.MethodPost, "/bitrix24/webhook", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Привет", asker.last().Question)
	assert.Equal(t, "b24:chat3", asker.last().ConversationID)
}

func TestBitrix24_Disabled(t *testing.T) {
	h := NewBitrix24Webhook(settings.NewMemoryStore(settings.Default()), &stubAsker{}, nil)
	rec, _ := postWebhook(t, h, `{"event":"ONIMCOMMANDADD"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
