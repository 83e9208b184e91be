// Package conversation keeps short rolling chat histories in memory.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Roles of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Config bounds the store.
type Config struct {
	TTL      time.Duration // idle time after which a conversation is gone
	Capacity int           // hard ceiling, least recently used evicted first
	SweepAt  int           // tracked count above which expired entries are swept
	MaxTurns int           // question/answer pairs kept per conversation
}

// Store maps conversation ids to their recent messages. Capacity and TTL are
// both enforced: lookups never return an expired conversation.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []Message]
	cfg   Config
	now   func() time.Time
}

// New creates a store. A nil clock selects time.Now.
func New(cfg Config, now func() time.Time) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.SweepAt <= 0 {
		cfg.SweepAt = 1000
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 2
	}
	if now == nil {
		now = time.Now
	}
	cache, err := lru.New[string, []Message](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &Store{cache: cache, cfg: cfg, now: now}, nil
}

// History returns the last messages of id, oldest first, or nil when the
// conversation is unknown or expired.
func (s *Store) History(id string) []Message {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.cache.Get(id)
	if !ok {
		return nil
	}
	if s.expired(msgs) {
		s.cache.Remove(id)
		return nil
	}
	return append([]Message(nil), msgs...)
}

// Append records a question and its answer, trimming the history to the
// configured number of turns.
func (s *Store) Append(id, question, answer string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msgs, ok := s.cache.Get(id)
	if !ok || s.expired(msgs) {
		msgs = nil
	}
	next := make([]Message, 0, len(msgs)+2)
	next = append(next, msgs...)
	next = append(next,
		Message{Role: RoleUser, Content: question, Timestamp: now},
		Message{Role: RoleAssistant, Content: answer, Timestamp: now},
	)
	if limit := 2 * s.cfg.MaxTurns; len(next) > limit {
		next = next[len(next)-limit:]
	}
	s.cache.Add(id, next)

	if s.cache.Len() > s.cfg.SweepAt {
		s.sweepLocked()
	}
}

// Sweep removes every expired conversation and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len returns the number of tracked conversations, expired ones included.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) sweepLocked() int {
	removed := 0
	for _, id := range s.cache.Keys() {
		msgs, ok := s.cache.Peek(id)
		if ok && s.expired(msgs) {
			s.cache.Remove(id)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(msgs []Message) bool {
	if len(msgs) == 0 {
		return true
	}
	return s.now().Sub(msgs[len(msgs)-1].Timestamp) > s.cfg.TTL
}

// FormatHistory renders messages as alternating question and answer lines.
func FormatHistory(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			b.WriteString("Вопрос: ")
		default:
			b.WriteString("Ответ: ")
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
