package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, cfg Config) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s, err := New(cfg, clock.Now)
	require.NoError(t, err)
	return s, clock
}

func TestStore_TTL(t *testing.T) {
	tests := []struct {
		name    string
		idle    time.Duration
		present bool
	}{
		{"29 minutes idle", 29 * time.Minute, true},
		{"31 minutes idle", 31 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestStore(t, Config{TTL: 30 * time.Minute})
			s.Append("c1", "q", "a")

			clock.Advance(tt.idle)
			got := s.History("c1")
			if tt.present {
				assert.Len(t, got, 2)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestStore_KeepsLastTurns(t *testing.T) {
	s, _ := newTestStore(t, Config{MaxTurns: 2})
	for i := 1; i <= 3; i++ {
		s.Append("c1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	got := s.History("c1")
	require.Len(t, got, 4)
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "a3", got[3].Content)
	assert.Equal(t, RoleAssistant, got[3].Role)
}

func TestStore_ExpiredConversationRestarts(t *testing.T) {
	s, clock := newTestStore(t, Config{TTL: time.Minute})
	s.Append("c1", "old", "old")
	clock.Advance(2 * time.Minute)
	s.Append("c1", "new", "new")

	got := s.History("c1")
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Content)
}

func TestStore_SweepAboveThreshold(t *testing.T) {
	s, clock := newTestStore(t, Config{TTL: time.Minute, SweepAt: 3})
	s.Append("a", "q", "a")
	s.Append("b", "q", "a")
	s.Append("c", "q", "a")
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 3, s.Len(), "no sweep at or below the threshold")
	s.Append("d", "q", "a")
	assert.Equal(t, 1, s.Len(), "expired entries swept once the threshold is exceeded")
}

func TestStore_Capacity(t *testing.T) {
	s, _ := newTestStore(t, Config{Capacity: 2, SweepAt: 100})
	s.Append("a", "q", "a")
	s.Append("b", "q", "a")
	s.History("a") // a is now most recently used
	s.Append("c", "q", "a")

	assert.Equal(t, 2, s.Len())
	assert.NotNil(t, s.History("a"))
	assert.Nil(t, s.History("b"))
}

func TestStore_HistoryIsCopy(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	s.Append("c1", "q", "a")
	got := s.History("c1")
	got[0].Content = "changed"
	assert.Equal(t, "q", s.History("c1")[0].Content)
	assert.Nil(t, s.History(""))
}

func TestFormatHistory(t *testing.T) {
	got := FormatHistory([]Message{
		{Role: RoleUser, Content: "Сколько дней?"},
		{Role: RoleAssistant, Content: "Три."},
	})
	assert.Equal(t, "Вопрос: Сколько дней?\nОтвет: Три.\n", got)
}
