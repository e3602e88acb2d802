package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/clients/assistant"
	"github.com/yungbote/crawlshastra-backend/internal/clients/threads"
	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
)

type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// memStore mimics the thread service for one principal.
type memStore struct {
	mu      sync.Mutex
	clock   *stepClock
	threads map[uuid.UUID]chat.ChatThread
	calls   map[string]int

	createErr  error
	updateErr  error
	deleteErr  error
	listErr    error
	createGate chan struct{}
}

func newMemStore(clock *stepClock) *memStore {
	return &memStore{clock: clock, threads: map[uuid.UUID]chat.ChatThread{}, calls: map[string]int{}}
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) get(id uuid.UUID) (chat.ChatThread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	return t, ok
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func (s *memStore) put(t chat.ChatThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
}

func (s *memStore) List(ctx context.Context) ([]chat.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["list"]++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]chat.ChatThread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) Create(ctx context.Context, p threads.Payload) (chat.ChatThread, error) {
	s.mu.Lock()
	s.calls["create"]++
	gate := s.createGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return chat.ChatThread{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return chat.ChatThread{}, s.createErr
	}
	now := s.clock.Now()
	msgs := copyMessages(p.Messages)
	if len(msgs) == 0 {
		msgs = []chat.ChatMessage{chat.Greeting(now)}
	}
	t := chat.ChatThread{ID: uuid.New(), Title: copyTitle(p.Title), Messages: msgs, CreatedAt: now, UpdatedAt: now}
	s.threads[t.ID] = t
	return t, nil
}

func (s *memStore) Update(ctx context.Context, id uuid.UUID, p threads.Payload) (chat.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["update"]++
	if s.updateErr != nil {
		return chat.ChatThread{}, s.updateErr
	}
	t, ok := s.threads[id]
	if !ok {
		return chat.ChatThread{}, fmt.Errorf("update %s: %w", id, apperr.ErrNotFound)
	}
	if p.Title != nil {
		t.Title = copyTitle(p.Title)
	}
	if p.Messages != nil {
		t.Messages = copyMessages(p.Messages)
	}
	t.UpdatedAt = s.clock.Now()
	s.threads[id] = t
	return t, nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["delete"]++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.threads[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.threads, id)
	return nil
}

type fakeAssistant struct {
	ask func(ctx context.Context, q string) (assistant.Answer, error)
}

func (f fakeAssistant) Ask(ctx context.Context, q string) (assistant.Answer, error) {
	return f.ask(ctx, q)
}

func answering(text string, sources ...string) fakeAssistant {
	return fakeAssistant{ask: func(context.Context, string) (assistant.Answer, error) {
		ans := assistant.Answer{Text: text, Sources: []chat.Source{}}
		for _, s := range sources {
			ans.Sources = append(ans.Sources, chat.Source{Source: s})
		}
		return ans, nil
	}}
}

func failing(err error) fakeAssistant {
	return fakeAssistant{ask: func(context.Context, string) (assistant.Answer, error) {
		return assistant.Answer{}, err
	}}
}
