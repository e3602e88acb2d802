package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/clients/assistant"
	"github.com/yungbote/crawlshastra-backend/internal/clients/threads"
	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrThreadBusy     = errors.New("thread already has a message in flight")
	ErrEmptyMessage   = errors.New("message text is empty")
	// ErrTurnDiscarded is returned by Complete when the thread was deleted
	// (or the turn already completed) while the reply was in flight.
	ErrTurnDiscarded = errors.New("turn discarded")
)

// ThreadStore is the server side of the thread set.
type ThreadStore interface {
	List(ctx context.Context) ([]chat.ChatThread, error)
	Create(ctx context.Context, p threads.Payload) (chat.ChatThread, error)
	Update(ctx context.Context, id uuid.UUID, p threads.Payload) (chat.ChatThread, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Assistant interface {
	Ask(ctx context.Context, question string) (assistant.Answer, error)
}

type Config struct {
	// AskTimeout bounds each assistant call made by Send.
	AskTimeout time.Duration
	Now        func() time.Time
}

// Controller is the client-side copy of one principal's threads. Local
// mutations apply immediately; server calls happen outside the lock.
type Controller struct {
	log        *logger.Logger
	store      ThreadStore
	assistant  Assistant
	askTimeout time.Duration
	now        func() time.Time

	mu       sync.Mutex
	threads  map[string]*entry
	aliases  map[string]string
	activeID string
}

// New returns a controller holding a single Local-Only thread.
func New(log *logger.Logger, store ThreadStore, gw Assistant, cfg Config) *Controller {
	c := &Controller{
		log:        log.With("component", "SessionController"),
		store:      store,
		assistant:  gw,
		askTimeout: cfg.AskTimeout,
		now:        cfg.Now,
		threads:    map[string]*entry{},
		aliases:    map[string]string{},
	}
	if c.askTimeout <= 0 {
		c.askTimeout = 60 * time.Second
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	c.mu.Lock()
	c.activeID = c.addLocalLocked().id
	c.mu.Unlock()
	return c
}

// NewThread makes a fresh thread active and tries to store it. On a storage
// error the thread is kept Local-Only and the error is returned with it.
func (c *Controller) NewThread(ctx context.Context) (Thread, error) {
	c.mu.Lock()
	e := c.addLocalLocked()
	c.activeID = e.id
	c.mu.Unlock()

	err := c.persist(ctx, e)
	if err != nil {
		c.log.Warn("new thread kept local", "thread_id", e.id, "error", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.snapshot(), err
}

func (c *Controller) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(id)
	if !ok {
		return ErrThreadNotFound
	}
	c.activeID = e.id
	return nil
}

// BeginSend appends the user message and marks the thread pending. At most
// one turn per thread is in flight.
func (c *Controller) BeginSend(id, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(id)
	if !ok {
		return nil, ErrThreadNotFound
	}
	if e.pending != nil {
		return nil, ErrThreadBusy
	}
	now := c.now()
	msg := chat.ChatMessage{
		MessageID: e.nextMessageID(),
		Text:      text,
		Sender:    chat.SenderUser,
		Timestamp: now,
		Sources:   []chat.Source{},
	}
	turn := &Turn{ThreadID: e.id, Message: msg, first: !e.hasUserMessage(), e: e}
	e.messages = append(e.messages, msg)
	e.updatedAt = now
	e.pending = turn
	return turn, nil
}

// Complete appends the reply for turn, or the apology when askErr is set,
// and stores the thread. A storage error leaves the local copy in place.
func (c *Controller) Complete(ctx context.Context, turn *Turn, answer assistant.Answer, askErr error) (Thread, error) {
	if turn == nil || turn.e == nil {
		return Thread{}, fmt.Errorf("%w: nil turn", apperr.ErrInvalidArgument)
	}
	e := turn.e

	c.mu.Lock()
	if e.pending != turn || e.deleted {
		if e.pending == turn {
			e.pending = nil
		}
		c.mu.Unlock()
		return Thread{}, ErrTurnDiscarded
	}
	e.pending = nil

	now := c.now()
	reply := chat.ChatMessage{
		MessageID: e.nextMessageID(),
		Sender:    chat.SenderBot,
		Timestamp: now,
		Sources:   []chat.Source{},
	}
	if askErr != nil {
		c.log.Warn("assistant failed, appending apology", "thread_id", e.id, "error", askErr)
		reply.Text = ApologyText
	} else {
		reply.Text = answer.Text
		reply.Sources = append(reply.Sources, answer.Sources...)
	}
	e.messages = append(e.messages, reply)
	e.updatedAt = now
	if turn.first && e.title == nil {
		title := titleFrom(turn.Message.Text)
		e.title = &title
	}
	c.mu.Unlock()

	err := c.persist(ctx, e)
	if err != nil {
		c.log.Warn("thread not stored, keeping local copy", "thread_id", e.id, "error", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.snapshot(), err
}

// Send runs a full turn: BeginSend, the assistant call bounded by the
// configured timeout, then Complete. Assistant failures are absorbed.
func (c *Controller) Send(ctx context.Context, id, text string) (Thread, error) {
	turn, err := c.BeginSend(id, text)
	if err != nil {
		return Thread{}, err
	}
	askCtx, cancel := context.WithTimeout(ctx, c.askTimeout)
	answer, askErr := c.assistant.Ask(askCtx, turn.Message.Text)
	cancel()
	return c.Complete(ctx, turn, answer, askErr)
}

// Delete removes the thread locally right away, then on the server. If it
// was active, the most recently updated remaining thread takes over, or a
// new Local-Only thread when none remain.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	e, ok := c.lookupLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrThreadNotFound
	}
	e.deleted = true
	delete(c.threads, e.id)
	for alias, target := range c.aliases {
		if target == e.id {
			delete(c.aliases, alias)
		}
	}
	if c.activeID == e.id {
		c.activeID = c.fallbackLocked()
	}
	serverID := e.serverID
	c.mu.Unlock()

	if serverID == uuid.Nil {
		return nil
	}
	if err := c.store.Delete(ctx, serverID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return storageErr(err)
	}
	return nil
}

// Load replaces the synced threads with the server's list. Threads with a
// message or a write in flight, and Local-Only threads holding user
// messages, are kept as they are.
func (c *Controller) Load(ctx context.Context) error {
	remote, err := c.store.List(ctx)
	if err != nil {
		return storageErr(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]*entry, len(remote)+len(c.threads))
	for id, e := range c.threads {
		if e.pending != nil || e.saving || (e.serverID == uuid.Nil && e.hasUserMessage()) {
			next[id] = e
		}
	}
	for _, rt := range remote {
		id := rt.ID.String()
		if _, keep := next[id]; keep {
			continue
		}
		if existing, ok := c.threads[id]; ok {
			existing.apply(rt)
			next[id] = existing
			continue
		}
		next[id] = newRemoteEntry(rt)
	}
	for id, e := range c.threads {
		if _, ok := next[id]; !ok {
			e.deleted = true
		}
	}
	for alias, target := range c.aliases {
		if _, ok := next[target]; !ok {
			delete(c.aliases, alias)
		}
	}
	c.threads = next
	if _, ok := c.threads[c.activeID]; !ok {
		c.activeID = c.fallbackLocked()
	}
	return nil
}

// Threads returns every thread, most recently updated first.
func (c *Controller) Threads() []Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Thread, 0, len(c.threads))
	for _, e := range c.threads {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Controller) Active() Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threads[c.activeID].snapshot()
}

// Thread looks up by current id or by a Local-Only id the thread has since
// outgrown.
func (c *Controller) Thread(id string) (Thread, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(id)
	if !ok {
		return Thread{}, false
	}
	return e.snapshot(), true
}

func (c *Controller) State(id string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(id)
	if !ok {
		return 0, false
	}
	return e.state(), true
}

// persist writes the entry's current content to the server. Writes for one
// thread are serialized and each sends the newest local copy.
func (c *Controller) persist(ctx context.Context, e *entry) error {
	e.save.Lock()
	defer e.save.Unlock()

	c.mu.Lock()
	if e.deleted {
		c.mu.Unlock()
		return nil
	}
	serverID := e.serverID
	payload := threads.Payload{Title: copyTitle(e.title), Messages: copyMessages(e.messages)}
	e.saving = true
	c.mu.Unlock()

	if serverID != uuid.Nil {
		updated, err := c.store.Update(ctx, serverID, payload)
		c.mu.Lock()
		switch {
		case err == nil:
			e.saving = false
			if !updated.UpdatedAt.IsZero() && !e.deleted {
				e.updatedAt = updated.UpdatedAt
			}
			c.mu.Unlock()
			return nil
		case errors.Is(err, apperr.ErrNotFound):
			// Removed elsewhere. The local copy is the newest, so store it again.
			c.log.Warn("stored thread is gone, re-creating", "thread_id", serverID)
			e.serverID = uuid.Nil
			c.mu.Unlock()
		default:
			e.saving = false
			c.mu.Unlock()
			return storageErr(err)
		}
	}

	created, err := c.store.Create(ctx, payload)

	c.mu.Lock()
	e.saving = false
	if err != nil {
		c.mu.Unlock()
		return storageErr(err)
	}
	if e.deleted {
		c.mu.Unlock()
		if derr := c.store.Delete(ctx, created.ID); derr != nil && !errors.Is(derr, apperr.ErrNotFound) {
			c.log.Warn("could not remove thread deleted during create", "thread_id", created.ID, "error", derr)
		}
		return nil
	}
	c.rekeyLocked(e, created)
	c.mu.Unlock()
	return nil
}

// rekeyLocked moves a newly stored entry to its server id. The old id stays
// resolvable through aliases.
func (c *Controller) rekeyLocked(e *entry, created chat.ChatThread) {
	old := e.id
	id := created.ID.String()
	delete(c.threads, old)
	e.id = id
	e.serverID = created.ID
	if !created.CreatedAt.IsZero() {
		e.createdAt = created.CreatedAt
	}
	if !created.UpdatedAt.IsZero() {
		e.updatedAt = created.UpdatedAt
	}
	c.threads[id] = e
	for alias, target := range c.aliases {
		if target == old {
			c.aliases[alias] = id
		}
	}
	c.aliases[old] = id
	if c.activeID == old {
		c.activeID = id
	}
}

func (c *Controller) addLocalLocked() *entry {
	e := newLocalEntry(c.now())
	c.threads[e.id] = e
	return e
}

func (c *Controller) lookupLocked(id string) (*entry, bool) {
	if e, ok := c.threads[id]; ok {
		return e, true
	}
	if target, ok := c.aliases[id]; ok {
		e, ok := c.threads[target]
		return e, ok
	}
	return nil, false
}

// fallbackLocked picks the most recently updated thread, synthesizing a
// Local-Only one when the set is empty.
func (c *Controller) fallbackLocked() string {
	var best *entry
	for _, e := range c.threads {
		if best == nil || e.updatedAt.After(best.updatedAt) ||
			(e.updatedAt.Equal(best.updatedAt) && e.id < best.id) {
			best = e
		}
	}
	if best == nil {
		best = c.addLocalLocked()
	}
	return best.id
}

func storageErr(err error) error {
	if errors.Is(err, apperr.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
}
