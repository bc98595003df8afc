// Package client is a session-aware reader for the blog API.
//
// Watch hands out resources keyed by (path, credential). Identical keys
// share one request and one result; the entry lives while at least one
// resource holds it. Paths under /api/admin wait for the session and are
// sent with its bearer token; a signed-out session leaves them empty.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const adminPrefix = "/api/admin"

// RequiresCredential reports whether path is admin-scoped.
func RequiresCredential(path string) bool {
	return path == adminPrefix || strings.HasPrefix(path, adminPrefix+"/")
}

// Key identifies a shared entry. Credential is empty for public paths.
type Key struct {
	Path       string
	Credential string
}

type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	entries  map[Key]*entry
	bindings map[*binding]struct{}
	closed   bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the API at baseURL. session may be nil when only
// public paths are read.
func New(baseURL string, session *Session, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		session:  session,
		log:      slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		entries:  map[Key]*entry{},
		bindings: map[*binding]struct{}{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.session == nil {
		c.session = NewSession(StaticToken(""), c.log)
	}
	return c
}

func (c *Client) Session() *Session { return c.session }

// Close cancels every in-flight request. Open resources stop loading and
// report ErrClosed; later calls to Watch return resources in that state.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for k, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.loading = false
		delete(c.entries, k)
	}
	for b := range c.bindings {
		b.notify()
	}
}

// entry is one cached (path, credential) result. Fields are guarded by Client.mu.
type entry struct {
	key     Key
	refs    int
	gen     uint64
	loading bool
	body    []byte
	bodyGen uint64
	err     error
	cancel  context.CancelFunc
	subs    map[*binding]struct{}
}

// binding is the untyped half of a Resource.
type binding struct {
	c       *Client
	path    string
	updates chan struct{}
	stop    context.CancelFunc

	// guarded by c.mu
	entry   *entry
	pending bool
	closed  bool
}

func (b *binding) notify() {
	select {
	case b.updates <- struct{}{}:
	default:
	}
}

func (c *Client) watch(path string) *binding {
	b := &binding{c: c, path: path, updates: make(chan struct{}, 1)}
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.bindings[b] = struct{}{}
	}
	c.mu.Unlock()
	switch {
	case closed:
	case path == "":
	case !RequiresCredential(path):
		c.mu.Lock()
		c.acquireLocked(b, Key{Path: path})
		c.mu.Unlock()
	default:
		ctx, cancel := context.WithCancel(c.ctx)
		b.stop = cancel
		b.pending = true
		go c.follow(ctx, b)
	}
	return b
}

// follow keeps b bound to the entry for the current credential.
func (c *Client) follow(ctx context.Context, b *binding) {
	for {
		state, token, changed, err := c.session.await(ctx)
		if err != nil {
			return
		}

		c.mu.Lock()
		if b.closed {
			c.mu.Unlock()
			return
		}
		b.pending = false
		if state == SessionPresent {
			c.acquireLocked(b, Key{Path: b.path, Credential: token})
		}
		b.notify()
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}

		c.mu.Lock()
		if b.closed {
			c.mu.Unlock()
			return
		}
		c.releaseLocked(b)
		b.pending = true
		b.notify()
		c.mu.Unlock()
	}
}

func (c *Client) acquireLocked(b *binding, key Key) {
	e := c.entries[key]
	if e == nil {
		e = &entry{key: key, subs: map[*binding]struct{}{}}
		c.entries[key] = e
		c.startLocked(e)
	}
	e.refs++
	e.subs[b] = struct{}{}
	b.entry = e
	b.notify()
}

func (c *Client) releaseLocked(b *binding) {
	e := b.entry
	if e == nil {
		return
	}
	b.entry = nil
	delete(e.subs, b)
	e.refs--
	if e.refs > 0 {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
}

// startLocked (re)issues the request for e. A request already in flight is
// cancelled and its answer will be discarded.
func (c *Client) startLocked(e *entry) {
	if c.ctx.Err() != nil {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	e.loading = true
	e.err = nil
	ctx, cancel := context.WithCancel(c.ctx)
	e.cancel = cancel
	for b := range e.subs {
		b.notify()
	}
	go c.load(ctx, e, e.gen)
}

func (c *Client) load(ctx context.Context, e *entry, gen uint64) {
	body, err := send(ctx, c.http, http.MethodGet, c.baseURL+e.key.Path, e.key.Credential, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.key] != e || e.gen != gen {
		return
	}
	e.cancel()
	e.cancel = nil
	e.loading = false
	if err != nil {
		e.err = err
		c.log.Debug("fetch failed", "path", e.key.Path, "error", err)
	} else {
		e.body, e.bodyGen = body, gen
	}
	for b := range e.subs {
		b.notify()
	}
}

// Inflight reports how many entries are currently shared.
func (c *Client) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Do sends a mutation. Admin paths use the session token and fail with
// ErrUnauthorized without a request when nobody is signed in. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var token string
	if RequiresCredential(path) {
		t, err := c.session.Require(ctx)
		if err != nil {
			return err
		}
		token = t
	}
	body, err := send(ctx, c.http, method, c.baseURL+path, token, in)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
