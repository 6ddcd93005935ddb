package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisplay struct {
	mu      sync.Mutex
	applied []string
	reloads int
}

func (d *fakeDisplay) Apply(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, name)
}

func (d *fakeDisplay) Reload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
}

func (d *fakeDisplay) snapshot() ([]string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.applied...), d.reloads
}

func newTestClient(display *fakeDisplay) *Client {
	return NewClient(ClientOptions{BaseURL: "http://localhost", Applier: display})
}

func TestClientFirstStateNeverReloads(t *testing.T) {
	display := &fakeDisplay{}
	c := newTestClient(display)

	c.handle(State{Name: Winter, Version: "7"})

	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Winter}, applied)
	assert.Zero(t, reloads)
	assert.Equal(t, State{Name: Winter, Version: "7"}, c.State())
}

func TestClientVersionChangeReloads(t *testing.T) {
	display := &fakeDisplay{}
	c := newTestClient(display)

	c.handle(State{Name: Coffee, Version: "1"})
	c.handle(State{Name: Christmas, Version: "2"})

	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Coffee, Christmas}, applied)
	assert.Equal(t, 1, reloads)
}

func TestClientNameOnlyChangeAppliesWithoutReload(t *testing.T) {
	display := &fakeDisplay{}
	c := newTestClient(display)

	c.handle(State{Name: Coffee, Version: "3"})
	c.handle(State{Name: Summer, Version: "3"})

	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Coffee, Summer}, applied)
	assert.Zero(t, reloads)
}

func TestClientIdenticalStateIsNoop(t *testing.T) {
	display := &fakeDisplay{}
	c := newTestClient(display)

	st := State{Name: Autumn, Version: "4"}
	c.handle(st)
	c.handle(st)
	c.handle(st)

	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Autumn}, applied)
	assert.Zero(t, reloads)
}

func TestClientGraceWindowSuppressesReload(t *testing.T) {
	display := &fakeDisplay{}
	c := newTestClient(display)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.handle(State{Name: Coffee, Version: "1"})

	// a local switch just happened; the echoed broadcast must not reload
	c.mu.Lock()
	c.lastLocal = now
	c.mu.Unlock()

	c.handle(State{Name: Winter, Version: "2"})
	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Coffee, Winter}, applied)
	assert.Zero(t, reloads)

	// outside the window the same kind of change reloads again
	c.now = func() time.Time { return now.Add(DefaultGraceWindow + time.Millisecond) }
	c.handle(State{Name: Spring, Version: "3"})
	_, reloads = display.snapshot()
	assert.Equal(t, 1, reloads)
}

func TestClientSetLocal(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/theme", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody = body["theme"]

		json.NewEncoder(w).Encode(State{Name: body["theme"], Version: "9"})
	}))
	defer srv.Close()

	display := &fakeDisplay{}
	c := NewClient(ClientOptions{BaseURL: srv.URL, Applier: display, Token: "secret"})

	st, err := c.SetLocal(context.Background(), Christmas)
	require.NoError(t, err)
	assert.Equal(t, State{Name: Christmas, Version: "9"}, st)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, Christmas, gotBody)

	// applied instantly, before the server round trip resolves anything
	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Christmas}, applied)
	assert.Zero(t, reloads)

	// the echoed broadcast carries the version we already adopted
	c.handle(State{Name: Christmas, Version: "9"})
	_, reloads = display.snapshot()
	assert.Zero(t, reloads)

	t.Run("unknown name rejected locally", func(t *testing.T) {
		_, err := c.SetLocal(context.Background(), "neon")
		assert.Equal(t, ErrUnknownTheme, err)
	})
}

func TestClientSetLocalUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Applier: &fakeDisplay{}})
	_, err := c.SetLocal(context.Background(), Winter)
	assert.Equal(t, ErrNotAuthenticated, err)
}

func TestClientPoll(t *testing.T) {
	st := State{Name: Summer, Version: "5"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/theme", r.URL.Path)
		json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	display := &fakeDisplay{}
	c := NewClient(ClientOptions{BaseURL: srv.URL, Applier: display})

	c.Poll(context.Background())
	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Summer}, applied)
	assert.Zero(t, reloads)

	// unchanged state polls are no-ops
	c.Poll(context.Background())
	applied, _ = display.snapshot()
	assert.Len(t, applied, 1)

	st = State{Name: Winter, Version: "6"}
	c.Poll(context.Background())
	applied, reloads = display.snapshot()
	assert.Equal(t, []string{Summer, Winter}, applied)
	assert.Equal(t, 1, reloads)
}

func TestClientPollSwallowsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	display := &fakeDisplay{}
	c := NewClient(ClientOptions{BaseURL: srv.URL, Applier: display})

	c.Poll(context.Background())
	srv.Close()
	c.Poll(context.Background())

	applied, reloads := display.snapshot()
	assert.Empty(t, applied)
	assert.Zero(t, reloads)
}

func TestClientSubscribe(t *testing.T) {
	events := make(chan State, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/theme/events", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		// initial state, a keepalive comment, then pushed updates
		fmt.Fprintf(w, "event: theme\ndata: {\"theme\":\"coffee\",\"version\":\"1\"}\n\n")
		fmt.Fprintf(w, ": keepalive\n\n")
		flusher.Flush()
		for st := range events {
			data, _ := json.Marshal(st)
			fmt.Fprintf(w, "event: theme\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	display := &fakeDisplay{}
	c := NewClient(ClientOptions{BaseURL: srv.URL, Applier: display})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.subscribe(ctx)
		close(done)
	}()

	waitFor := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatal("condition not reached in time")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitFor(func() bool { a, _ := display.snapshot(); return len(a) == 1 })
	assert.Equal(t, Subscribed, c.ConnState())
	_, reloads := display.snapshot()
	assert.Zero(t, reloads, "initial stream state must not reload")

	events <- State{Name: Christmas, Version: "2"}
	waitFor(func() bool { a, _ := display.snapshot(); return len(a) == 2 })
	applied, reloads := display.snapshot()
	assert.Equal(t, []string{Coffee, Christmas}, applied)
	assert.Equal(t, 1, reloads)

	close(events)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after stream close")
	}
}
