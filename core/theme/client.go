package theme

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPollInterval = 4 * time.Second
	DefaultGraceWindow  = 500 * time.Millisecond

	// while polling, try to re-establish the event stream every N polls
	pollsPerReconnect = 15
)

var ErrNotAuthenticated = errors.New("not authenticated")

// Applier is the display side of a Client: Apply restyles the running UI in
// place, Reload restarts it so cached assets are refetched.
type Applier interface {
	Apply(name string)
	Reload()
}

// ConnState reports how a Client is currently receiving updates.
type ConnState int

const (
	Connecting ConnState = iota
	Subscribed
	Polling
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Polling:
		return "polling"
	}
	return "unknown"
}

// ClientOptions configures a Client. BaseURL and Applier are required.
type ClientOptions struct {
	BaseURL string
	Applier Applier

	// Token authorizes SetLocal; read-only clients can leave it empty.
	Token string

	HTTPClient   *http.Client
	PollInterval time.Duration
	GraceWindow  time.Duration
}

// Client keeps a display in sync with the server-side theme. It prefers a
// push stream and falls back to fixed-interval polling when the stream cannot
// be established (or drops), periodically retrying the stream.
//
// Updates behave the same on both paths: the first state seen is applied
// without a reload, a version change applies and reloads, and a name-only
// change applies without reloading. A reload is suppressed when the change
// was initiated locally within the grace window, so the operator's own switch
// never restarts their screen.
type Client struct {
	baseURL string
	applier Applier
	token   string

	client       *http.Client
	pollInterval time.Duration
	graceWindow  time.Duration
	now          func() time.Time

	mu        sync.Mutex
	conn      ConnState
	state     State
	seeded    bool
	lastLocal time.Time
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		applier:      opts.Applier,
		token:        opts.Token,
		client:       opts.HTTPClient,
		pollInterval: opts.PollInterval,
		graceWindow:  opts.GraceWindow,
		now:          time.Now,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.graceWindow <= 0 {
		c.graceWindow = DefaultGraceWindow
	}
	return c
}

// ConnState returns the current connection state.
func (c *Client) ConnState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// State returns the last applied theme state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the sync loop until ctx is cancelled. Transport errors are
// swallowed; the loop just tries again on the next tick.
func (c *Client) Run(ctx context.Context) {
	for ctx.Err() == nil {
		c.setConn(Connecting)
		c.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}

		c.setConn(Polling)
		for i := 0; i < pollsPerReconnect; i++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.pollInterval):
			}
			c.Poll(ctx)
		}
	}
}

// SetLocal switches the theme from this client. The new look is applied
// immediately and the change timestamp recorded, so the echoed broadcast does
// not reload this display.
func (c *Client) SetLocal(ctx context.Context, name string) (State, error) {
	if !Known(name) {
		return State{}, ErrUnknownTheme
	}

	c.mu.Lock()
	c.lastLocal = c.now()
	c.state.Name = name
	c.seeded = true
	c.mu.Unlock()
	c.applier.Apply(name)

	body, err := json.Marshal(map[string]string{"theme": name})
	if err != nil {
		return State{}, errors.Wrap(err, "encoding theme request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/theme", bytes.NewReader(body))
	if err != nil {
		return State{}, errors.Wrap(err, "building theme request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return State{}, errors.Wrap(err, "switching theme")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return State{}, ErrNotAuthenticated
	case resp.StatusCode != http.StatusOK:
		return State{}, errors.Errorf("switching theme: %s", resp.Status)
	}

	var st State
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return State{}, errors.Wrap(err, "decoding theme response")
	}

	// adopt the server version right away so the broadcast is a no-op
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	return st, nil
}

// Poll fetches the current state once and feeds it through the update rules.
// Errors are swallowed; a missed poll is recovered by the next one.
func (c *Client) Poll(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/theme", nil)
	if err != nil {
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var st State
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return
	}
	c.handle(st)
}

// subscribe consumes the event stream until it breaks. It returns silently on
// any error; Run decides what happens next.
func (c *Client) subscribe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/theme/events", nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK ||
		!strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return
	}
	c.setConn(Subscribed)

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "theme" || event == "" {
				var st State
				if err = json.Unmarshal([]byte(data), &st); err == nil && st.Name != "" {
					c.handle(st)
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		// comment lines (keepalives) and unknown fields are ignored
	}
}

// handle applies an incoming state to the display.
func (c *Client) handle(st State) {
	c.mu.Lock()
	if !c.seeded {
		c.seeded = true
		c.state = st
		c.mu.Unlock()
		c.applier.Apply(st.Name)
		return
	}

	prev := c.state
	if st == prev {
		c.mu.Unlock()
		return
	}
	c.state = st
	reload := st.Version != prev.Version && c.now().Sub(c.lastLocal) > c.graceWindow
	c.mu.Unlock()

	c.applier.Apply(st.Name)
	if reload {
		c.applier.Reload()
	}
}

func (c *Client) setConn(s ConnState) {
	c.mu.Lock()
	c.conn = s
	c.mu.Unlock()
}
