package theme

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Seasonal theme names. "coffee" is the all-year default.
const (
	Coffee    = "coffee"
	Spring    = "spring"
	Summer    = "summer"
	Autumn    = "autumn"
	Winter    = "winter"
	Christmas = "christmas"

	DefaultName    = Coffee
	defaultVersion = "1"

	// settings keys
	settingName    = "theme"
	settingVersion = "theme_version"
)

var (
	Names = []string{Coffee, Spring, Summer, Autumn, Winter, Christmas}

	ErrUnknownTheme = errors.New("unknown theme")
	ErrNotFound     = errors.New("setting not found")
)

// Known reports whether name is a recognized theme name.
func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// State is the authoritative theme state. Version is an opaque counter used
// purely for change detection; clients only ever compare it for equality.
type State struct {
	Name    string `json:"theme"`
	Version string `json:"version"`
}

type (
	// SettingsRepository persists app-wide key/value settings.
	SettingsRepository interface {
		GetSetting(ctx context.Context, key string) (string, error)
		SetSetting(ctx context.Context, key, value string) error
	}

	// Publisher fans a theme change out to all connected clients
	// (and other API instances).
	Publisher interface {
		PublishTheme(ctx context.Context, st State) error
	}

	Service struct {
		repo SettingsRepository
		pub  Publisher
	}
)

func NewService(repo SettingsRepository, pub Publisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Current returns the stored theme state, initializing the defaults when the
// settings are missing (fresh database or restore).
func (svc *Service) Current(ctx context.Context) (State, error) {
	st := State{Name: DefaultName, Version: defaultVersion}

	name, err := svc.repo.GetSetting(ctx, settingName)
	switch errors.Cause(err) {
	case nil:
		st.Name = name
	case ErrNotFound:
		if err = svc.repo.SetSetting(ctx, settingName, st.Name); err != nil {
			return State{}, errors.Wrap(err, "initializing theme setting")
		}
	default:
		return State{}, errors.Wrap(err, "getting theme setting")
	}

	version, err := svc.repo.GetSetting(ctx, settingVersion)
	switch errors.Cause(err) {
	case nil:
		st.Version = version
	case ErrNotFound:
		if err = svc.repo.SetSetting(ctx, settingVersion, st.Version); err != nil {
			return State{}, errors.Wrap(err, "initializing theme version setting")
		}
	default:
		return State{}, errors.Wrap(err, "getting theme version setting")
	}
	return st, nil
}

// Set switches the global theme, bumps the version and broadcasts the new
// state. Unknown names are rejected with ErrUnknownTheme.
func (svc *Service) Set(ctx context.Context, name string) (State, error) {
	if !Known(name) {
		return State{}, ErrUnknownTheme
	}

	cur, err := svc.Current(ctx)
	if err != nil {
		return State{}, err
	}

	// version is opaque to clients but an integer in storage; a corrupt
	// value re-seeds the counter instead of failing the switch.
	n, convErr := strconv.Atoi(cur.Version)
	if convErr != nil {
		n = 0
	}
	st := State{Name: name, Version: strconv.Itoa(n + 1)}

	if err = svc.repo.SetSetting(ctx, settingName, st.Name); err != nil {
		return State{}, errors.Wrap(err, "storing theme setting")
	}
	if err = svc.repo.SetSetting(ctx, settingVersion, st.Version); err != nil {
		return State{}, errors.Wrap(err, "storing theme version setting")
	}

	if svc.pub != nil {
		if err = svc.pub.PublishTheme(ctx, st); err != nil {
			return State{}, errors.Wrap(err, "publishing theme")
		}
	}
	return st, nil
}

// Bus is a Publisher that can also be subscribed to. The redis broker
// implements it for multi-instance deployments; LocalBus serves single-node
// runs and tests.
type Bus interface {
	Publisher
	SubscribeTheme() (ch <-chan State, cancel func())
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu   sync.Mutex
	subs map[int]chan State
	next int
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]chan State)}
}

func (b *LocalBus) PublishTheme(_ context.Context, st State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- st:
		default: // slow subscriber, drop; it will catch up on its next event
		}
	}
	return nil
}

func (b *LocalBus) SubscribeTheme() (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan State, 8)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}
