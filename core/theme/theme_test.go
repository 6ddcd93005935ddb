package theme

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memSettings struct {
	values map[string]string
}

func newMemSettings() *memSettings { return &memSettings{values: make(map[string]string)} }

func (r *memSettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (r *memSettings) SetSetting(_ context.Context, key, value string) error {
	r.values[key] = value
	return nil
}

func TestServiceCurrentInitializesDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newMemSettings()
	svc := NewService(repo, nil)

	st, err := svc.Current(ctx)
	assert.NoError(t, err)
	assert.Equal(t, State{Name: Coffee, Version: "1"}, st)

	// defaults must now be persisted
	assert.Equal(t, Coffee, repo.values["theme"])
	assert.Equal(t, "1", repo.values["theme_version"])
}

func TestServiceSet(t *testing.T) {
	ctx := context.Background()
	repo := newMemSettings()
	bus := NewLocalBus()
	svc := NewService(repo, bus)

	ch, cancel := bus.SubscribeTheme()
	defer cancel()

	t.Run("unknown name rejected", func(t *testing.T) {
		_, err := svc.Set(ctx, "neon")
		assert.Equal(t, ErrUnknownTheme, err)
	})

	t.Run("bumps version and publishes", func(t *testing.T) {
		st, err := svc.Set(ctx, Winter)
		assert.NoError(t, err)
		assert.Equal(t, State{Name: Winter, Version: "2"}, st)

		select {
		case got := <-ch:
			assert.Equal(t, st, got)
		case <-time.After(time.Second):
			t.Fatal("no theme broadcast received")
		}

		cur, err := svc.Current(ctx)
		assert.NoError(t, err)
		assert.Equal(t, st, cur)
	})

	t.Run("version keeps counting", func(t *testing.T) {
		st, err := svc.Set(ctx, Christmas)
		assert.NoError(t, err)
		assert.Equal(t, "3", st.Version)
	})

	t.Run("corrupt stored version is re-seeded", func(t *testing.T) {
		repo.values["theme_version"] = "v1.banana"
		st, err := svc.Set(ctx, Spring)
		assert.NoError(t, err)
		assert.Equal(t, "1", st.Version)
	})
}

func TestKnown(t *testing.T) {
	for _, name := range Names {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("Neon"))
	assert.False(t, Known(""))
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus()
	ch, cancel := bus.SubscribeTheme()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	assert.NoError(t, bus.PublishTheme(context.Background(), State{Name: Coffee, Version: "1"}))
	cancel() // double cancel is a no-op
}
