package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	page   *browsertest.Page
	closed bool
}

func (s *fakeSession) NewPage() (browser.Page, error) {
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLauncher struct {
	launched []browser.Options
	sessions []*fakeSession
	err      error
}

func (l *fakeLauncher) Launch(opts browser.Options) (Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.launched = append(l.launched, opts)
	s := &fakeSession{page: browsertest.NewPage(nil)}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) open() int {
	n := 0
	for _, s := range l.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

func TestManagerStart(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(launcher, *browser.DefaultOptions(), 0, slog.Default())

	page, err := m.Start()
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Len(t, launcher.launched, 1)
	assert.False(t, launcher.launched[0].DisableImages)

	again, err := m.Start()
	require.NoError(t, err)
	assert.Same(t, page, again)
	assert.Len(t, launcher.launched, 1)
}

func TestManagerStartFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("chromium missing")}
	m := NewManager(launcher, *browser.DefaultOptions(), 0, slog.Default())

	_, err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium missing")
	assert.Nil(t, m.Page())
}

func TestManagerRecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces session with images disabled", func(t *testing.T) {
		launcher := &fakeLauncher{}
		m := NewManager(launcher, *browser.DefaultOptions(), time.Millisecond, slog.Default())

		first, err := m.Start()
		require.NoError(t, err)

		second, err := m.Recycle(ctx)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.True(t, launcher.sessions[0].closed)
		assert.True(t, first.(*browsertest.Page).Closed())
		assert.True(t, launcher.launched[1].DisableImages)
		assert.Equal(t, 1, launcher.open())
		assert.Equal(t, 1, m.Recycles())
	})

	t.Run("keeps images when asked", func(t *testing.T) {
		launcher := &fakeLauncher{}
		m := NewManager(launcher, *browser.DefaultOptions(), 0, slog.Default())
		m.KeepImagesOnRecycle(true)

		_, err := m.Start()
		require.NoError(t, err)
		_, err = m.Recycle(ctx)
		require.NoError(t, err)
		assert.False(t, launcher.launched[1].DisableImages)
	})

	t.Run("requires a started session", func(t *testing.T) {
		m := NewManager(&fakeLauncher{}, *browser.DefaultOptions(), 0, slog.Default())
		_, err := m.Recycle(ctx)
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("cancellation during settle leaves no session", func(t *testing.T) {
		launcher := &fakeLauncher{}
		m := NewManager(launcher, *browser.DefaultOptions(), time.Minute, slog.Default())
		_, err := m.Start()
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = m.Recycle(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, launcher.open())
		assert.Nil(t, m.Page())
	})
}

func TestManagerClose(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(launcher, *browser.DefaultOptions(), 0, slog.Default())
	require.NoError(t, m.Close())

	_, err := m.Start()
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.Equal(t, 0, launcher.open())
}
