package verify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser/browsertest"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menPage = `<html><head><script>var label = "レディース";</script></head>
<body>
  <nav><a href="/men">メンズ</a><a href="/women">ウィメンズ</a></nav>
  <main><h1>メンズ  Tシャツ</h1><style>.x{}</style></main>
</body></html>`

func newEngine(t *testing.T) (*Engine, *runlog.Run) {
	t.Helper()
	run, err := runlog.New(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return NewEngine(run, Options{WaitTimeout: 20 * time.Millisecond}, slog.Default()), run
}

func loadPage(t *testing.T, markup string) *browsertest.Page {
	t.Helper()
	page := browsertest.NewPage(nil)
	require.NoError(t, page.Load("https://www.adidas.jp/men", markup))
	return page
}

func TestVerifyExact(t *testing.T) {
	engine, run := newEngine(t)
	page := loadPage(t, menPage)

	out := engine.Verify(context.Background(), page, "メンズ")
	assert.True(t, out.Matched)
	assert.Equal(t, MethodExact, out.Method)
	assert.Equal(t, filepath.Join(run.ScreenshotDir, "success"), filepath.Dir(out.Screenshot))
	assert.True(t, strings.HasPrefix(filepath.Base(out.Screenshot), "found_メンズ_"))
	assert.FileExists(t, out.Screenshot)

	_, err := os.Stat(run.ErrorLogPath())
	assert.True(t, os.IsNotExist(err), "a match must not write the error log")
}

func TestVerifyFuzzy(t *testing.T) {
	engine, _ := newEngine(t)
	page := loadPage(t, `<html><body><h1>メンズ Tシャツ</h1></body></html>`)

	out := engine.Verify(context.Background(), page, "メンズTシャツ")
	assert.True(t, out.Matched)
	assert.Equal(t, MethodFuzzy, out.Method)
	assert.Greater(t, out.Score, DefaultThreshold)
	assert.Contains(t, filepath.Base(out.Screenshot), "fuzzy_")
}

func TestVerifyNoMatch(t *testing.T) {
	engine, run := newEngine(t)
	page := loadPage(t, menPage)

	out := engine.Verify(context.Background(), page, "キッズ シューズ コレクション")
	assert.False(t, out.Matched)
	assert.Equal(t, MethodNone, out.Method)
	assert.Equal(t, filepath.Join(run.ScreenshotDir, "error"), filepath.Dir(out.Screenshot))
	assert.True(t, strings.HasPrefix(filepath.Base(out.Screenshot), "not_found_"))

	data, err := os.ReadFile(run.ErrorLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Expected text not found: キッズ シューズ コレクション")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "TSHIRT 2", Normalize("  ＴＳＨＩＲＴ\n\t２ "))
	assert.Equal(t, "メンズ", Normalize("ﾒﾝｽﾞ"))
}

func TestPageText(t *testing.T) {
	text, err := PageText(menPage)
	require.NoError(t, err)
	assert.Equal(t, "メンズウィメンズメンズ  Tシャツ", text)
}

func TestVerifyScriptTextIsIgnored(t *testing.T) {
	engine, _ := newEngine(t)
	page := loadPage(t, menPage)

	out := engine.Verify(context.Background(), page, "レディース")
	assert.False(t, out.Matched)
}

func TestVerifyCancelled(t *testing.T) {
	run, err := runlog.New(t.TempDir(), slog.Default())
	require.NoError(t, err)
	engine := NewEngine(run, Options{Settle: time.Minute}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := engine.Verify(ctx, loadPage(t, menPage), "メンズ")
	assert.False(t, out.Matched)

	data, err := os.ReadFile(run.ErrorLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "context canceled")
}

type panickingPage struct {
	*browsertest.Page
}

func (p panickingPage) Content() (string, error) {
	panic("renderer crashed")
}

func TestVerifyRecoversPanic(t *testing.T) {
	engine, run := newEngine(t)
	page := panickingPage{Page: loadPage(t, menPage)}

	var out Outcome
	require.NotPanics(t, func() {
		out = engine.Verify(context.Background(), page, "メンズ")
	})
	assert.False(t, out.Matched)
	assert.Equal(t, MethodNone, out.Method)
	assert.Equal(t, filepath.Join(run.ScreenshotDir, "error"), filepath.Dir(out.Screenshot))

	data, err := os.ReadFile(run.ErrorLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "panic in verification: renderer crashed")
}
