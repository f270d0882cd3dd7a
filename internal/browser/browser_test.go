// internal/browser/browser_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

const testPage = `<!doctype html>
<html><head><title>Fixture Page</title></head>
<body>
  <form onsubmit="event.preventDefault(); document.getElementById('out').innerText = 'Hello ' + document.getElementById('name').value; document.getElementById('out').style.display = 'block';">
    <input id="name" value="placeholder">
    <button id="go" type="submit">Go</button>
  </form>
  <p id="out" style="display:none"></p>
  <div id="hidden" style="display:none">secret</div>
  <ul><li class="item">One</li><li class="item">Two</li><li class="item"> Three </li></ul>
  <input id="upload" type="file">
</body></html>`

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestAllocatorFlags(t *testing.T) {
	cfg := config.BrowserConfig{
		Headless:        true,
		IgnoreTLSErrors: true,
		Args:            []string{"--lang=en-US", "mute-audio", "  "},
	}
	flags := map[string]any{}
	for _, f := range allocatorFlags(cfg) {
		flags[f.name] = f.value
	}

	assert.Equal(t, false, flags["enable-automation"])
	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, true, flags["ignore-certificate-errors"])
	assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
	assert.Equal(t, "en-US", flags["lang"])
	assert.Equal(t, true, flags["mute-audio"])
	assert.NotContains(t, flags, "")

	assert.NotEmpty(t, AllocatorOptions(cfg))
}

func TestViewport(t *testing.T) {
	w, h := viewport(nil)
	assert.Equal(t, int64(defaultViewportWidth), w)
	assert.Equal(t, int64(defaultViewportHeight), h)

	w, h = viewport(map[string]int{"width": 800, "height": 0})
	assert.Equal(t, int64(800), w)
	assert.Equal(t, int64(defaultViewportHeight), h)
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"label[for=\"gender-radio-3\"]"`, jsString(`label[for="gender-radio-3"]`))
}

// TestInteractiveSession runs the full layer stack against a local page.
func TestInteractiveSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome or Chromium binary on PATH")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	shots := t.TempDir()
	cfg := config.BrowserConfig{
		Headless:      true,
		ExecPath:      chrome,
		LaunchTimeout: 30 * time.Second,
		ScreenshotDir: shots,
	}
	logger := zaptest.NewLogger(t)
	sc := session.New(NewProvisioner(cfg, apiclient.Options{BaseURL: srv.URL}, logger), logger, session.WithCloseTimeout(15*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	err := session.Use(ctx, sc, func(ctx context.Context, s session.Surface) error {
		require.Equal(t, session.KindInteractive, s.Kind)
		require.NotNil(t, s.Page)
		require.NotNil(t, s.API)
		page := s.Page

		require.NoError(t, page.Navigate(ctx, srv.URL))
		title, err := page.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Fixture Page", title)

		require.NoError(t, page.Fill(ctx, "#name", "Ada"))
		require.NoError(t, page.Click(ctx, "#go"))
		require.NoError(t, page.WaitVisible(ctx, "#out"))
		text, err := page.Text(ctx, "#out")
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada", text)

		short, cancelShort := context.WithTimeout(ctx, 300*time.Millisecond)
		assert.Error(t, page.WaitVisible(short, "#hidden"), "hidden element never becomes visible")
		cancelShort()
		require.NoError(t, page.WaitPresent(ctx, "#hidden"))

		_, err = page.Text(ctx, "#missing")
		assert.ErrorIs(t, err, errNoElement)

		items, err := page.Texts(ctx, ".item")
		require.NoError(t, err)
		assert.Equal(t, []string{"One", "Two", "Three"}, items)
		n, err := page.Count(ctx, ".item")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		upload := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(upload, []byte("x"), 0o644))
		require.NoError(t, page.SetFiles(ctx, "#upload", upload))
		var fileName string
		require.NoError(t, page.Evaluate(ctx, `document.querySelector('#upload').files[0].name`, &fileName))
		assert.Equal(t, "a.txt", fileName)

		assert.Error(t, page.Drag(ctx, ".item", 0, 9))

		path, err := page.Screenshot(ctx, "fixture page")
		require.NoError(t, err)
		assert.FileExists(t, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, session.StateClosed, sc.State())

	_, err = sc.Page()
	assert.ErrorIs(t, err, schemas.ErrLifecycle)
}
