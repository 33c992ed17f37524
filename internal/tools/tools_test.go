package tools

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
)

func TestTerminate(t *testing.T) {
	term := NewTerminate()
	assert.False(t, term.Terminated())

	_, err := term.Execute(context.Background(), `{"status":"maybe"}`)
	require.Error(t, err)
	assert.False(t, term.Terminated())

	out, err := term.Execute(context.Background(), `{"status":"success"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.True(t, term.Terminated())
	assert.Equal(t, "success", term.Status())
}

func TestFile(t *testing.T) {
	root := t.TempDir()
	f := NewFile(root)
	ctx := context.Background()

	out, err := f.Execute(ctx, `{"action":"write","path":"notes/a.txt","content":"hello"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 bytes")

	data, err := os.ReadFile(filepath.Join(root, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = f.Execute(ctx, `{"action":"read","path":"notes/a.txt","content":""}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = f.Execute(ctx, `{"action":"list","path":".","content":""}`)
	require.NoError(t, err)
	assert.Equal(t, "notes/\n", out)

	_, err = f.Execute(ctx, `{"action":"delete","path":"a","content":""}`)
	assert.Error(t, err)

	_, err = f.Execute(ctx, `not json`)
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/ws/a/b", resolvePath("/ws", "a/b"))
	assert.Equal(t, "/etc/hosts", resolvePath("/ws", "/etc/hosts"))
	assert.Equal(t, "rel", resolvePath("", "rel"))
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxOutputBytes+10)
	out := truncate(long)
	assert.Contains(t, out, "(truncated)")
	assert.Equal(t, "short", truncate([]byte("short")))
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestShell(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()
	sh := NewShell(dir, 5*time.Second)
	ctx := context.Background()

	out, err := sh.Execute(ctx, `{"command":"echo hi && pwd"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, filepath.Base(dir))

	out, err = sh.Execute(ctx, `{"command":"echo oops >&2; exit 3"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "oops")
	assert.Contains(t, out, "exit status 3")

	out, err = sh.Execute(ctx, `{"command":"true"}`)
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out)

	_, err = sh.Execute(ctx, `{"command":""}`)
	assert.Error(t, err)
}

func TestShellTimeout(t *testing.T) {
	requireBash(t)
	sh := NewShell(t.TempDir(), 100*time.Millisecond)

	_, err := sh.Execute(context.Background(), `{"command":"sleep 5"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestShellClose(t *testing.T) {
	requireBash(t)
	sh := NewShell(t.TempDir(), 10*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := sh.Execute(context.Background(), `{"command":"sleep 5"}`)
		done <- err
	}()

	require.Eventually(t, func() bool {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		return len(sh.procs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sh.Close())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("command was not killed")
	}

	_, err := sh.Execute(context.Background(), `{"command":"echo hi"}`)
	assert.ErrorIs(t, err, errShellClosed)
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><head><style>p{}</style></head><body><p>Hello</p>  <b>world</b></body></html>`))
	}))
	defer srv.Close()

	web := &Web{http: srv.Client()}
	ctx := context.Background()

	out, err := web.Execute(ctx, `{"action":"fetch","query":"","url":"`+srv.URL+`","count":0}`)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	_, err = web.Execute(ctx, `{"action":"fetch","query":"","url":"`+srv.URL+`/missing","count":0}`)
	assert.Error(t, err)

	_, err = web.Execute(ctx, `{"action":"search","query":"","url":"","count":0}`)
	assert.Error(t, err)

	_, err = web.Execute(ctx, `{"action":"crawl","query":"","url":"","count":0}`)
	assert.Error(t, err)

	assert.NoError(t, web.Close())
}
