package tails_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/utils"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
	"github.com/ajna-inc/revreg/pkg/revocation/tails"
)

type tailsFixture struct {
	ctx    *corectx.AgentContext
	client *tails.Client
	srv    *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	// failures makes the next n uploads fail with a 500
	failures int
	// echoLocation overrides the location reported after an upload
	echoLocation string
}

func newTailsFixture(t *testing.T) *tailsFixture {
	t.Helper()
	f := &tailsFixture{files: make(map[string][]byte)}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := filepath.Base(r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			f.mu.Lock()
			if f.failures > 0 {
				f.failures--
				f.mu.Unlock()
				http.Error(w, "busy", http.StatusInternalServerError)
				return
			}
			echo := f.echoLocation
			f.mu.Unlock()

			file, _, err := r.FormFile("tails")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			f.mu.Lock()
			f.files[hash] = data
			f.mu.Unlock()
			if echo != "" {
				fmt.Fprint(w, echo)
				return
			}
			fmt.Fprintf(w, "http://%s/hash/%s", r.Host, hash)
		case http.MethodGet:
			f.mu.Lock()
			data, ok := f.files[hash]
			f.mu.Unlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		}
	}))
	t.Cleanup(f.srv.Close)

	f.ctx = corectx.NewAgentContext(corectx.AgentContextOptions{
		Context: context.Background(),
		Config: &corectx.AgentConfig{
			TailsServerBaseUrl:     f.srv.URL,
			TailsDirectory:         t.TempDir(),
			TailsUploadMaxAttempts: 3,
			TailsUploadInterval:    time.Millisecond,
		},
	})
	f.client = tails.NewClient(tails.NewHttpTailsServer(f.srv.URL, nil), f.srv.Client(), logger.NewNullLogger())
	return f
}

func (f *tailsFixture) writeTailsFile(t *testing.T, content []byte) (hash string, path string) {
	t.Helper()
	hash = utils.TailsHash(content)
	path = filepath.Join(t.TempDir(), hash)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return hash, path
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	f := newTailsFixture(t)
	content := []byte("tails file content")
	hash, path := f.writeTailsFile(t, content)

	location, err := f.client.Upload(f.ctx, hash, path)
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/hash/"+hash, location)
	assert.Equal(t, location, f.client.FileUrl(hash))

	localPath, err := f.client.Download(f.ctx, hash)
	require.NoError(t, err)
	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	f := newTailsFixture(t)
	f.failures = 2
	hash, path := f.writeTailsFile(t, []byte("retry me"))

	location, err := f.client.Upload(f.ctx, hash, path)
	require.NoError(t, err)
	assert.Equal(t, f.client.FileUrl(hash), location)
}

func TestUploadGivesUpAfterMaxAttempts(t *testing.T) {
	f := newTailsFixture(t)
	f.failures = 10
	hash, path := f.writeTailsFile(t, []byte("never lands"))

	_, err := f.client.Upload(f.ctx, hash, path)
	require.Error(t, err)
}

func TestUploadMissingLocalFile(t *testing.T) {
	f := newTailsFixture(t)

	_, err := f.client.Upload(f.ctx, "somehash", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, reverrors.IsNotFound(err))
}

func TestUploadRejectsUnexpectedLocation(t *testing.T) {
	f := newTailsFixture(t)
	f.echoLocation = "http://evil.example/hash/other"
	hash, path := f.writeTailsFile(t, []byte("misdirected"))

	_, err := f.client.Upload(f.ctx, hash, path)
	require.Error(t, err)
	assert.True(t, reverrors.IsIntegrity(err))
}

func TestDownloadVerifiesContentHash(t *testing.T) {
	f := newTailsFixture(t)
	hash := utils.TailsHash([]byte("the real content"))

	// The server serves different bytes than the hash promises
	f.mu.Lock()
	f.files[hash] = []byte("tampered content")
	f.mu.Unlock()

	_, err := f.client.Download(f.ctx, hash)
	require.Error(t, err)
	assert.True(t, reverrors.IsIntegrity(err))

	// The corrupt download must not be left behind
	_, statErr := os.Stat(filepath.Join(f.ctx.Config.TailsDirectory, hash))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadUsesVerifiedLocalCopy(t *testing.T) {
	f := newTailsFixture(t)
	content := []byte("already here")
	hash := utils.TailsHash(content)
	require.NoError(t, os.WriteFile(filepath.Join(f.ctx.Config.TailsDirectory, hash), content, 0o644))

	// Nothing was ever uploaded, so a real fetch would 404
	localPath, err := f.client.Download(f.ctx, hash)
	require.NoError(t, err)
	got, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadUnknownHash(t *testing.T) {
	f := newTailsFixture(t)

	_, err := f.client.Download(f.ctx, utils.TailsHash([]byte("nowhere")))
	require.Error(t, err)
	assert.True(t, reverrors.IsNotFound(err))
}
