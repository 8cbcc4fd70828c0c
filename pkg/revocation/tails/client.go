package tails

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/encoding"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// FullTailsServer extends TailsServer with the canonical download URL of a
// tails hash
type FullTailsServer interface {
	TailsServer
	FileUrl(tailsHash string) string
}

// Client moves tails files between the local tails directory and the tails
// server, verifying content hashes on the way down
type Client struct {
	server FullTailsServer
	http   *http.Client
	log    logger.Logger
}

// NewClient creates a tails transfer client
func NewClient(server FullTailsServer, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{server: server, http: httpClient, log: log}
}

// FileUrl returns the canonical public URL of a tails hash
func (c *Client) FileUrl(tailsHash string) string {
	return c.server.FileUrl(tailsHash)
}

// Upload pushes a local tails file to the tails server and returns its public
// location. Transient upload failures are retried with exponential backoff up
// to the configured attempt bound; the location reported by the server must
// match the canonical URL for the hash.
func (c *Client) Upload(ctx *corectx.AgentContext, tailsHash string, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", reverrors.New(reverrors.CodeNotFound, fmt.Sprintf("tails file not found: %s", localPath), err)
	}

	maxAttempts, interval, multiplier := uploadPolicy(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.Multiplier = multiplier
	var location string
	operation := func() error {
		loc, err := c.server.UploadTails(ctx, tailsHash, localPath)
		if err != nil {
			if !reverrors.ShouldRetry(err) {
				return backoff.Permanent(err)
			}
			c.log.Warnf("Tails upload attempt failed for %s: %v", tailsHash, err)
			return err
		}
		location = loc
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(maxAttempts-1)),
		requestContext(ctx),
	))
	if err != nil {
		return "", err
	}

	if expected := c.server.FileUrl(tailsHash); location != expected {
		return "", reverrors.Newf(reverrors.CodeIntegrity, "tails server returned unexpected location %q, expected %q", location, expected)
	}
	c.log.Debugf("Uploaded tails file %s to %s", tailsHash, location)
	return location, nil
}

// Download fetches the tails file for a hash into the local tails directory
// and returns the local path. The downloaded bytes must hash back to
// tailsHash; a mismatch discards the file and fails with an integrity error.
// An existing verified local copy short-circuits the download.
func (c *Client) Download(ctx *corectx.AgentContext, tailsHash string) (string, error) {
	dir := tailsDirectory(ctx)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	localPath := filepath.Join(dir, tailsHash)

	if hash, err := hashFile(localPath); err == nil {
		if hash == tailsHash {
			return localPath, nil
		}
		// Stale or corrupt copy; refetch
		os.Remove(localPath)
	}

	url := c.server.FileUrl(tailsHash)
	req, err := http.NewRequestWithContext(requestContext(ctx), http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", reverrors.New(reverrors.CodeTransient, "tails download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", reverrors.Newf(reverrors.CodeNotFound, "tails file not found on server: %s", tailsHash)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", reverrors.Newf(reverrors.CodeTransient, "tails download failed: %s", resp.Status)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return "", err
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(file, hasher), resp.Body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(localPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", reverrors.New(reverrors.CodeTransient, "tails download interrupted", copyErr)
	}

	actual := encoding.EncodeBase58(hasher.Sum(nil))
	if actual != tailsHash {
		os.Remove(localPath)
		return "", reverrors.Newf(reverrors.CodeIntegrity, "tails hash mismatch: expected %s, got %s", tailsHash, actual)
	}

	c.log.Debugf("Downloaded tails file %s to %s", tailsHash, localPath)
	return localPath, nil
}

// HashFile computes the base58 SHA-256 hash of a file on disk
func HashFile(path string) (string, error) {
	return hashFile(path)
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return encoding.EncodeBase58(hasher.Sum(nil)), nil
}

func tailsDirectory(ctx *corectx.AgentContext) string {
	if ctx != nil && ctx.Config != nil && ctx.Config.TailsDirectory != "" {
		return ctx.Config.TailsDirectory
	}
	return filepath.Join(os.TempDir(), "revreg-tails")
}

const defaultUploadInterval = 500 * time.Millisecond

func uploadPolicy(ctx *corectx.AgentContext) (attempts int, interval time.Duration, multiplier float64) {
	attempts = 5
	interval = defaultUploadInterval
	multiplier = 2.0
	if ctx == nil || ctx.Config == nil {
		return
	}
	if ctx.Config.TailsUploadMaxAttempts > 0 {
		attempts = ctx.Config.TailsUploadMaxAttempts
	}
	if ctx.Config.TailsUploadInterval > 0 {
		interval = ctx.Config.TailsUploadInterval
	}
	if ctx.Config.TailsUploadBackoff > 0 {
		multiplier = ctx.Config.TailsUploadBackoff
	}
	return
}
