package tails

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// TailsServer uploads tails files to a publicly reachable location and
// returns the URL holders download from
type TailsServer interface {
	UploadTails(ctx *corectx.AgentContext, tailsHash string, localPath string) (string, error)
}

// HttpTailsServer talks to an Indy-style tails server over HTTP. Files are
// addressed by their hash: PUT <base>/hash/<tailsHash>.
type HttpTailsServer struct {
	baseUrl string
	client  *http.Client
}

// NewHttpTailsServer creates a tails server client for the given base URL
func NewHttpTailsServer(baseUrl string, client *http.Client) *HttpTailsServer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HttpTailsServer{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		client:  client,
	}
}

// FileUrl returns the canonical download URL for a tails hash
func (s *HttpTailsServer) FileUrl(tailsHash string) string {
	return fmt.Sprintf("%s/hash/%s", s.baseUrl, tailsHash)
}

// UploadTails uploads the local tails file as a multipart PUT and returns the
// location reported by the server
func (s *HttpTailsServer) UploadTails(ctx *corectx.AgentContext, tailsHash string, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", reverrors.New(reverrors.CodeNotFound, fmt.Sprintf("tails file not found: %s", localPath), err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("tails", tailsHash)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	url := s.FileUrl(tailsHash)
	req, err := http.NewRequestWithContext(requestContext(ctx), http.MethodPut, url, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", reverrors.New(reverrors.CodeTransient, "tails upload failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", reverrors.Newf(reverrors.CodeTransient, "tails upload failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	// Servers echo the stored location; fall back to the canonical URL
	location := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if location == "" {
		location = url
	}
	return location, nil
}

func requestContext(ctx *corectx.AgentContext) context.Context {
	if ctx != nil && ctx.Context != nil {
		return ctx.Context
	}
	return context.Background()
}
