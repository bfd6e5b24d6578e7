package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxBundleBytes bounds the oracle response size.
const maxBundleBytes = 1 << 20

// HTTPExtractor calls an extraction oracle over HTTP. The request carries
// the raw text; the response is a findings bundle.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

// NewHTTPExtractor builds the oracle client. A nil client uses
// http.DefaultClient; per-call deadlines come from the caller's context.
func NewHTTPExtractor(url string, client *http.Client) *HTTPExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExtractor{url: url, client: client}
}

func (e *HTTPExtractor) Extract(ctx context.Context, rawText string) (*FindingsBundle, error) {
	body, err := json.Marshal(map[string]string{"text": rawText})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		return nil, err
	}
	return DecodeBundle(data)
}
