// Package pinning implements the Pinata pinFileToIPFS client: a
// multipart upload of a JSON document, returning the content hash and
// the public gateway URL built from it.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charvault/server/config"
	"go.uber.org/zap"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Client uploads payloads to the Pinata pinning API.
type Client struct {
	endpoint  string
	gateway   string
	apiKey    string
	secretKey string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a Pinata Client from config. Credentials are passed
// as the pinata_api_key / pinata_secret_api_key headers on every upload.
func NewClient(cfg config.PinataConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		gateway:   strings.TrimRight(cfg.Gateway, "/"),
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pin uploads the payload as a JSON file and returns its IPFS hash and
// gateway URL.
func (c *Client) Pin(ctx context.Context, name string, payload map[string]interface{}) (string, string, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("pinning: encode payload: %w", err)
	}

	filename := fmt.Sprintf("%s_%d.json",
		nonAlnum.ReplaceAllString(strings.ToLower(name), "_"),
		time.Now().UnixMilli(),
	)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", "", fmt.Errorf("pinning: build form: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return "", "", fmt.Errorf("pinning: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", "", fmt.Errorf("pinning: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return "", "", fmt.Errorf("pinning: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("pinning: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("pinata upload rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)),
		)
		return "", "", fmt.Errorf("pinning: upload rejected with status %d", resp.StatusCode)
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("pinning: decode response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", "", fmt.Errorf("pinning: response missing IpfsHash")
	}

	return out.IpfsHash, c.gateway + "/ipfs/" + out.IpfsHash, nil
}
