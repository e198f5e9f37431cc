// Package qrcode renders the QR image for a quiz link and uploads it to ImgBB.
package qrcode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	qr "github.com/skip2/go-qrcode"
)

const (
	DefaultEndpoint = "https://api.imgbb.com/1/upload"
	DefaultSize     = 256

	placeholderURL = "https://example.com/qr-placeholder-%s.png"
)

type Config struct {
	APIKey   string
	Endpoint string
	Size     int

	HTTPClient *http.Client
}

// Publisher encodes a link as a PNG QR code and stores it on ImgBB.
// Without an API key it skips the upload and hands back a placeholder URL.
type Publisher struct {
	apiKey   string
	endpoint string
	size     int
	client   *http.Client
}

func NewPublisher(c Config) *Publisher {
	p := &Publisher{
		apiKey:   c.APIKey,
		endpoint: c.Endpoint,
		size:     c.Size,
		client:   c.HTTPClient,
	}

	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.size <= 0 {
		p.size = DefaultSize
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 15 * time.Second}
	}

	return p
}

type uploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Publish returns the public URL of a QR image pointing at target.
// The hosted image is removed by ImgBB after expiration.
func (p *Publisher) Publish(ctx context.Context, id, target string, expiration time.Duration) (string, error) {
	png, err := qr.Encode(target, qr.Medium, p.size)
	if err != nil {
		return "", fmt.Errorf("qrcode: encode %s: %w", target, err)
	}

	if p.apiKey == "" {
		slog.WarnContext(ctx, "qrcode: imgbb api key not configured, using placeholder url", "id", id)
		return fmt.Sprintf(placeholderURL, id), nil
	}

	return p.upload(ctx, id, png, expiration)
}

func (p *Publisher) upload(ctx context.Context, id string, png []byte, expiration time.Duration) (string, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	if err := w.WriteField("image", base64.StdEncoding.EncodeToString(png)); err != nil {
		return "", fmt.Errorf("qrcode: write image field: %w", err)
	}
	if err := w.WriteField("name", id); err != nil {
		return "", fmt.Errorf("qrcode: write name field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("qrcode: close form: %w", err)
	}

	q := url.Values{}
	q.Set("expiration", strconv.FormatInt(int64(expiration/time.Second), 10))
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"?"+q.Encode(), body)
	if err != nil {
		return "", fmt.Errorf("qrcode: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("qrcode: upload %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("qrcode: imgbb returned status %d: %s", resp.StatusCode, b)
	}

	var payload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("qrcode: decode imgbb response: %w", err)
	}
	if payload.Data.URL == "" {
		return "", fmt.Errorf("qrcode: imgbb response has no url: status=%d", payload.Status)
	}

	return payload.Data.URL, nil
}
