package bgremoval

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"wardrobe/internal/domain"
)

// RemoteOptions configures a RemoteRemover.
type RemoteOptions struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// RemoteRemover posts the photo as PNG to a rembg compatible HTTP service
// and expects a PNG with an alpha channel back.
type RemoteRemover struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

func NewRemoteRemover(opts RemoteOptions) *RemoteRemover {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteRemover{
		httpClient: client,
		endpoint:   strings.TrimSpace(opts.Endpoint),
		token:      strings.TrimSpace(opts.APIKey),
	}
}

func (r *RemoteRemover) RemoveBackground(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if r == nil || r.endpoint == "" {
		return nil, processingError("remote remover not configured")
	}
	if img == nil || img.Bounds().Empty() {
		return nil, processingError("empty raster")
	}

	var body bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&body, img); err != nil {
		return nil, processingError("encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &body)
	if err != nil {
		return nil, processingError("build request: %v", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bgremoval: remote call: %w: %w", domain.ErrProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return nil, processingError("remote http %d: %s", resp.StatusCode, text)
		}
		return nil, processingError("remote http %d", resp.StatusCode)
	}

	decoded, err := png.Decode(resp.Body)
	if err != nil {
		return nil, processingError("decode response: %v", err)
	}
	want := img.Bounds()
	got := decoded.Bounds()
	if got.Dx() != want.Dx() || got.Dy() != want.Dy() {
		return nil, processingError("remote returned %dx%d for a %dx%d input", got.Dx(), got.Dy(), want.Dx(), want.Dy())
	}
	if n, ok := decoded.(*image.NRGBA); ok && got.Min == (image.Point{}) {
		return n, nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, got.Dx(), got.Dy()))
	draw.Draw(out, out.Bounds(), decoded, got.Min, draw.Src)
	return out, nil
}
