package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"icpquery/internal/services"
)

const defaultTimeout = 10 * time.Second

// Box is an axis-aligned bounding box in image pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromCorners converts [x1, y1, x2, y2] to a Box.
func FromCorners(x1, y1, x2, y2 int) Box {
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Detector finds glyph boxes in a PNG image.
type Detector interface {
	Detect(ctx context.Context, png []byte) ([]Box, error)
}

// HTTPDetector calls the OCR detection sidecar.
type HTTPDetector struct {
	endpoint   string
	httpClient *http.Client
}

// Option customizes the detector.
type Option func(*HTTPDetector)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *HTTPDetector) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// NewHTTPDetector returns a detector posting to baseURL + "/det".
func NewHTTPDetector(baseURL string, timeout time.Duration, opts ...Option) *HTTPDetector {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &HTTPDetector{
		endpoint:   strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/det",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Boxes [][]float64 `json:"boxes"`
}

// Detect sends png to the sidecar and returns boxes in the order reported.
func (d *HTTPDetector) Detect(ctx context.Context, png []byte) ([]Box, error) {
	payload, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(png)})
	if err != nil {
		return nil, fmt.Errorf("encode detect request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detect", "build request", d.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "detect", "post image", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "detect", "read response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrTransport, "detect", "post image",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded detectResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransport, "detect", "decode response", "", err)
	}
	boxes := make([]Box, 0, len(decoded.Boxes))
	for i, corners := range decoded.Boxes {
		if len(corners) != 4 {
			return nil, services.Wrap(services.ErrTransport, "detect", "decode response",
				fmt.Sprintf("box %d has %d coordinates", i, len(corners)), nil)
		}
		boxes = append(boxes, FromCorners(int(corners[0]), int(corners[1]), int(corners[2]), int(corners[3])))
	}
	return boxes, nil
}

// Func adapts a function to the Detector interface.
type Func func(ctx context.Context, png []byte) ([]Box, error)

func (f Func) Detect(ctx context.Context, png []byte) ([]Box, error) { return f(ctx, png) }
