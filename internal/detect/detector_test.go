package detect_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icpquery/internal/detect"
	"icpquery/internal/services"
)

func TestHTTPDetectorConvertsCorners(t *testing.T) {
	var gotImage []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/det", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Image string `json:"image"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		decoded, err := base64.StdEncoding.DecodeString(body.Image)
		require.NoError(t, err)
		gotImage = decoded
		_, _ = w.Write([]byte(`{"boxes": [[10, 20, 40, 55], [100.9, 5, 130, 30]]}`))
	}))
	t.Cleanup(srv.Close)

	d := detect.NewHTTPDetector(srv.URL+"/", time.Second)
	boxes, err := d.Detect(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), gotImage)
	assert.Equal(t, []detect.Box{
		{X: 10, Y: 20, Width: 30, Height: 35},
		{X: 100, Y: 5, Width: 30, Height: 25},
	}, boxes)
}

func TestHTTPDetectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := detect.NewHTTPDetector(srv.URL, time.Second).Detect(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrTransport)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPDetectorMalformedBox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"boxes": [[1, 2, 3]]}`))
	}))
	t.Cleanup(srv.Close)

	_, err := detect.NewHTTPDetector(srv.URL, time.Second).Detect(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrTransport)
}

func TestHTTPDetectorHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := detect.NewHTTPDetector(srv.URL, time.Second).Detect(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
