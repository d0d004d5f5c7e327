package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"icpquery/internal/config"
	"icpquery/internal/store"
)

const (
	httpCheckTimeout  = 5 * time.Second
	storeCheckTimeout = 5 * time.Second
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTemplateLibrary verifies the background template directory holds at
// least one PNG. Images are not decoded here.
func CheckTemplateLibrary(dir string) Result {
	const name = "Template library"

	if strings.TrimSpace(dir) == "" {
		return Result{Name: name, Detail: "template_dir not set"}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	if len(matches) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no PNG templates)", dir)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d templates)", dir, len(matches))}
}

// CheckModelFile verifies the similarity model exists and is readable.
func CheckModelFile(path string) Result {
	const name = "Similarity model"

	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "similarity_model not set"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDetector verifies the box-detection sidecar answers HTTP. Any response
// counts as reachable; the sidecar has no dedicated health route.
func CheckDetector(ctx context.Context, baseURL string) Result {
	const name = "Detector sidecar"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	status, err := probe(ctx, base+"/", "")
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (HTTP %d)", base, status)}
}

// CheckRegistryPortal verifies the registry portal is reachable.
func CheckRegistryPortal(ctx context.Context, portalURL, userAgent string) Result {
	const name = "Registry portal"

	portal := strings.TrimSpace(portalURL)
	if portal == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	status, err := probe(ctx, portal, userAgent)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	if status >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("%s (HTTP %d)", portal, status)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (HTTP %d)", portal, status)}
}

// CheckStore opens the configured record store and pings it.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	name := "Record store"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	name = fmt.Sprintf("Record store (%s)", cfg.Store.Driver)

	checkCtx, cancel := context.WithTimeout(ctx, storeCheckTimeout)
	defer cancel()

	s, err := store.Open(checkCtx, cfg, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer s.Close()
	if err := s.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func probe(ctx context.Context, url, userAgent string) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, httpCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: httpCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// summarizeHTTPError produces a human-readable summary for reachability failures.
func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
