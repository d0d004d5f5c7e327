package preflight

import (
	"context"

	"icpquery/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckTemplateLibrary(cfg.Captcha.TemplateDir),
		CheckModelFile(cfg.Captcha.SimilarityModel),
		CheckDetector(ctx, cfg.Captcha.DetectorURL),
		CheckStore(ctx, cfg),
		CheckRegistryPortal(ctx, cfg.Registry.PortalURL, cfg.Registry.UserAgent),
	}
	return results
}

// Failed returns only the failing results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
