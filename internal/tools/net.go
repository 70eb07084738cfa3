package tools

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes caps web_fetch responses.
const maxFetchBytes = 512 * 1024

var fetchClient = &http.Client{Timeout: 30 * time.Second}

func registerNetTools(r *Registry) {
	_ = r.Register(&Tool{
		Name:        "web_fetch",
		Description: "Fetch the body of an HTTP or HTTPS URL",
		Params: map[string]Param{
			"url": {Type: "string", Description: "URL to fetch"},
		},
		Required: []string{"url"},
		Risk:     RiskMedium,
		Func:     webFetch,
	})
}

func webFetch(ctx context.Context, args map[string]any) Result {
	url, ok := stringArg(args, "url")
	if !ok {
		return Fail("missing required parameter: url")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Fail("unsupported url scheme: %s", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Fail("build request: %v", err)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return Fail("fetch %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Fail("read body of %s: %v", url, err)
	}
	return OK(map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	})
}
