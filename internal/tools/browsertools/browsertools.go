// Package browsertools provides the built-in tools for reaching the web:
// opening pages for the user and reading or searching them for the model.
//
// Three tools are exported via [NewTools]:
//   - "open_url"   — open a URL in a browser window for the user.
//   - "web_search" — run a web search and return ranked hits.
//   - "read_page"  — fetch a page reduced to readable text.
//
// open_url goes through [host.WindowManager]; the other two go through
// [host.Browser]. All handlers are safe for concurrent use.
package browsertools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// maxInlineBytes caps how much page text is echoed into the conversational
// message fed back to the model.
const maxInlineBytes = 8 << 10

// maxSearchHits caps how many results web_search reports.
const maxSearchHits = 8

// urlArgs is the decoded input shared by the URL-addressed tools.
type urlArgs struct {
	// URL is the absolute location to open or fetch.
	URL string `json:"url"`
}

// searchArgs is the decoded input for the "web_search" tool.
type searchArgs struct {
	// Query is the search string.
	Query string `json:"query"`
}

func openURL(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a urlArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: open_url: %w", err)
	}
	if a.URL == "" {
		return engine.ToolResult{}, errors.New(`browsertools: open_url: missing required argument "url"`)
	}
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	id, err := hc.Windows.OpenWindow(ctx, host.WindowSpec{App: "browser", URL: a.URL})
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: open_url: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Opened %s in window %s.", a.URL, id),
		Data:    map[string]any{"window_id": id, "url": a.URL},
	}, nil
}

func webSearch(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a searchArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: web_search: %w", err)
	}
	if a.Query == "" {
		return engine.ToolResult{}, errors.New(`browsertools: web_search: missing required argument "query"`)
	}
	if hc.Browser == nil {
		return tools.Unavailable("web"), nil
	}

	hits, err := hc.Browser.Search(ctx, a.Query)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: web_search: %w", err)
	}
	if len(hits) == 0 {
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("The search for %q returned no results.", a.Query),
			Data:    hits,
		}, nil
	}
	if len(hits) > maxSearchHits {
		hits = hits[:maxSearchHits]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top results for %q:\n", a.Query)
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, hit.Title, hit.URL)
		if hit.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", hit.Snippet)
		}
	}
	return engine.ToolResult{
		Success: true,
		Message: strings.TrimRight(b.String(), "\n"),
		Data:    hits,
	}, nil
}

func readPage(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a urlArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: read_page: %w", err)
	}
	if a.URL == "" {
		return engine.ToolResult{}, errors.New(`browsertools: read_page: missing required argument "url"`)
	}
	if hc.Browser == nil {
		return tools.Unavailable("web"), nil
	}

	page, err := hc.Browser.FetchURL(ctx, a.URL)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("browsertools: read_page: %w", err)
	}
	if page.Text == "" {
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("The page at %s has no readable text.", page.URL),
			Data:    map[string]any{"url": page.URL, "title": page.Title},
		}, nil
	}

	var b strings.Builder
	if page.Title != "" {
		fmt.Fprintf(&b, "%s (%s)\n", page.Title, page.URL)
	} else {
		fmt.Fprintf(&b, "%s\n", page.URL)
	}
	b.WriteString(tools.Clip(page.Text, maxInlineBytes))
	return engine.ToolResult{
		Success: true,
		Message: b.String(),
		Data:    map[string]any{"url": page.URL, "title": page.Title},
	}, nil
}

// NewTools constructs the web tool set.
func NewTools() []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "open_url",
			Description: "Open a URL in a browser window so the user can see the page.",
			Category:    engine.CategoryBrowser,
			Parameters: map[string]engine.ParamSpec{
				"url": {
					Type:        engine.TypeString,
					Description: "Absolute URL to open.",
				},
			},
			Handler: openURL,
		},
		{
			Name:        "web_search",
			Description: "Search the web and return the top results with titles, URLs, and snippets.",
			Category:    engine.CategoryBrowser,
			Parameters: map[string]engine.ParamSpec{
				"query": {
					Type:        engine.TypeString,
					Description: "Search query.",
				},
			},
			Handler: webSearch,
		},
		{
			Name:        "read_page",
			Description: "Fetch a web page and return its readable text content, without opening a window.",
			Category:    engine.CategoryBrowser,
			Parameters: map[string]engine.ParamSpec{
				"url": {
					Type:        engine.TypeString,
					Description: "Absolute URL to fetch.",
				},
			},
			Handler: readPage,
		},
	}
}
