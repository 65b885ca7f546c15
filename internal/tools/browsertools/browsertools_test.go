package browsertools

import (
	"context"
	"strings"
	"testing"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/pkg/host"
	"github.com/chatit-cloud/neuroos/pkg/host/mock"
)

func TestNewToolsRegister(t *testing.T) {
	t.Parallel()

	reg := engine.NewRegistry()
	if err := reg.RegisterAll(NewTools()); err != nil {
		t.Fatalf("RegisterAll() unexpected error: %v", err)
	}
	for _, name := range []string{"open_url", "web_search", "read_page"} {
		def, ok := reg.Get(name)
		if !ok {
			t.Errorf("tool %q not registered", name)
			continue
		}
		if def.Category != engine.CategoryBrowser {
			t.Errorf("tool %q category = %q, want %q", name, def.Category, engine.CategoryBrowser)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// open_url
// ─────────────────────────────────────────────────────────────────────────────

func TestOpenURL(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	res, err := openURL(context.Background(), map[string]any{"url": "https://example.com"}, h.Context())
	if err != nil {
		t.Fatalf("openURL() unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("openURL() result not successful: %q", res.Message)
	}

	wins, _ := h.ListWindows(context.Background())
	if len(wins) != 1 || wins[0].App != "browser" {
		t.Errorf("windows = %+v, want one browser window", wins)
	}

	calls := h.Calls()
	spec, ok := calls[0].Args[0].(host.WindowSpec)
	if !ok {
		t.Fatalf("OpenWindow arg = %T, want host.WindowSpec", calls[0].Args[0])
	}
	if spec.URL != "https://example.com" {
		t.Errorf("window URL = %q, want the requested page", spec.URL)
	}
}

func TestOpenURLWithoutWindowCapability(t *testing.T) {
	t.Parallel()

	res, err := openURL(context.Background(), map[string]any{"url": "https://example.com"}, &host.Context{})
	if err != nil {
		t.Fatalf("openURL() unexpected error: %v", err)
	}
	if res.Success {
		t.Error("openURL() should fail gracefully without window capability")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// web_search
// ─────────────────────────────────────────────────────────────────────────────

func TestWebSearch(t *testing.T) {
	t.Parallel()

	h := &mock.Host{SearchResults: []host.SearchResult{
		{Title: "Go", URL: "https://go.dev", Snippet: "The Go programming language."},
		{Title: "Go wiki", URL: "https://en.wikipedia.org/wiki/Go"},
	}}
	res, err := webSearch(context.Background(), map[string]any{"query": "golang"}, h.Context())
	if err != nil {
		t.Fatalf("webSearch() unexpected error: %v", err)
	}
	want := "Top results for \"golang\":\n" +
		"1. Go\n   https://go.dev\n   The Go programming language.\n" +
		"2. Go wiki\n   https://en.wikipedia.org/wiki/Go"
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
}

func TestWebSearchNoResults(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	res, err := webSearch(context.Background(), map[string]any{"query": "xyzzy"}, h.Context())
	if err != nil {
		t.Fatalf("webSearch() unexpected error: %v", err)
	}
	if !strings.Contains(res.Message, "no results") {
		t.Errorf("message = %q, want a no-results phrasing", res.Message)
	}
}

func TestWebSearchCapsHits(t *testing.T) {
	t.Parallel()

	hits := make([]host.SearchResult, maxSearchHits+5)
	for i := range hits {
		hits[i] = host.SearchResult{Title: "t", URL: "https://example.com"}
	}
	h := &mock.Host{SearchResults: hits}

	res, err := webSearch(context.Background(), map[string]any{"query": "q"}, h.Context())
	if err != nil {
		t.Fatalf("webSearch() unexpected error: %v", err)
	}
	got, ok := res.Data.([]host.SearchResult)
	if !ok {
		t.Fatalf("Data = %T, want []host.SearchResult", res.Data)
	}
	if len(got) != maxSearchHits {
		t.Errorf("Data has %d hits, want capped at %d", len(got), maxSearchHits)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// read_page
// ─────────────────────────────────────────────────────────────────────────────

func TestReadPage(t *testing.T) {
	t.Parallel()

	h := &mock.Host{Pages: map[string]host.Page{
		"https://example.com/post": {
			URL:   "https://example.com/post",
			Title: "A post",
			Text:  "Interesting words.",
		},
	}}
	res, err := readPage(context.Background(), map[string]any{"url": "https://example.com/post"}, h.Context())
	if err != nil {
		t.Fatalf("readPage() unexpected error: %v", err)
	}
	want := "A post (https://example.com/post)\nInteresting words."
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
}

func TestReadPageNoText(t *testing.T) {
	t.Parallel()

	h := &mock.Host{}
	res, err := readPage(context.Background(), map[string]any{"url": "https://example.com/empty"}, h.Context())
	if err != nil {
		t.Fatalf("readPage() unexpected error: %v", err)
	}
	if !strings.Contains(res.Message, "no readable text") {
		t.Errorf("message = %q, want the empty-page phrasing", res.Message)
	}
}

func TestReadPageClipsLongText(t *testing.T) {
	t.Parallel()

	h := &mock.Host{Pages: map[string]host.Page{
		"https://example.com/long": {
			URL:  "https://example.com/long",
			Text: strings.Repeat("w", maxInlineBytes+500),
		},
	}}
	res, err := readPage(context.Background(), map[string]any{"url": "https://example.com/long"}, h.Context())
	if err != nil {
		t.Fatalf("readPage() unexpected error: %v", err)
	}
	if !strings.Contains(res.Message, "[truncated") {
		t.Error("long page text should be clipped in the message")
	}
}

func TestBrowserToolsWithoutBrowserCapability(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		run  func() (engine.ToolResult, error)
	}{
		{"web_search", func() (engine.ToolResult, error) {
			return webSearch(context.Background(), map[string]any{"query": "x"}, &host.Context{})
		}},
		{"read_page", func() (engine.ToolResult, error) {
			return readPage(context.Background(), map[string]any{"url": "https://x"}, &host.Context{})
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := tc.run()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success {
				t.Error("should fail gracefully without browser capability")
			}
		})
	}
}
