package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxBodyText caps the body text returned to the agent.
const maxBodyText = 64 << 10

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg    *contract.Config
	mgr        contract.CacheManager
	dispatcher Dispatcher
}

// responseView is the JSON shape returned to the agent.
type responseView struct {
	Found     *bool                   `json:"found,omitempty"`
	Status    int                     `json:"status,omitempty"`
	Type      string                  `json:"type,omitempty"`
	Header    http.Header             `json:"header,omitempty"`
	Body      string                  `json:"body,omitempty"`
	BodyBytes int                     `json:"body_bytes,omitempty"`
	Truncated bool                    `json:"truncated,omitempty"`
	Binary    bool                    `json:"binary,omitempty"`
	Caches    []string                `json:"caches,omitempty"`
	Entries   []schema.CacheEntryInfo `json:"entries,omitempty"`
}

func (h *toolHandler) storage() (contract.CacheStorage, error) {
	if h.mgr == nil {
		return nil, errors.New("cache storage is not initialized")
	}
	storage := h.mgr.GetCacheStorage()
	if storage == nil {
		return nil, errors.New("cache storage is not initialized")
	}
	return storage, nil
}

func (h *toolHandler) handleListCaches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storage, err := h.storage()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := request.GetString("cache_name", "")
	names, err := storage.Keys(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing caches failed: %v", err)), nil
	}
	entries, err := storage.Entries(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing entries failed: %v", err)), nil
	}

	return jsonResult(responseView{Caches: names, Entries: entries})
}

func (h *toolHandler) handleCacheStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storage, err := h.storage()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := storage.GetStatus()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}
	return jsonResult(status)
}

func (h *toolHandler) handleMatchRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := h.newRequest(ctx, http.MethodGet, request.GetString("url", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	storage, err := h.storage()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stored, err := storage.Match(ctx, req)
	if errors.Is(err, contract.ErrCacheMiss) {
		found := false
		return jsonResult(responseView{Found: &found})
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("match failed: %v", err)), nil
	}

	found := true
	view := bodyView(stored.Status, stored.Header, stored.Body)
	view.Found = &found
	view.Type = string(stored.Type)
	return jsonResult(view)
}

func (h *toolHandler) handleFetchThroughWorker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.dispatcher == nil {
		return mcp.NewToolResultError("no worker is running"), nil
	}

	method := strings.ToUpper(request.GetString("method", http.MethodGet))
	req, err := h.newRequest(ctx, method, request.GetString("url", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if request.GetBool("navigate", false) {
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	} else {
		req.Header.Set("Sec-Fetch-Mode", "no-cors")
	}

	resp, err := h.dispatcher.Fetch(ctx, request.GetString("client_id", "mcp"), req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading response failed: %v", err)), nil
	}
	return jsonResult(bodyView(resp.StatusCode, resp.Header, body))
}

// newRequest builds a request for rawURL, resolving paths against the origin.
func (h *toolHandler) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	if rawURL == "" {
		return nil, errors.New("url is required")
	}
	u, err := h.baseCfg.ResolvePath(rawURL)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

func bodyView(status int, header http.Header, body []byte) responseView {
	view := responseView{Status: status, Header: header, BodyBytes: len(body)}
	if !utf8.Valid(body) {
		view.Binary = true
		return view
	}
	if len(body) > maxBodyText {
		// Cut on a rune boundary so the text stays valid UTF-8
		cut := maxBodyText
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
		view.Truncated = true
	}
	view.Body = string(body)
	return view
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
