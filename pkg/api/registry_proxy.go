package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// registryProxyTimeout bounds the registry proxy round-trip (§5).
const registryProxyTimeout = 10 * time.Second

// RegistryProxy forwards a search query to an external MCP registry
// service (§6: GET /mcps/registry?search=...).
type RegistryProxy struct {
	baseURL string
	client  *http.Client
}

// NewRegistryProxy constructs a RegistryProxy targeting baseURL.
func NewRegistryProxy(baseURL string) *RegistryProxy {
	return &RegistryProxy{baseURL: baseURL, client: &http.Client{Timeout: registryProxyTimeout}}
}

// Search proxies a search query and returns the registry's raw JSON body.
func (p *RegistryProxy) Search(ctx context.Context, search string) ([]byte, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid registry base url")
	}
	q := u.Query()
	q.Set("search", search)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build registry request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "registry request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registry response")
	}
	if resp.StatusCode >= 500 {
		return nil, errors.Errorf("registry returned %d", resp.StatusCode)
	}
	return body, nil
}

// handleMCPRegistry implements GET /mcps/registry?search=... (§6): search
// must be 2-200 characters, proxied with a bounded timeout.
func (s *Server) handleMCPRegistry(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	if len(search) < 2 || len(search) > 200 {
		writeError(w, http.StatusBadRequest, "search must be 2-200 characters")
		return
	}
	if s.cfg.MCPRegistry == nil {
		writeError(w, http.StatusBadGateway, "mcp registry is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), registryProxyTimeout)
	defer cancel()

	body, err := s.cfg.MCPRegistry.Search(ctx, search)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "registry request timed out")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
