package content

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// UpstreamHandler forwards requests to a static host. Redirects are passed
// through to the viewer, never followed. Viewer credentials (cookies,
// Authorization) are not forwarded and upstream cookies are not returned.
type UpstreamHandler struct {
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewUpstreamHandler creates a handler forwarding to target. timeout bounds
// the wait for upstream response headers.
func NewUpstreamHandler(target string, timeout time.Duration, logger *slog.Logger) (*UpstreamHandler, error) {
	u, err := url.Parse(strings.TrimRight(target, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", target)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	h := &UpstreamHandler{logger: logger}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: h.proxyError,
	}
	return h, nil
}

func (h *UpstreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}
	h.proxy.ServeHTTP(w, r)
}

// proxyError writes 502 unless the viewer already went away.
func (h *UpstreamHandler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	h.logger.Error("upstream content error", "error", err, "path", r.URL.Path)
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}
