// Package content serves the built documentation site from a local
// directory, an S3 bucket or an upstream static host.
package content

import (
	"net/http"
	"path"
	"strings"
)

// IndexFile is served for directory URLs.
const IndexFile = "index.html"

// NotFoundFile is the site's own 404 page, used when present.
const NotFoundFile = "404.html"

// objectPath maps a request path to a site-relative file path.
// "/guides/" -> "guides/index.html", "/" -> "index.html".
func objectPath(urlPath string) string {
	clean := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") || clean == "/" {
		clean = path.Join(clean, IndexFile)
	}
	return strings.TrimPrefix(clean, "/")
}

// hasExtension reports whether the last path segment has a file extension.
func hasExtension(p string) bool {
	return path.Ext(path.Base(p)) != ""
}

func methodAllowed(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return false
}

// redirectToDir sends "/guides" to "/guides/", keeping the query.
func redirectToDir(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
