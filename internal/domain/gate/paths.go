package gate

import (
	"net/url"
	"path"
	"strings"
)

// PathMatcher matches request paths against a list of public paths.
// An entry ending in "/" matches everything below it. Any other entry
// matches itself and everything below it as a path segment, so "/api"
// matches "/api" and "/api/v1" but not "/apidocs".
type PathMatcher struct {
	entries []string
}

// NewPathMatcher builds a matcher from public path entries. Empty entries are ignored.
func NewPathMatcher(paths ...string) *PathMatcher {
	m := &PathMatcher{}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		m.entries = append(m.entries, p)
	}
	return m
}

// Match reports whether path is covered by any entry.
func (m *PathMatcher) Match(path string) bool {
	for _, e := range m.entries {
		if matchEntry(e, path) {
			return true
		}
	}
	return false
}

// Entries returns the normalized entries.
func (m *PathMatcher) Entries() []string {
	out := make([]string, len(m.entries))
	copy(out, m.entries)
	return out
}

func matchEntry(entry, path string) bool {
	if strings.HasSuffix(entry, "/") {
		return strings.HasPrefix(path, entry) || path == strings.TrimSuffix(entry, "/")
	}
	return path == entry || strings.HasPrefix(path, entry+"/")
}

// canonicalPath resolves "." and ".." segments and duplicate slashes the
// way the content handlers do, keeping a trailing slash. Matching always
// runs on the canonical form so "/assets/../reference/" is not public.
func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	c := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && c != "/" {
		c += "/"
	}
	return c
}

// CanonicalPath exposes canonicalPath to transport adapters.
func CanonicalPath(p string) string { return canonicalPath(p) }

// sanitizeIntent turns a requested location into a safe site-relative
// redirect intent. Anything that is not a plain local path ("//host",
// "https://...", backslash tricks) becomes "/". Intents that point back
// at the login or logout page also become "/" so a login detour can never
// send the viewer into itself again.
func sanitizeIntent(raw string, loop *PathMatcher) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	if loop != nil && loop.Match(u.Path) {
		return "/"
	}
	return raw
}

// loginURL builds "{loginPath}?redirect={intent}[&error={code}]".
// The intent is escaped exactly once.
func loginURL(loginPath, intent, errorCode string) string {
	var b strings.Builder
	b.WriteString(loginPath)
	b.WriteString("?redirect=")
	b.WriteString(url.QueryEscape(intent))
	if errorCode != "" {
		b.WriteString("&error=")
		b.WriteString(url.QueryEscape(errorCode))
	}
	return b.String()
}
