package content

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestObjectPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/", "index.html"},
		{"", "index.html"},
		{"/guides/", "guides/index.html"},
		{"/guides", "guides"},
		{"/assets/app.css", "assets/app.css"},
		{"/../../etc/passwd", "etc/passwd"},
	}
	for _, tt := range tests {
		if got := objectPath(tt.in); got != tt.want {
			t.Errorf("objectPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":                       "<h1>home</h1>",
		"404.html":                         "<h1>missing</h1>",
		"architecture/overview/index.html": "<h1>overview</h1>",
		"assets/app.css":                   "body{}",
		"empty-dir/.keep":                  "",
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestDirHandler(t *testing.T) {
	h, err := NewDirHandler(writeSite(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
		wantLoc    string
	}{
		{name: "root index", path: "/", wantStatus: http.StatusOK, wantBody: "home"},
		{name: "directory url", path: "/architecture/overview/", wantStatus: http.StatusOK, wantBody: "overview"},
		{name: "missing slash redirects", path: "/architecture/overview", wantStatus: http.StatusMovedPermanently, wantLoc: "/architecture/overview/"},
		{name: "asset", path: "/assets/app.css", wantStatus: http.StatusOK, wantBody: "body{}"},
		{name: "site 404 page", path: "/nope", wantStatus: http.StatusNotFound, wantBody: "missing"},
		{name: "no listing", path: "/empty-dir/", wantStatus: http.StatusNotFound, wantBody: "missing"},
		{name: "post rejected", method: http.MethodPost, path: "/", wantStatus: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantLoc != "" && rec.Header().Get("Location") != tt.wantLoc {
				t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), tt.wantLoc)
			}
		})
	}
}

func TestNewDirHandler_RequiresDirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(f, nil, 0o644)
	if _, err := NewDirHandler(f, testLogger()); err == nil {
		t.Error("NewDirHandler(file) should fail")
	}
	if _, err := NewDirHandler(filepath.Join(t.TempDir(), "missing"), testLogger()); err == nil {
		t.Error("NewDirHandler(missing) should fail")
	}
}

type fakeObjects struct {
	objects map[string]string
	keys    []string
}

func (f *fakeObjects) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Key)
	f.keys = append(f.keys, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	if aws.StringValue(in.IfNoneMatch) == `"etag-`+key+`"` {
		return nil, awserr.NewRequestFailure(awserr.New("NotModified", "Not Modified", nil), http.StatusNotModified, "req-1")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: aws.Int64(int64(len(body))),
		ETag:          aws.String(`"etag-` + key + `"`),
		LastModified:  aws.Time(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}, nil
}

func (f *fakeObjects) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "req-2")
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Handler(t *testing.T) {
	api := &fakeObjects{objects: map[string]string{
		"site/index.html":                  "<h1>home</h1>",
		"site/reference/schema/index.html": "<h1>schema</h1>",
		"site/assets/app.css":              "body{}",
		"site/404.html":                    "<h1>missing</h1>",
	}}
	h := NewS3Handler(api, "docs-bucket", "/site/", testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reference/schema/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>schema</h1>" {
		t.Errorf("directory url = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reference/schema", nil))
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "/reference/schema/" {
		t.Errorf("missing slash = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope.html", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "missing") {
		t.Errorf("missing key = %d %q", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/assets/app.css", nil)
	req.Header.Set("If-None-Match", `"etag-site/assets/app.css"`)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/assets/app.css", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD = %d with %d body bytes", rec.Code, rec.Body.Len())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestUpstreamHandler(t *testing.T) {
	var gotCookie, gotAuth, gotXFF string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
		gotXFF = r.Header.Get("X-Forwarded-For")
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/new/", http.StatusFound)
		default:
			w.Header().Set("Set-Cookie", "tracking=1")
			_, _ = w.Write([]byte("page " + r.URL.RequestURI()))
		}
	}))
	defer upstream.Close()

	h, err := NewUpstreamHandler(upstream.URL, time.Second, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/guides/setup/?tab=linux", nil)
	req.Header.Set("Cookie", "sb-access-token=secret")
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "page /guides/setup/?tab=linux" {
		t.Errorf("proxied = %d %q", rec.Code, rec.Body.String())
	}
	if gotCookie != "" || gotAuth != "" {
		t.Errorf("credentials forwarded: cookie=%q auth=%q", gotCookie, gotAuth)
	}
	if gotXFF == "" {
		t.Error("X-Forwarded-For not set")
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Error("upstream Set-Cookie passed through")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/old", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/new/" {
		t.Errorf("redirect = %d %q, want passed-through 302", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUpstreamHandler_DropsConnectionScopedHeaders(t *testing.T) {
	var gotSecret, gotProto string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Secret")
		gotProto = r.Header.Get("X-Forwarded-Proto")
		w.Header().Set("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	h, err := NewUpstreamHandler(upstream.URL+"/", time.Second, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/guides/", nil)
	req.Header.Set("Connection", "X-Secret")
	req.Header.Set("X-Secret", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotSecret != "" {
		t.Errorf("header named in Connection was forwarded: %q", gotSecret)
	}
	if gotProto != "http" {
		t.Errorf("X-Forwarded-Proto = %q, want http", gotProto)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("upstream cookies passed through: %v", rec.Result().Cookies())
	}
}

func TestUpstreamHandler_Unreachable(t *testing.T) {
	h, err := NewUpstreamHandler("http://127.0.0.1:1", 500*time.Millisecond, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if _, err := NewUpstreamHandler("ftp://example.com", 0, testLogger()); err == nil {
		t.Error("NewUpstreamHandler(ftp) should fail")
	}
}
