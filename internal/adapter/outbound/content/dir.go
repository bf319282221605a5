package content

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
)

// DirHandler serves a built site from the filesystem. Directory listings
// are never produced.
type DirHandler struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewDirHandler serves files below root.
func NewDirHandler(root string, logger *slog.Logger) (*DirHandler, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("content root is not a directory: " + root)
	}
	return &DirHandler{fsys: os.DirFS(root), logger: logger}, nil
}

func (h *DirHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	name := objectPath(r.URL.Path)
	info, err := fs.Stat(h.fsys, name)
	if err == nil && info.IsDir() {
		if _, idxErr := fs.Stat(h.fsys, path.Join(name, IndexFile)); idxErr == nil {
			redirectToDir(w, r)
			return
		}
		err = fs.ErrNotExist
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("content stat failed", "path", name, "error", err)
		}
		h.notFound(w, r)
		return
	}

	h.serveFile(w, r, name, http.StatusOK)
}

func (h *DirHandler) serveFile(w http.ResponseWriter, r *http.Request, name string, status int) {
	f, err := h.fsys.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rs, seekable := f.(io.ReadSeeker)
	if status == http.StatusOK && seekable {
		http.ServeContent(w, r, info.Name(), info.ModTime(), rs)
		return
	}

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(w, f)
	}
}

func (h *DirHandler) notFound(w http.ResponseWriter, r *http.Request) {
	if _, err := fs.Stat(h.fsys, NotFoundFile); err == nil {
		h.serveFile(w, r, NotFoundFile, http.StatusNotFound)
		return
	}
	http.NotFound(w, r)
}
