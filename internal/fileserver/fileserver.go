// Package fileserver answers parsed requests from files under a root
// directory.
package fileserver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeljkobekcic/webserver/internal/headers"
	"github.com/zeljkobekcic/webserver/internal/mime"
	"github.com/zeljkobekcic/webserver/internal/page"
	"github.com/zeljkobekcic/webserver/internal/request"
	"github.com/zeljkobekcic/webserver/internal/response"
)

// Methods the server recognises. Matching is exact and case-sensitive.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"
)

// errorPageExt is the extension whose content type labels generated pages.
const errorPageExt = "htm"

// FileServer serves GET and HEAD from Root, refuses POST with 501 and
// anything else with 400.
type FileServer struct {
	// Root is the directory request targets are resolved against.
	Root string
	// Types maps file extensions to content types.
	Types *mime.Registry
	// DateGMT renders the Date header in UTC with a GMT suffix instead of
	// the local zone.
	DateGMT bool
	// AllowTraversal lets targets containing ".." reach outside Root.
	AllowTraversal bool
	// Now returns the time used for the Date header.
	Now    func() time.Time
	Logger *slog.Logger
}

// New returns a FileServer for root using types.
func New(root string, types *mime.Registry) *FileServer {
	return &FileServer{
		Root:   root,
		Types:  types,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (fs *FileServer) logger() *slog.Logger {
	if fs.Logger == nil {
		return slog.Default()
	}
	return fs.Logger
}

func (fs *FileServer) date() string {
	now := time.Now
	if fs.Now != nil {
		now = fs.Now
	}
	return response.FormatDate(now(), fs.DateGMT)
}

// ServeRequest writes the response for req.
func (fs *FileServer) ServeRequest(w *response.Writer, req *request.Request) error {
	target := req.RequestLine.RequestTarget
	switch req.RequestLine.Method {
	case MethodGet:
		return fs.serveGet(w, req, target)
	case MethodHead:
		return fs.serveHead(w, target)
	case MethodPost:
		return fs.writePage(w, response.StatusNotImplemented, page.NotImplemented())
	default:
		return fs.WriteBadRequest(w)
	}
}

// HeadersDone reports whether the header fields read so far are all this
// server looks at. Only GET uses a header, and only User-Agent.
func (fs *FileServer) HeadersDone(rl request.RequestLine, h headers.Headers) bool {
	return rl.Method != MethodGet || h.Has("User-Agent")
}

// WriteBadRequest writes the 400 page.
func (fs *FileServer) WriteBadRequest(w *response.Writer) error {
	return fs.writePage(w, response.StatusBadRequest, page.BadRequest())
}

func (fs *FileServer) serveGet(w *response.Writer, req *request.Request, target string) error {
	path, info, ok := fs.lookup(target)
	if !ok {
		body := page.NotFound(req.RemoteAddr, req.UserAgent())
		return fs.writePage(w, response.StatusNotFound, body)
	}

	f, err := os.Open(path)
	if err != nil {
		fs.logger().Warn("file vanished before open", "path", path, "error", err)
		body := page.NotFound(req.RemoteAddr, req.UserAgent())
		return fs.writePage(w, response.StatusNotFound, body)
	}
	defer f.Close()

	if err := w.WriteStatusLine(response.StatusOK); err != nil {
		return err
	}
	h := response.GetDefaultHeaders(fs.date(), fs.Types.TypeOf(path), info.Size())
	if err := w.WriteHeaders(h); err != nil {
		return err
	}
	if _, err := w.CopyBody(f); err != nil {
		return fmt.Errorf("sending %s: %w", path, err)
	}
	return nil
}

// serveHead mirrors GET's status and content type without a body. The
// length is the file size for existing files and 0 otherwise, since no page
// is generated for a HEAD miss.
func (fs *FileServer) serveHead(w *response.Writer, target string) error {
	status := response.StatusNotFound
	contentType := fs.Types.Lookup(errorPageExt)
	var length int64

	if path, info, ok := fs.lookup(target); ok {
		status = response.StatusOK
		contentType = fs.Types.TypeOf(path)
		length = info.Size()
	}

	if err := w.WriteStatusLine(status); err != nil {
		return err
	}
	return w.WriteHeaders(response.GetDefaultHeaders(fs.date(), contentType, length))
}

func (fs *FileServer) writePage(w *response.Writer, status response.StatusCode, body string) error {
	if err := w.WriteStatusLine(status); err != nil {
		return err
	}
	h := response.GetDefaultHeaders(fs.date(), fs.Types.Lookup(errorPageExt), int64(len(body)))
	if err := w.WriteHeaders(h); err != nil {
		return err
	}
	_, err := w.WriteBody([]byte(body))
	return err
}

// lookup resolves target to a regular file under Root.
func (fs *FileServer) lookup(target string) (string, os.FileInfo, bool) {
	path, ok := fs.Resolve(target)
	if !ok {
		fs.logger().Warn("request target escapes root", "target", target)
		return "", nil, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return path, nil, false
	}
	return path, info, true
}

// Resolve turns a request target into a filesystem path by prefixing it
// with the current directory marker and joining it to Root. ok is false when
// the result leaves Root and traversal is not allowed.
func (fs *FileServer) Resolve(target string) (path string, ok bool) {
	rel := filepath.FromSlash("." + target)
	if !fs.AllowTraversal {
		cleaned := filepath.Clean(rel)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return "", false
		}
	}
	root := fs.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, rel), true
}
