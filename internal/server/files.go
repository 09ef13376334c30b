package server

import (
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/response"
)

// ForbiddenExtensions are never served from a web directory.
var ForbiddenExtensions = []string{".exe", ".dll", ".cmd", ".bat", ".lib", ".crypt", ".cgi", ".sh"}

// indexFiles are tried in order when a directory is requested.
var indexFiles = []string{"index.html", "index.dhtml", "index.htmlx", "index.xhtml", "index.txt"}

// ServeFile answers with the file under root named by the request path
// after stripPrefix is removed. Directory listings are not produced.
func (ex *Exchange) ServeFile(root, stripPrefix string) error {
	if root == "" {
		return ex.SendError(403)
	}
	if len(ex.Request.Query) > 0 {
		return ex.SendError(400)
	}

	rel := strings.TrimPrefix(ex.Request.Path, stripPrefix)
	if hasDotSegment(rel) {
		return ex.SendError(400)
	}
	full := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ex.SendError(404)
		}
		logging.Warn("Failed to stat file", zap.String("path", full), zap.Error(err))
		return ex.SendError(403)
	}

	if info.IsDir() {
		for _, name := range indexFiles {
			p := filepath.Join(full, name)
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				return ex.sendFile(p, fi)
			}
		}
		return ex.SendError(403)
	}

	if slices.Contains(ForbiddenExtensions, strings.ToLower(filepath.Ext(full))) {
		return ex.SendError(403)
	}
	return ex.sendFile(full, info)
}

func (ex *Exchange) sendFile(path string, info fs.FileInfo) error {
	if limit := ex.handler.MaxDownloadSize; limit > 0 && info.Size() > limit {
		logging.Info("File exceeds download limit",
			zap.String("path", path),
			zap.Int64("size", info.Size()),
			zap.Int64("limit", limit),
		)
		return ex.SendError(response.StatusBandwidthLimitExceeded)
	}

	f, err := os.Open(path)
	if err != nil {
		return ex.SendError(404)
	}
	defer func() { _ = f.Close() }()

	return ex.done(ex.Writer.SendFile(ContentTypeFor(path), f, info.Size()))
}

// ContentTypeFor guesses a content type from the file extension.
func ContentTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg != "" && strings.Trim(seg, ".") == "" {
			return true
		}
	}
	return false
}
