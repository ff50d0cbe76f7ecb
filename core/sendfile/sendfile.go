// Package sendfile serves static files straight off disk to a
// connection's socket using the zero-copy sendfile(2) syscall, bypassing
// userspace buffering for the file body entirely.
package sendfile

import (
	"container/list"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	flowhttp "github.com/flowgate/httpd/core/http"
)

// FileCache caches open file descriptors using LRU eviction so repeated
// requests for the same hot file skip the open() syscall.
type FileCache struct {
	mu       sync.RWMutex
	cache    map[string]*cacheEntry
	lruList  *list.List
	maxFiles int
}

type cacheEntry struct {
	file    *os.File
	element *list.Element
}

// NewFileCache creates a new file cache holding at most maxFiles open
// descriptors.
func NewFileCache(maxFiles int) *FileCache {
	return &FileCache{
		cache:    make(map[string]*cacheEntry),
		lruList:  list.New(),
		maxFiles: maxFiles,
	}
}

// Get returns a cached, already-open *os.File for path, opening and
// caching it on first use.
func (fc *FileCache) Get(path string) (*os.File, error) {
	fc.mu.RLock()
	if entry, ok := fc.cache[path]; ok {
		fc.mu.RUnlock()
		fc.mu.Lock()
		fc.lruList.MoveToFront(entry.element)
		fc.mu.Unlock()
		return entry.file, nil
	}
	fc.mu.RUnlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	element := fc.lruList.PushFront(path)
	fc.cache[path] = &cacheEntry{file: file, element: element}

	if fc.lruList.Len() > fc.maxFiles {
		oldest := fc.lruList.Back()
		if oldest != nil {
			oldPath := oldest.Value.(string)
			if oldEntry, ok := fc.cache[oldPath]; ok {
				oldEntry.file.Close()
				delete(fc.cache, oldPath)
			}
			fc.lruList.Remove(oldest)
		}
	}

	return file, nil
}

// Close closes every cached file descriptor.
func (fc *FileCache) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, entry := range fc.cache {
		entry.file.Close()
	}
	fc.cache = make(map[string]*cacheEntry)
	fc.lruList.Init()
}

var globalFileCache = NewFileCache(1000)

// CloseFileCache closes the global file cache's descriptors, called on
// server shutdown.
func CloseFileCache() {
	globalFileCache.Close()
}

// writeAt sends count bytes of fileFd starting at offset to connFd using
// the zero-copy sendfile(2) syscall, retrying across EAGAIN/EINTR.
func writeAt(connFd, fileFd int, offset int64, count int) (int, error) {
	written := 0
	for written < count {
		n, err := syscall.Sendfile(connFd, fileFd, &offset, count-written)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EINTR {
				continue
			}
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
	}
	return written, nil
}

// GetContentType returns a MIME type guess based on file extension.
func GetContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".xml":
		return "application/xml; charset=utf-8"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Server implements core/http.FileServer, serving files relative to
// Root via zero-copy sendfile.
type Server struct {
	Root string
}

// New returns a Server rooted at dir.
func New(dir string) *Server {
	return &Server{Root: dir}
}

// ServeFile writes the response headers for the file at path through w
// (buffered through the connection's normal write path), synchronously
// flushes them, and then streams the file body directly into the
// connection's fd via sendfile — bypassing the response body buffer.
func (s *Server) ServeFile(w flowhttp.ResponseWriter, path string) (status int, headers map[string]string, err error) {
	full := filepath.Join(s.Root, filepath.Clean("/"+path))

	file, ferr := globalFileCache.Get(full)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return 404, nil, nil
		}
		return 0, nil, ferr
	}

	info, serr := file.Stat()
	if serr != nil {
		return 0, nil, serr
	}
	if info.IsDir() {
		return 404, nil, nil
	}

	headers = map[string]string{
		"Content-Type":   GetContentType(full),
		"Content-Length": strconv.FormatInt(info.Size(), 10),
		"Last-Modified":  info.ModTime().UTC().Format(http.TimeFormat),
	}

	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %s\r\nLast-Modified: %s\r\nConnection: keep-alive\r\n\r\n",
		headers["Content-Type"], headers["Content-Length"], headers["Last-Modified"])
	w.Write([]byte(head))

	if err := w.Flush(); err != nil {
		return 0, nil, err
	}

	if _, err := writeAt(w.RawFD(), int(file.Fd()), 0, int(info.Size())); err != nil {
		return 0, nil, err
	}

	return 200, headers, nil
}
