// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api - byte-range media server.
//
// Videos are served with single-range support so players can seek and scrub.
// A request without a Range header receives the whole file with 200; a
// satisfiable range receives 206 with exactly the requested bytes; anything
// else receives 416 and "Content-Range: bytes */<size>".
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// sniffLength is the number of leading bytes filetype needs.
const sniffLength = 262

// ByteRange is an inclusive byte range of a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes in the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a Range header against a file of size bytes.
//
// Accepted forms are "bytes=S-E", "bytes=S-" and "bytes=-N". E is clamped to
// size-1 and a suffix longer than the file selects the whole file. It returns
// nil and no error for an empty header. Every other header, including
// multiple ranges and a start at or past the end of the file, fails with
// model.ErrMalformedRange.
func ParseRange(header string, size int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	malformed := func(reason string) (*ByteRange, error) {
		return nil, fmt.Errorf("%w: %q: %s", model.ErrMalformedRange, header, reason)
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return malformed("unit is not bytes")
	}
	if strings.Contains(spec, ",") {
		return malformed("multiple ranges are not supported")
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return malformed("missing '-'")
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if size <= 0 {
		return malformed("empty file")
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return malformed("invalid suffix length")
		}
		return &ByteRange{Start: max(0, size-n), End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return malformed("invalid start")
	}
	if start >= size {
		return malformed("start is past the end of the file")
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return malformed("invalid end")
		}
		end = min(end, size-1)
	}
	return &ByteRange{Start: start, End: end}, nil
}

// ContentType sniffs the leading bytes of a file, then falls back to the
// file extension and finally to application/octet-stream.
func ContentType(head []byte, path string) string {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ServeFile answers a GET or HEAD request for the file at path.
//
// Inputs:
//   - w, r: the response and request.
//   - path: the file to serve.
//
// Outputs:
//   - error: model.ErrNotFound when the file does not exist and
//     model.ErrMalformedRange for a rejected Range header; in both cases
//     nothing has been written yet, but the 416 Content-Range header is
//     already set. Any later error comes from copying the body.
func ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrNotFound, filepath.Base(path))
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", model.ErrNotFound, filepath.Base(path))
	}
	size := info.Size()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	rng, err := ParseRange(r.Header.Get("Range"), size)
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return err
	}
	h.Set("Content-Type", ContentType(head[:n], path))

	status := http.StatusOK
	section := io.NewSectionReader(f, 0, size)
	if rng != nil {
		status = http.StatusPartialContent
		section = io.NewSectionReader(f, rng.Start, rng.Length())
		h.Set("Content-Range", rng.ContentRange(size))
	}
	h.Set("Content-Length", strconv.FormatInt(section.Size(), 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, section); err != nil {
		return fmt.Errorf("streaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

// StreamFile serves path through gin and maps the failures of ServeFile to
// error responses.
func StreamFile(c *gin.Context, path string) {
	err := ServeFile(c.Writer, c.Request, path)
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// The client usually went away mid-body.
		slog.DebugContext(c.Request.Context(), "stream interrupted", "error", err)
		return
	}
	respondError(c, err)
}
