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

package api_test

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-pose-compare/internal/api"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

func TestParseRange(t *testing.T) {
	const size = 10000
	ok := []struct {
		header     string
		start, end int64
	}{
		{"bytes=0-4999", 0, 4999},
		{"bytes=5000-", 5000, 9999},
		{"bytes=9000-20000", 9000, 9999},
		{"bytes=-100", 9900, 9999},
		{"bytes=-20000", 0, 9999},
		{"bytes=9999-9999", 9999, 9999},
		{" bytes= 10 - 19 ", 10, 19},
	}
	for _, tc := range ok {
		t.Run(tc.header, func(t *testing.T) {
			r, err := api.ParseRange(tc.header, size)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.Equal(t, tc.start, r.Start)
			assert.Equal(t, tc.end, r.End)
			assert.Equal(t, tc.end-tc.start+1, r.Length())
		})
	}

	r, err := api.ParseRange("", size)
	assert.NoError(t, err)
	assert.Nil(t, r)

	for _, header := range []string{
		"bytes=10000-",
		"bytes=500-100",
		"bytes=-0",
		"bytes=abc-",
		"bytes=0-1,5-6",
		"items=0-10",
		"bytes=5",
	} {
		t.Run(header, func(t *testing.T) {
			_, err := api.ParseRange(header, size)
			assert.ErrorIs(t, err, model.ErrMalformedRange)
		})
	}

	_, err = api.ParseRange("bytes=0-", 0)
	assert.ErrorIs(t, err, model.ErrMalformedRange)
}

func TestByteRangeContentRange(t *testing.T) {
	assert.Equal(t, "bytes 0-4999/10000", api.ByteRange{Start: 0, End: 4999}.ContentRange(10000))
}

func TestStreamFullAndPartial(t *testing.T) {
	s := newServer(t)
	rec := s.addVideo(t, model.RoleReference, 10000)
	target := "/api/v1/videos/reference/" + rec.ID + "/stream"

	full := s.do(http.MethodGet, target, nil, nil)
	require.Equal(t, http.StatusOK, full.Code)
	assert.Equal(t, "bytes", full.Header().Get("Accept-Ranges"))
	assert.Equal(t, "10000", full.Header().Get("Content-Length"))
	assert.NotEmpty(t, full.Header().Get("Content-Type"))
	assert.Len(t, full.Body.Bytes(), 10000)

	part := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=0-4999"})
	require.Equal(t, http.StatusPartialContent, part.Code)
	assert.Equal(t, "bytes 0-4999/10000", part.Header().Get("Content-Range"))
	assert.Equal(t, "5000", part.Header().Get("Content-Length"))
	assert.Equal(t, full.Body.Bytes()[:5000], part.Body.Bytes())

	tail := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=-10"})
	require.Equal(t, http.StatusPartialContent, tail.Code)
	assert.Equal(t, "bytes 9990-9999/10000", tail.Header().Get("Content-Range"))
	assert.Equal(t, full.Body.Bytes()[9990:], tail.Body.Bytes())

	mid := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=1234-"})
	require.Equal(t, http.StatusPartialContent, mid.Code)
	assert.Equal(t, strconv.Itoa(10000-1234), mid.Header().Get("Content-Length"))
	assert.Equal(t, full.Body.Bytes()[1234:], mid.Body.Bytes())
}

func TestStreamRejectsUnsatisfiableRange(t *testing.T) {
	s := newServer(t)
	rec := s.addVideo(t, model.RoleReference, 10000)
	target := "/api/v1/videos/reference/" + rec.ID + "/stream"

	for _, header := range []string{"bytes=10000-", "bytes=0-1,5-6", "bytes=9-3"} {
		w := s.do(http.MethodGet, target, nil, map[string]string{"Range": header})
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code, header)
		assert.Equal(t, "bytes */10000", w.Header().Get("Content-Range"), header)
		assert.Contains(t, w.Body.String(), "malformed range", header)
	}
}

func TestStreamHead(t *testing.T) {
	s := newServer(t)
	rec := s.addVideo(t, model.RoleReference, 10000)
	target := "/api/v1/videos/reference/" + rec.ID + "/stream"

	w := s.do(http.MethodHead, target, nil, map[string]string{"Range": "bytes=100-199"})
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, 0, w.Body.Len())
}

func TestStreamNotFound(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/v1/videos/reference/missing/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	rec := s.addVideo(t, model.RoleSubject, 10)
	w = s.do(http.MethodGet, "/api/v1/videos/reference/"+rec.ID+"/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/videos/dancer/"+rec.ID+"/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
