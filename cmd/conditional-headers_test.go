// Copyright (c) 2015-2025 Cask Contributors.
//
// This file is part of Cask Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testETag = "65a8e27d8879283831b664bd8b7f0ad4"

func condHeaders(kv map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range kv {
		h.Set(k, v)
	}
	return h
}

func TestConditionalIfMatch(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := condHeaders(map[string]string{"If-Match": "\"" + testETag + "\""})
	assert.Equal(t, ErrNone, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	h = condHeaders(map[string]string{"If-Match": testETag})
	assert.Equal(t, ErrNone, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	h = condHeaders(map[string]string{"If-Match": "\"wrong\""})
	assert.Equal(t, ErrPreconditionFailed, parseConditionalHeaders(h, "").check(testETag, lastModified, true))
}

func TestConditionalIfNoneMatch(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := condHeaders(map[string]string{"If-None-Match": "\"" + testETag + "\""})
	assert.Equal(t, ErrNotModified, parseConditionalHeaders(h, "").check(testETag, lastModified, true))
	// Non-read methods fail the precondition instead of 304.
	assert.Equal(t, ErrPreconditionFailed, parseConditionalHeaders(h, "").check(testETag, lastModified, false))

	h = condHeaders(map[string]string{"If-None-Match": "\"other\""})
	assert.Equal(t, ErrNone, parseConditionalHeaders(h, "").check(testETag, lastModified, true))
}

func TestConditionalModifiedSince(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := condHeaders(map[string]string{"If-Modified-Since": lastModified.Add(time.Hour).Format(http.TimeFormat)})
	assert.Equal(t, ErrNotModified, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	h = condHeaders(map[string]string{"If-Modified-Since": lastModified.Format(http.TimeFormat)})
	assert.Equal(t, ErrNotModified, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	h = condHeaders(map[string]string{"If-Modified-Since": lastModified.Add(-time.Hour).Format(http.TimeFormat)})
	assert.Equal(t, ErrNone, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	// Non-read methods fail the precondition instead of 304; a copy
	// response could not carry the 304 body anyway.
	h = condHeaders(map[string]string{"If-Modified-Since": lastModified.Add(time.Hour).Format(http.TimeFormat)})
	assert.Equal(t, ErrPreconditionFailed, parseConditionalHeaders(h, "").check(testETag, lastModified, false))
}

func TestConditionalUnmodifiedSince(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := condHeaders(map[string]string{"If-Unmodified-Since": lastModified.Add(-time.Hour).Format(http.TimeFormat)})
	assert.Equal(t, ErrPreconditionFailed, parseConditionalHeaders(h, "").check(testETag, lastModified, true))

	h = condHeaders(map[string]string{"If-Unmodified-Since": lastModified.Format(http.TimeFormat)})
	assert.Equal(t, ErrNone, parseConditionalHeaders(h, "").check(testETag, lastModified, true))
}

func TestConditionalOrdering(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// If-Match failure wins over If-Modified-Since.
	h := condHeaders(map[string]string{
		"If-Match":          "\"wrong\"",
		"If-Modified-Since": lastModified.Add(time.Hour).Format(http.TimeFormat),
	})
	assert.Equal(t, ErrPreconditionFailed, parseConditionalHeaders(h, "").check(testETag, lastModified, true))
}

func TestConditionalCopySourcePrefix(t *testing.T) {
	lastModified := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	h := condHeaders(map[string]string{"x-amz-copy-source-if-match": "\"wrong\""})
	assert.Equal(t, ErrPreconditionFailed,
		parseConditionalHeaders(h, copySourcePrefix).check(testETag, lastModified, false))
	// The plain If-Match header does not leak into copy-source checks.
	h = condHeaders(map[string]string{"If-Match": "\"wrong\""})
	assert.Equal(t, ErrNone,
		parseConditionalHeaders(h, copySourcePrefix).check(testETag, lastModified, false))
}
