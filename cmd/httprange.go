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
	"fmt"
	"strconv"
	"strings"
)

// httpRangeSpec represents a single byte range of the forms
// `bytes=a-b`, `bytes=a-` and `bytes=-n`. Multi-range and non-bytes
// units are not represented; callers ignore the Range header for those
// and serve the full body.
type httpRangeSpec struct {
	// isSuffixLength is true for `bytes=-n`, in which case start holds -n.
	isSuffixLength bool
	start, end     int64
}

// parseRequestRangeSpec parses a Range header value. A nil spec with a
// nil error means the header should be ignored.
func parseRequestRangeSpec(rangeString string) (*httpRangeSpec, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(rangeString, prefix) {
		return nil, nil
	}
	rangeString = strings.TrimPrefix(rangeString, prefix)
	if strings.Contains(rangeString, ",") {
		// Multi-range is unsupported, serve the full body.
		return nil, nil
	}

	dash := strings.Index(rangeString, "-")
	if dash < 0 {
		return nil, nil
	}
	startStr, endStr := rangeString[:dash], rangeString[dash+1:]

	if startStr == "" {
		// Suffix form: bytes=-n
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, nil
		}
		return &httpRangeSpec{isSuffixLength: true, start: -n, end: -1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	if endStr == "" {
		return &httpRangeSpec{start: start, end: -1}, nil
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, nil
	}
	return &httpRangeSpec{start: start, end: end}, nil
}

// GetOffsetLength resolves the spec against a resource size, returning
// the slice to serve. Fails when the range lies entirely beyond the
// resource.
func (h *httpRangeSpec) GetOffsetLength(resourceSize int64) (start, length int64, err error) {
	switch {
	case h.isSuffixLength:
		n := -h.start
		if n > resourceSize {
			n = resourceSize
		}
		if n == 0 {
			return 0, 0, errS3(ErrInvalidRange, "")
		}
		return resourceSize - n, n, nil
	case h.start >= resourceSize:
		return 0, 0, errS3(ErrInvalidRange, "")
	case h.end < 0 || h.end >= resourceSize:
		return h.start, resourceSize - h.start, nil
	default:
		return h.start, h.end - h.start + 1, nil
	}
}

// contentRange formats the Content-Range header value for a 206.
func (h *httpRangeSpec) contentRange(start, length, resourceSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, resourceSize)
}
