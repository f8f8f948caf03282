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
	"time"
)

// copySourcePrefix turns If-Match and friends into their copy-object
// counterparts (x-amz-copy-source-if-match ...).
const copySourcePrefix = "x-amz-copy-source-"

// conditionalHeaders holds the parsed precondition headers of a
// request. Zero times mean the header was absent.
type conditionalHeaders struct {
	ifMatch           string
	ifNoneMatch       string
	ifModifiedSince   time.Time
	ifUnmodifiedSince time.Time
}

// parseConditionalHeaders extracts preconditions from h. prefix is
// empty for plain requests or copySourcePrefix for copy-object source
// conditions.
func parseConditionalHeaders(h http.Header, prefix string) conditionalHeaders {
	var c conditionalHeaders
	c.ifMatch = h.Get(prefix + "If-Match")
	c.ifNoneMatch = h.Get(prefix + "If-None-Match")
	if v := h.Get(prefix + "If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			c.ifModifiedSince = t
		}
	}
	if v := h.Get(prefix + "If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			c.ifUnmodifiedSince = t
		}
	}
	return c
}

// check evaluates the preconditions against the object, first failure
// wins. readOnly selects 304 over 412 on GET/HEAD; copy-object source
// conditions always fail with 412 since a 304 carries no body.
func (c conditionalHeaders) check(etag string, lastModified time.Time, readOnly bool) APIErrorCode {
	// HTTP dates carry second granularity.
	lastModified = lastModified.Truncate(time.Second)

	if c.ifMatch != "" && canonicalizeETag(c.ifMatch) != etag {
		return ErrPreconditionFailed
	}
	if !c.ifUnmodifiedSince.IsZero() && lastModified.After(c.ifUnmodifiedSince) {
		return ErrPreconditionFailed
	}
	if c.ifNoneMatch != "" && canonicalizeETag(c.ifNoneMatch) == etag {
		if readOnly {
			return ErrNotModified
		}
		return ErrPreconditionFailed
	}
	if !c.ifModifiedSince.IsZero() && !lastModified.After(c.ifModifiedSince) {
		if readOnly {
			return ErrNotModified
		}
		return ErrPreconditionFailed
	}
	return ErrNone
}
