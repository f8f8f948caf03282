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
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const userMetadataPrefix = "x-amz-meta-"

// extractUserMetadata collects x-amz-meta-* headers, lowercased.
func extractUserMetadata(h http.Header) map[string]string {
	var meta map[string]string
	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, userMetadataPrefix) || len(values) == 0 {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[lower] = values[0]
	}
	return meta
}

// parseContentMD5 decodes the Content-MD5 header when present.
func parseContentMD5(h http.Header) ([]byte, APIErrorCode) {
	v := h.Get("Content-MD5")
	if v == "" {
		return nil, ErrNone
	}
	sum, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(sum) != 16 {
		return nil, ErrInvalidArgument
	}
	return sum, ErrNone
}

// setObjectHeaders writes the metadata-derived response headers shared
// by GET and HEAD.
func setObjectHeaders(w http.ResponseWriter, meta ObjectMeta) {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", "\""+meta.ETag+"\"")
	w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	if meta.VersionID != "" {
		w.Header().Set("x-amz-version-id", meta.VersionID)
	}
	for k, v := range meta.UserMetadata {
		w.Header().Set(k, v)
	}
}

// GetObjectHandler - GET /{bucket}/{key} with optional versionId, Range
// and conditional headers.
func (api *apiHandlers) GetObjectHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	api.serveObject(w, r, reqCtx, true)
}

// HeadObjectHandler - HEAD /{bucket}/{key}
func (api *apiHandlers) HeadObjectHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	api.serveObject(w, r, reqCtx, false)
}

func (api *apiHandlers) serveObject(w http.ResponseWriter, r *http.Request, reqCtx *requestContext, withBody bool) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	versionID := r.URL.Query().Get("versionId")

	meta, f, err := api.objects.OpenObject(reqCtx.bucket, reqCtx.object, versionID)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	if f != nil {
		defer f.Close()
	}

	if meta.IsDeleteMarker {
		w.Header().Set("x-amz-delete-marker", "true")
		if versionID == "" {
			// The latest version is a delete marker, the key logically
			// does not exist.
			writeErrorResponse(w, r, ErrNoSuchKey, reqCtx.requestID)
			return
		}
		// A delete marker addressed by version id has no retrievable
		// payload.
		w.Header().Set("x-amz-version-id", meta.VersionID)
		writeErrorResponse(w, r, ErrMethodNotAllowed, reqCtx.requestID)
		return
	}

	switch parseConditionalHeaders(r.Header, "").check(meta.ETag, meta.UpdatedAt, true) {
	case ErrNotModified:
		w.Header().Set("ETag", "\""+meta.ETag+"\"")
		w.WriteHeader(http.StatusNotModified)
		return
	case ErrPreconditionFailed:
		writeErrorResponse(w, r, ErrPreconditionFailed, reqCtx.requestID)
		return
	}

	setObjectHeaders(w, meta)

	start, length := int64(0), meta.Size
	status := http.StatusOK
	if rs, _ := parseRequestRangeSpec(r.Header.Get("Range")); rs != nil {
		var rerr error
		start, length, rerr = rs.GetOffsetLength(meta.Size)
		if rerr != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
			writeErrorResponse(w, r, ErrInvalidRange, reqCtx.requestID)
			return
		}
		w.Header().Set("Content-Range", rs.contentRange(start, length, meta.Size))
		status = http.StatusPartialContent
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if !withBody || f == nil {
		return
	}
	if start > 0 {
		if _, err = f.Seek(start, io.SeekStart); err != nil {
			return
		}
	}
	io.CopyN(w, f, length)
}

// PutObjectHandler - PUT /{bucket}/{key}
func (api *apiHandlers) PutObjectHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	contentMD5, code := parseContentMD5(r.Header)
	if code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}

	meta, err := api.objects.PutObject(reqCtx.bucket, reqCtx.object, r.Body, putOptions{
		versioning:   api.creds.bucketVersioning(reqCtx.bucket),
		contentType:  r.Header.Get("Content-Type"),
		userMetadata: extractUserMetadata(r.Header),
		contentMD5:   contentMD5,
	})
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	w.Header().Set("ETag", "\""+meta.ETag+"\"")
	if meta.VersionID != "" {
		w.Header().Set("x-amz-version-id", meta.VersionID)
	}
	w.WriteHeader(http.StatusOK)
}

// parseCopySource splits the x-amz-copy-source header into bucket, key
// and optional versionId.
func parseCopySource(source string) (bucket, key, versionID string, err error) {
	if idx := strings.Index(source, "?versionId="); idx >= 0 {
		versionID = source[idx+len("?versionId="):]
		source = source[:idx]
	}
	unescaped, uerr := url.PathUnescape(source)
	if uerr != nil {
		return "", "", "", errS3(ErrInvalidArgument, "invalid copy source")
	}
	unescaped = strings.TrimPrefix(unescaped, "/")
	parts := strings.SplitN(unescaped, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", errS3(ErrInvalidArgument, "invalid copy source")
	}
	return parts[0], parts[1], versionID, nil
}

// CopyObjectHandler - PUT /{bucket}/{key} with x-amz-copy-source.
func (api *apiHandlers) CopyObjectHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	srcBucket, srcKey, srcVersionID, err := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	if _, ok := api.creds.bucketOwner(srcBucket); !ok {
		writeErrorResponse(w, r, ErrNoSuchBucket, reqCtx.requestID)
		return
	}
	if !api.creds.authorize(reqCtx.accessKey, srcBucket) {
		writeErrorResponse(w, r, ErrAccessDenied, reqCtx.requestID)
		return
	}

	directive := strings.ToUpper(r.Header.Get("x-amz-metadata-directive"))
	if srcBucket == reqCtx.bucket && srcKey == reqCtx.object && srcVersionID == "" && directive != "REPLACE" {
		// Copying an object onto itself requires replacing something.
		writeErrorResponse(w, r, ErrInvalidRequest, reqCtx.requestID)
		return
	}

	srcMeta, srcFile, err := api.objects.OpenObject(srcBucket, srcKey, srcVersionID)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	if srcFile == nil {
		writeErrorResponse(w, r, ErrNoSuchKey, reqCtx.requestID)
		return
	}
	defer srcFile.Close()

	if code := parseConditionalHeaders(r.Header, copySourcePrefix).check(srcMeta.ETag, srcMeta.UpdatedAt, false); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}

	contentType := srcMeta.ContentType
	userMetadata := srcMeta.UserMetadata
	if directive == "REPLACE" {
		contentType = r.Header.Get("Content-Type")
		userMetadata = extractUserMetadata(r.Header)
	}

	meta, err := api.objects.PutObject(reqCtx.bucket, reqCtx.object, srcFile, putOptions{
		versioning:   api.creds.bucketVersioning(reqCtx.bucket),
		contentType:  contentType,
		userMetadata: userMetadata,
	})
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	if srcMeta.VersionID != "" {
		w.Header().Set("x-amz-copy-source-version-id", srcMeta.VersionID)
	}
	if meta.VersionID != "" {
		w.Header().Set("x-amz-version-id", meta.VersionID)
	}
	response := copyObjectResult{
		Xmlns:        s3XMLNamespace,
		LastModified: contentTime{meta.UpdatedAt},
		ETag:         "\"" + meta.ETag + "\"",
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// DeleteObjectHandler - DELETE /{bucket}/{key} with optional versionId.
func (api *apiHandlers) DeleteObjectHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	versionID := r.URL.Query().Get("versionId")

	res, err := api.objects.DeleteObject(reqCtx.bucket, reqCtx.object, versionID,
		api.creds.bucketVersioning(reqCtx.bucket))
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	if res.deleteMarker {
		w.Header().Set("x-amz-delete-marker", "true")
		w.Header().Set("x-amz-version-id", res.versionID)
	} else if versionID != "" {
		w.Header().Set("x-amz-version-id", versionID)
	}
	writeSuccessNoContent(w)
}
