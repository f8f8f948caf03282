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
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
)

// NewMultipartUploadHandler - POST /{bucket}/{key}?uploads
func (api *apiHandlers) NewMultipartUploadHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	uploadID, err := api.multipart.NewMultipartUpload(reqCtx.bucket, reqCtx.object,
		r.Header.Get("Content-Type"), extractUserMetadata(r.Header))
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	response := initiateMultipartUploadResult{
		Xmlns:    s3XMLNamespace,
		Bucket:   reqCtx.bucket,
		Key:      reqCtx.object,
		UploadID: uploadID,
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// PutObjectPartHandler - PUT /{bucket}/{key}?partNumber=N&uploadId=U
func (api *apiHandlers) PutObjectPartHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	partNumber, err := strconv.Atoi(query.Get("partNumber"))
	if err != nil {
		writeErrorResponse(w, r, ErrInvalidArgument, reqCtx.requestID)
		return
	}
	contentMD5, code := parseContentMD5(r.Header)
	if code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}

	part, perr := api.multipart.PutObjectPart(reqCtx.bucket, query.Get("uploadId"), partNumber, r.Body, contentMD5)
	if perr != nil {
		writeErrorResponse(w, r, toAPIErrorCode(perr), reqCtx.requestID)
		return
	}
	w.Header().Set("ETag", "\""+part.ETag+"\"")
	w.WriteHeader(http.StatusOK)
}

// CompleteMultipartUploadHandler - POST /{bucket}/{key}?uploadId=U
func (api *apiHandlers) CompleteMultipartUploadHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(toChunkedReadError(err)), reqCtx.requestID)
		return
	}
	var complete completeMultipartUpload
	if err = xml.Unmarshal(body, &complete); err != nil {
		writeErrorResponse(w, r, ErrMalformedXML, reqCtx.requestID)
		return
	}

	meta, cerr := api.multipart.CompleteMultipartUpload(reqCtx.bucket, r.URL.Query().Get("uploadId"),
		complete.Parts, api.creds.bucketVersioning(reqCtx.bucket))
	if cerr != nil {
		writeErrorResponse(w, r, toAPIErrorCode(cerr), reqCtx.requestID)
		return
	}

	if meta.VersionID != "" {
		w.Header().Set("x-amz-version-id", meta.VersionID)
	}
	response := completeMultipartUploadResult{
		Xmlns:    s3XMLNamespace,
		Location: "/" + reqCtx.bucket + "/" + reqCtx.object,
		Bucket:   reqCtx.bucket,
		Key:      reqCtx.object,
		ETag:     "\"" + meta.ETag + "\"",
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// AbortMultipartUploadHandler - DELETE /{bucket}/{key}?uploadId=U
// Aborts are idempotent; aborting an unknown upload succeeds.
func (api *apiHandlers) AbortMultipartUploadHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	if err := api.multipart.AbortMultipartUpload(reqCtx.bucket, r.URL.Query().Get("uploadId")); err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}
	writeSuccessNoContent(w)
}

// ListObjectPartsHandler - GET /{bucket}/{key}?uploadId=U
func (api *apiHandlers) ListObjectPartsHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	uploadID := query.Get("uploadId")

	maxParts := defaultMaxKeys
	if v := query.Get("max-parts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorResponse(w, r, ErrInvalidArgument, reqCtx.requestID)
			return
		}
		if n > 0 && n < maxParts {
			maxParts = n
		}
	}
	partNumberMarker := 0
	if v := query.Get("part-number-marker"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorResponse(w, r, ErrInvalidArgument, reqCtx.requestID)
			return
		}
		partNumberMarker = n
	}

	upload, parts, isTruncated, nextMarker, err := api.multipart.ListParts(reqCtx.bucket, uploadID, partNumberMarker, maxParts)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	response := listPartsResult{
		Xmlns:            s3XMLNamespace,
		Bucket:           reqCtx.bucket,
		Key:              upload.Key,
		UploadID:         uploadID,
		StorageClass:     "STANDARD",
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
		IsTruncated:      isTruncated,
	}
	if isTruncated {
		response.NextPartNumberMarker = nextMarker
	}
	for _, part := range parts {
		response.Parts = append(response.Parts, listPartItem{
			PartNumber:   part.PartNumber,
			LastModified: contentTime{part.LastModified},
			ETag:         "\"" + part.ETag + "\"",
			Size:         part.Size,
		})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// ListMultipartUploadsHandler - GET /{bucket}?uploads
func (api *apiHandlers) ListMultipartUploadsHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	maxUploads := defaultMaxKeys
	if v := query.Get("max-uploads"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorResponse(w, r, ErrInvalidArgument, reqCtx.requestID)
			return
		}
		if n > 0 && n < maxUploads {
			maxUploads = n
		}
	}
	prefix := query.Get("prefix")
	keyMarker := query.Get("key-marker")
	uploadIDMarker := query.Get("upload-id-marker")

	uploads, isTruncated, nextKeyMarker, nextUploadIDMarker, err := api.multipart.ListMultipartUploads(
		reqCtx.bucket, prefix, keyMarker, uploadIDMarker, maxUploads)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	response := listMultipartUploadsResult{
		Xmlns:          s3XMLNamespace,
		Bucket:         reqCtx.bucket,
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
		MaxUploads:     maxUploads,
		Prefix:         prefix,
		IsTruncated:    isTruncated,
	}
	if isTruncated {
		response.NextKeyMarker = nextKeyMarker
		response.NextUploadIDMarker = nextUploadIDMarker
	}
	for _, upload := range uploads {
		response.Uploads = append(response.Uploads, uploadItem{
			Key:          upload.Key,
			UploadID:     upload.UploadID,
			StorageClass: "STANDARD",
			Initiated:    contentTime{upload.InitiatedAt},
		})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}
