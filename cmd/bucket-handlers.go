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

	"github.com/minio/minio-go/v7/pkg/s3utils"
)

const defaultMaxKeys = 1000

// parseMaxKeys reads an integer listing bound from the query, falling
// back to the S3 default of 1000.
func parseMaxKeys(r *http.Request, param string) (int, APIErrorCode) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return defaultMaxKeys, ErrNone
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, ErrInvalidArgument
	}
	if n == 0 || n > defaultMaxKeys {
		n = defaultMaxKeys
	}
	return n, ErrNone
}

// ListBucketsHandler - GET /
// Lists the buckets owned by the authenticated user.
func (api *apiHandlers) ListBucketsHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	buckets, err := api.catalog.ListBuckets(reqCtx.userID)
	if err != nil {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	response := listAllMyBucketsResult{
		Xmlns: s3XMLNamespace,
		Owner: ownerInfo{ID: reqCtx.userID, DisplayName: reqCtx.userID},
	}
	for _, b := range buckets {
		response.Buckets = append(response.Buckets, bucketInfo{
			Name:         b.Name,
			CreationDate: contentTime{b.CreatedAt},
		})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// PutBucketHandler - PUT /{bucket}
func (api *apiHandlers) PutBucketHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	bucket := reqCtx.bucket
	if err := s3utils.CheckValidBucketNameStrict(bucket); err != nil {
		writeErrorResponse(w, r, ErrInvalidBucketName, reqCtx.requestID)
		return
	}
	created, err := api.catalog.CreateBucket(catalogBucket{
		Name:      bucket,
		OwnerID:   reqCtx.userID,
		CreatedAt: UTCNow(),
	})
	if err != nil {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	if !created {
		writeErrorResponse(w, r, ErrBucketAlreadyExists, reqCtx.requestID)
		return
	}
	if err = api.objects.MakeBucket(bucket); err != nil {
		api.catalog.DeleteBucket(bucket)
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	api.creds.storeBucket(catalogBucket{Name: bucket, OwnerID: reqCtx.userID})
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// HeadBucketHandler - HEAD /{bucket}
func (api *apiHandlers) HeadBucketHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteBucketHandler - DELETE /{bucket}
// Succeeds only when no current, unmasked object remains.
func (api *apiHandlers) DeleteBucketHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	bucket := reqCtx.bucket
	nonEmpty, err := api.objects.HasAnyObjects(bucket)
	if err != nil {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	if nonEmpty {
		writeErrorResponse(w, r, ErrBucketNotEmpty, reqCtx.requestID)
		return
	}
	if err = api.objects.RemoveBucket(bucket); err != nil {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	api.multipart.RemoveBucket(bucket)
	if err = api.catalog.DeleteBucket(bucket); err != nil {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	api.creds.invalidateBucket(bucket)
	writeSuccessNoContent(w)
}

// GetBucketLocationHandler - GET /{bucket}?location
func (api *apiHandlers) GetBucketLocationHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	response := locationResponse{Xmlns: s3XMLNamespace}
	// us-east-1 is represented by an empty LocationConstraint.
	if api.region != globalDefaultRegion {
		response.Location = api.region
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// GetBucketPolicyHandler - GET /{bucket}?policy
// Bucket policies are not supported; existing buckets report none.
func (api *apiHandlers) GetBucketPolicyHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	writeErrorResponse(w, r, ErrNoSuchBucketPolicy, reqCtx.requestID)
}

// GetBucketVersioningHandler - GET /{bucket}?versioning
func (api *apiHandlers) GetBucketVersioningHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	response := versioningConfiguration{
		Xmlns:  s3XMLNamespace,
		Status: api.creds.bucketVersioning(reqCtx.bucket),
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// PutBucketVersioningHandler - PUT /{bucket}?versioning
func (api *apiHandlers) PutBucketVersioningHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(toChunkedReadError(err)), reqCtx.requestID)
		return
	}
	var config versioningConfiguration
	if err = xml.Unmarshal(body, &config); err != nil {
		writeErrorResponse(w, r, ErrMalformedXML, reqCtx.requestID)
		return
	}
	if config.Status != versioningEnabled && config.Status != versioningSuspended {
		writeErrorResponse(w, r, ErrMalformedXML, reqCtx.requestID)
		return
	}
	b, ok, err := api.catalog.SetBucketVersioning(reqCtx.bucket, config.Status)
	if err != nil || !ok {
		writeErrorResponse(w, r, ErrInternalError, reqCtx.requestID)
		return
	}
	api.creds.storeBucket(b)
	w.WriteHeader(http.StatusOK)
}

// ListObjectsV1Handler - GET /{bucket}
func (api *apiHandlers) ListObjectsV1Handler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	maxKeys, code := parseMaxKeys(r, "max-keys")
	if code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	marker := query.Get("marker")

	res, err := api.objects.ListObjects(reqCtx.bucket, prefix, delimiter, marker, maxKeys)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	response := listBucketResult{
		Xmlns:       s3XMLNamespace,
		Name:        reqCtx.bucket,
		Prefix:      prefix,
		Marker:      marker,
		MaxKeys:     maxKeys,
		Delimiter:   delimiter,
		IsTruncated: res.isTruncated,
	}
	if res.isTruncated {
		response.NextMarker = res.nextMarker
	}
	for _, obj := range res.objects {
		response.Contents = append(response.Contents, toObjectContent(obj))
	}
	for _, p := range res.commonPrefixes {
		response.CommonPrefixes = append(response.CommonPrefixes, commonPrefix{Prefix: p})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// ListObjectsV2Handler - GET /{bucket}?list-type=2
func (api *apiHandlers) ListObjectsV2Handler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	maxKeys, code := parseMaxKeys(r, "max-keys")
	if code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	token := query.Get("continuation-token")
	startAfter := query.Get("start-after")

	// The continuation token doubles as the V1 marker; start-after only
	// applies on the first page.
	marker := token
	if marker == "" {
		marker = startAfter
	}

	res, err := api.objects.ListObjects(reqCtx.bucket, prefix, delimiter, marker, maxKeys)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	response := listBucketResultV2{
		Xmlns:             s3XMLNamespace,
		Name:              reqCtx.bucket,
		Prefix:            prefix,
		StartAfter:        startAfter,
		ContinuationToken: token,
		KeyCount:          len(res.objects) + len(res.commonPrefixes),
		MaxKeys:           maxKeys,
		Delimiter:         delimiter,
		IsTruncated:       res.isTruncated,
	}
	if res.isTruncated {
		response.NextContinuationToken = res.nextMarker
	}
	for _, obj := range res.objects {
		response.Contents = append(response.Contents, toObjectContent(obj))
	}
	for _, p := range res.commonPrefixes {
		response.CommonPrefixes = append(response.CommonPrefixes, commonPrefix{Prefix: p})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

// ListObjectVersionsHandler - GET /{bucket}?versions
func (api *apiHandlers) ListObjectVersionsHandler(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if code := api.checkBucketAccess(reqCtx); code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	query := r.URL.Query()
	maxKeys, code := parseMaxKeys(r, "max-keys")
	if code != ErrNone {
		writeErrorResponse(w, r, code, reqCtx.requestID)
		return
	}
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	keyMarker := query.Get("key-marker")
	versionIDMarker := query.Get("version-id-marker")

	out, err := api.objects.ListAllVersions(reqCtx.bucket, prefix, delimiter, keyMarker, versionIDMarker, maxKeys)
	if err != nil {
		writeErrorResponse(w, r, toAPIErrorCode(err), reqCtx.requestID)
		return
	}

	response := listVersionsResult{
		Xmlns:           s3XMLNamespace,
		Name:            reqCtx.bucket,
		Prefix:          prefix,
		KeyMarker:       keyMarker,
		VersionIDMarker: versionIDMarker,
		MaxKeys:         maxKeys,
		Delimiter:       delimiter,
		IsTruncated:     out.isTruncated,
	}
	if out.isTruncated {
		response.NextKeyMarker = out.nextKeyMarker
		response.NextVersionIDMarker = out.nextVersionIDMarker
	}
	for _, meta := range out.entries {
		versionID := meta.VersionID
		if versionID == "" {
			versionID = nullVersionID
		}
		if meta.IsDeleteMarker {
			response.Entries = append(response.Entries, deleteMarkerVersion{
				Key:          meta.Key,
				VersionID:    versionID,
				IsLatest:     meta.IsLatest,
				LastModified: contentTime{meta.UpdatedAt},
			})
			continue
		}
		response.Entries = append(response.Entries, objectVersion{
			Key:          meta.Key,
			VersionID:    versionID,
			IsLatest:     meta.IsLatest,
			LastModified: contentTime{meta.UpdatedAt},
			ETag:         "\"" + meta.ETag + "\"",
			Size:         meta.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range out.commonPrefixes {
		response.CommonPrefixes = append(response.CommonPrefixes, commonPrefix{Prefix: p})
	}
	writeSuccessResponseXML(w, encodeResponse(response))
}

func toObjectContent(meta ObjectMeta) objectContent {
	return objectContent{
		Key:          meta.Key,
		LastModified: contentTime{meta.UpdatedAt},
		ETag:         "\"" + meta.ETag + "\"",
		Size:         meta.Size,
		StorageClass: "STANDARD",
	}
}
