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
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/xid"
)

// apiHandlers carries the wired storage stack into every request
// handler.
type apiHandlers struct {
	catalog     *catalog
	creds       *credentialCache
	objects     *fsStore
	multipart   *multipartStore
	region      string
	maxBodySize int64
}

// requestContext is the per-request state resolved by the auth
// middleware.
type requestContext struct {
	requestID string
	accessKey string
	userID    string
	bucket    string
	object    string
}

type s3Handler func(w http.ResponseWriter, r *http.Request, reqCtx *requestContext)

// authenticated wraps an S3 handler with request id minting, body size
// bounding, SigV4 verification and aws-chunked decoding.
func (api *apiHandlers) authenticated(handler s3Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		reqCtx := &requestContext{
			requestID: xid.New().String(),
			bucket:    ps.ByName("bucket"),
			object:    strings.TrimPrefix(ps.ByName("object"), "/"),
		}
		setCommonHeaders(w, reqCtx.requestID)

		if api.maxBodySize > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, api.maxBodySize)
		}

		code, accessKey := api.checkRequestAuth(r)
		if code != ErrNone {
			writeErrorResponse(w, r, code, reqCtx.requestID)
			return
		}
		reqCtx.accessKey = accessKey
		reqCtx.userID, _ = api.creds.lookupOwner(accessKey)

		switch {
		case isRequestSignStreamingV4(r) ||
			strings.Contains(r.Header.Get("Content-Encoding"), streamingContentCoding):
			// The seed signature over the streaming sentinel authenticated
			// the request; decode the chunk framing transparently from here.
			r.Body = newSignV4ChunkedReader(r)
		case r.Body != nil:
			// The signature committed to a payload digest. Verify it as
			// the body streams through instead of buffering the object.
			if sha := getContentSha256Cksum(r); sha != unsignedPayload && sha != streamingContentSHA256 {
				r.Body = newPayloadHashReader(r.Body, sha)
			}
		}

		handler(w, r, reqCtx)
	}
}

// checkRequestAuth verifies SigV4 in either header or query form and
// returns the authenticated access key. Anonymous requests are
// rejected.
func (api *apiHandlers) checkRequestAuth(r *http.Request) (APIErrorCode, string) {
	switch {
	case isRequestSignatureV4(r):
		signV4Values, s3Err := parseSignV4(r.Header.Get("Authorization"))
		if s3Err != ErrNone {
			return s3Err, ""
		}
		if s3Err = doesSignatureMatch(getContentSha256Cksum(r), r, api.creds); s3Err != ErrNone {
			return s3Err, ""
		}
		return ErrNone, signV4Values.Credential.accessKey
	case isRequestPresignedSignatureV4(r):
		preSignValues, s3Err := parsePreSignV4(r.URL.Query())
		if s3Err != ErrNone {
			return s3Err, ""
		}
		hashedPayload := getContentSha256Cksum(r)
		if s3Err = doesPresignedSignatureMatch(hashedPayload, r, api.creds); s3Err != ErrNone {
			return s3Err, ""
		}
		return ErrNone, preSignValues.Credential.accessKey
	default:
		return ErrAccessDenied, ""
	}
}

// payloadHashReader verifies the hex sha256 the client signed against
// the body as it streams past. The mismatch surfaces from Read at EOF,
// so the consuming write fails before it is committed.
type payloadHashReader struct {
	src  io.ReadCloser
	tee  io.Reader
	sum  hash.Hash
	want string
}

func newPayloadHashReader(body io.ReadCloser, want string) io.ReadCloser {
	h := sha256.New()
	return &payloadHashReader{
		src:  body,
		tee:  io.TeeReader(body, h),
		sum:  h,
		want: want,
	}
}

func (r *payloadHashReader) Read(p []byte) (int, error) {
	n, err := r.tee.Read(p)
	if err == io.EOF && hex.EncodeToString(r.sum.Sum(nil)) != r.want {
		return n, errPayloadHashMismatch
	}
	return n, err
}

func (r *payloadHashReader) Close() error {
	return r.src.Close()
}

// checkBucketAccess resolves bucket existence and ownership for
// bucket-scoped handlers.
func (api *apiHandlers) checkBucketAccess(reqCtx *requestContext) APIErrorCode {
	if _, ok := api.creds.bucketOwner(reqCtx.bucket); !ok {
		return ErrNoSuchBucket
	}
	if !api.creds.authorize(reqCtx.accessKey, reqCtx.bucket) {
		return ErrAccessDenied
	}
	return ErrNone
}

// queryHas reports presence of a sub-resource discriminator. The raw
// query is consulted through URL.Query, never ParseForm, which would
// consume POST bodies.
func queryHas(r *http.Request, key string) bool {
	_, ok := r.URL.Query()[key]
	return ok
}

// newAPIRouter builds the path-style S3 routing table.
func newAPIRouter(api *apiHandlers) http.Handler {
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false

	router.GET("/", api.authenticated(api.ListBucketsHandler))

	router.PUT("/:bucket", api.authenticated(api.bucketPutDispatch))
	router.GET("/:bucket", api.authenticated(api.bucketGetDispatch))
	router.HEAD("/:bucket", api.authenticated(api.HeadBucketHandler))
	router.DELETE("/:bucket", api.authenticated(api.DeleteBucketHandler))

	router.GET("/:bucket/*object", api.authenticated(api.objectGetDispatch))
	router.HEAD("/:bucket/*object", api.authenticated(api.HeadObjectHandler))
	router.PUT("/:bucket/*object", api.authenticated(api.objectPutDispatch))
	router.POST("/:bucket/*object", api.authenticated(api.objectPostDispatch))
	router.DELETE("/:bucket/*object", api.authenticated(api.objectDeleteDispatch))

	return router
}

// newServerHandler stacks the metrics endpoint and instrumentation in
// front of the S3 router.
func newServerHandler(api *apiHandlers) http.Handler {
	s3 := newAPIRouter(api)
	metrics := metricsHandler()
	return instrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == metricsPath {
			metrics.ServeHTTP(w, r)
			return
		}
		s3.ServeHTTP(w, r)
	}))
}

func (api *apiHandlers) bucketPutDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if queryHas(r, "versioning") {
		api.PutBucketVersioningHandler(w, r, reqCtx)
		return
	}
	api.PutBucketHandler(w, r, reqCtx)
}

func (api *apiHandlers) bucketGetDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	switch {
	case queryHas(r, "uploads"):
		api.ListMultipartUploadsHandler(w, r, reqCtx)
	case queryHas(r, "versioning"):
		api.GetBucketVersioningHandler(w, r, reqCtx)
	case queryHas(r, "versions"):
		api.ListObjectVersionsHandler(w, r, reqCtx)
	case queryHas(r, "location"):
		api.GetBucketLocationHandler(w, r, reqCtx)
	case queryHas(r, "policy"):
		api.GetBucketPolicyHandler(w, r, reqCtx)
	case r.URL.Query().Get("list-type") == "2":
		api.ListObjectsV2Handler(w, r, reqCtx)
	default:
		api.ListObjectsV1Handler(w, r, reqCtx)
	}
}

func (api *apiHandlers) objectGetDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if queryHas(r, "uploadId") {
		api.ListObjectPartsHandler(w, r, reqCtx)
		return
	}
	api.GetObjectHandler(w, r, reqCtx)
}

func (api *apiHandlers) objectPutDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	switch {
	case queryHas(r, "partNumber") && queryHas(r, "uploadId"):
		api.PutObjectPartHandler(w, r, reqCtx)
	case r.Header.Get("x-amz-copy-source") != "":
		api.CopyObjectHandler(w, r, reqCtx)
	default:
		api.PutObjectHandler(w, r, reqCtx)
	}
}

func (api *apiHandlers) objectPostDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	switch {
	case queryHas(r, "uploads"):
		api.NewMultipartUploadHandler(w, r, reqCtx)
	case queryHas(r, "uploadId"):
		api.CompleteMultipartUploadHandler(w, r, reqCtx)
	default:
		writeErrorResponse(w, r, ErrInvalidRequest, reqCtx.requestID)
	}
}

func (api *apiHandlers) objectDeleteDispatch(w http.ResponseWriter, r *http.Request, reqCtx *requestContext) {
	if queryHas(r, "uploadId") && !queryHas(r, "versionId") {
		api.AbortMultipartUploadHandler(w, r, reqCtx)
		return
	}
	api.DeleteObjectHandler(w, r, reqCtx)
}
