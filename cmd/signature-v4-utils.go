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
	"strconv"
	"strings"
)

// http Header "x-amz-content-sha256" == "UNSIGNED-PAYLOAD" indicates that the
// client did not calculate sha256 of the payload.
const unsignedPayload = "UNSIGNED-PAYLOAD"

// emptySHA256 is the hex sha256 of a zero length payload, the default
// checksum a header-signed request commits to when it omits the header.
const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// isRequestSignatureV4 verify if the request has AWS Signature Version '4'.
func isRequestSignatureV4(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), signV4Algorithm)
}

// isRequestPresignedSignatureV4 verify if the request has presigned AWS
// Signature Version '4' query parameters.
func isRequestPresignedSignatureV4(r *http.Request) bool {
	_, ok := r.URL.Query()["X-Amz-Credential"]
	return ok
}

// getContentSha256Cksum returns the content checksum the client committed to.
// For presigned GET/HEAD requests the payload is never signed, so the
// checksum defaults to UNSIGNED-PAYLOAD when the query omits it.
func getContentSha256Cksum(r *http.Request) string {
	if isRequestPresignedSignatureV4(r) {
		v, ok := r.URL.Query()["X-Amz-Content-Sha256"]
		if ok {
			return v[0]
		}
		return unsignedPayload
	}
	if v := r.Header.Get("X-Amz-Content-Sha256"); v != "" {
		return v
	}
	return emptySHA256
}

// isValidRegion - verify if incoming region value is valid with configured Region.
func isValidRegion(reqRegion string, confRegion string) bool {
	if confRegion == "" || confRegion == "US" {
		confRegion = globalDefaultRegion
	}
	if reqRegion == "US" {
		reqRegion = globalDefaultRegion
	}
	return reqRegion == confRegion
}

// extractSignedHeaders extract signed headers from Authorization header.
// Clients must always sign the host header; anything else they claim to
// have signed must actually be present on the request.
func extractSignedHeaders(signedHeaders []string, r *http.Request) (http.Header, APIErrorCode) {
	reqHeaders := r.Header
	// find whether "host" is part of list of signed headers.
	// if not return ErrSignatureDoesNotMatch. "host" is mandatory.
	if !contains(signedHeaders, "host") {
		return nil, ErrSignatureDoesNotMatch
	}
	extractedSignedHeaders := make(http.Header)
	for _, header := range signedHeaders {
		// `host` will not be found in the headers, can be found in r.Host.
		// but its alway necessary that the list of signed headers containing host in it.
		val, ok := reqHeaders[http.CanonicalHeaderKey(header)]
		if ok {
			extractedSignedHeaders[http.CanonicalHeaderKey(header)] = val
			continue
		}
		switch header {
		case "expect":
			// Golang http server strips off 'Expect' header, if the
			// client sent this as part of signed headers we need to
			// handle otherwise we would see a signature mismatch.
			// `aws-cli` sets this as part of signed headers.
			extractedSignedHeaders.Set(header, "100-continue")
		case "host":
			// Go http server removes "host" from Request.Header.
			extractedSignedHeaders.Set(header, r.Host)
		case "transfer-encoding":
			// Go http server removes "Transfer-Encoding" from Request.Header.
			extractedSignedHeaders[http.CanonicalHeaderKey(header)] = r.TransferEncoding
		case "content-length":
			// Signature-V4 spec excludes Content-Length from signed headers
			// list for signature calculation. But some clients like rclone
			// sign it anyway, in which case Go strips it into r.ContentLength.
			extractedSignedHeaders.Set(header, strconv.FormatInt(r.ContentLength, 10))
		default:
			return nil, ErrSignatureDoesNotMatch
		}
	}
	return extractedSignedHeaders, ErrNone
}

// contains reports whether the string slice has a given element.
func contains(list []string, elem string) bool {
	for _, s := range list {
		if s == elem {
			return true
		}
	}
	return false
}

// Trim leading and trailing spaces and replace sequential spaces with one
// space, following Trimall() in Signature V4 specification.
func signV4TrimAll(input string) string {
	// Compress adjacent spaces (a space is determined by
	// unicode.IsSpace() internally here) to one space and return
	return strings.Join(strings.Fields(input), " ")
}
