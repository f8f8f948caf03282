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
	"bytes"
	"encoding/xml"
	"net/http"
	"time"
)

// S3 XML namespace used in all responses.
const s3XMLNamespace = "http://s3.amazonaws.com/doc/2006-03-01/"

// contentTime marshals timestamps the way the aws xml code expects them,
// not Go's default RFC3339 with nanoseconds.
type contentTime struct {
	time.Time
}

func (c contentTime) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if c.IsZero() {
		return nil
	}
	return e.EncodeElement(c.Format("2006-01-02T15:04:05.999Z"), start)
}

// ownerInfo is the Owner/Initiator element.
type ownerInfo struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

// bucketInfo represents a single bucket in ListAllMyBucketsResult.
// CreationDate is required; without it boto fails to parse the response.
type bucketInfo struct {
	Name         string      `xml:"Name"`
	CreationDate contentTime `xml:"CreationDate"`
}

// listAllMyBucketsResult - GET / response.
type listAllMyBucketsResult struct {
	XMLName xml.Name     `xml:"ListAllMyBucketsResult"`
	Xmlns   string       `xml:"xmlns,attr"`
	Owner   ownerInfo    `xml:"Owner"`
	Buckets []bucketInfo `xml:"Buckets>Bucket"`
}

// commonPrefix lists partial delimited keys that represent pseudo-directories.
type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// objectContent is a single Contents entry of a bucket listing.
type objectContent struct {
	Key          string      `xml:"Key"`
	LastModified contentTime `xml:"LastModified"`
	ETag         string      `xml:"ETag"`
	Size         int64       `xml:"Size"`
	StorageClass string      `xml:"StorageClass"`
	Owner        *ownerInfo  `xml:"Owner,omitempty"`
}

// listBucketResult - GET /{bucket} (V1) response.
type listBucketResult struct {
	XMLName xml.Name `xml:"ListBucketResult"`
	Xmlns   string   `xml:"xmlns,attr"`

	Name        string `xml:"Name"`
	Prefix      string `xml:"Prefix"`
	Marker      string `xml:"Marker"`
	NextMarker  string `xml:"NextMarker,omitempty"`
	MaxKeys     int    `xml:"MaxKeys"`
	Delimiter   string `xml:"Delimiter,omitempty"`
	IsTruncated bool   `xml:"IsTruncated"`

	Contents       []objectContent `xml:"Contents"`
	CommonPrefixes []commonPrefix  `xml:"CommonPrefixes,omitempty"`
}

// listBucketResultV2 - GET /{bucket}?list-type=2 response.
type listBucketResultV2 struct {
	XMLName xml.Name `xml:"ListBucketResult"`
	Xmlns   string   `xml:"xmlns,attr"`

	Name                  string `xml:"Name"`
	Prefix                string `xml:"Prefix"`
	StartAfter            string `xml:"StartAfter,omitempty"`
	ContinuationToken     string `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string `xml:"NextContinuationToken,omitempty"`
	KeyCount              int    `xml:"KeyCount"`
	MaxKeys               int    `xml:"MaxKeys"`
	Delimiter             string `xml:"Delimiter,omitempty"`
	IsTruncated           bool   `xml:"IsTruncated"`

	Contents       []objectContent `xml:"Contents"`
	CommonPrefixes []commonPrefix  `xml:"CommonPrefixes,omitempty"`
}

// objectVersion is a <Version> entry of ListVersionsResult.
type objectVersion struct {
	XMLName      xml.Name    `xml:"Version"`
	Key          string      `xml:"Key"`
	VersionID    string      `xml:"VersionId"`
	IsLatest     bool        `xml:"IsLatest"`
	LastModified contentTime `xml:"LastModified"`
	ETag         string      `xml:"ETag"`
	Size         int64       `xml:"Size"`
	StorageClass string      `xml:"StorageClass"`
	Owner        *ownerInfo  `xml:"Owner,omitempty"`
}

// deleteMarkerVersion is a <DeleteMarker> entry of ListVersionsResult.
type deleteMarkerVersion struct {
	XMLName      xml.Name    `xml:"DeleteMarker"`
	Key          string      `xml:"Key"`
	VersionID    string      `xml:"VersionId"`
	IsLatest     bool        `xml:"IsLatest"`
	LastModified contentTime `xml:"LastModified"`
	Owner        *ownerInfo  `xml:"Owner,omitempty"`
}

// listVersionsResult - GET /{bucket}?versions response. AWS interleaves
// <Version> and <DeleteMarker> elements directly under the result element,
// so the entries slice holds both concrete types.
type listVersionsResult struct {
	XMLName xml.Name `xml:"ListVersionsResult"`
	Xmlns   string   `xml:"xmlns,attr"`

	Name                string `xml:"Name"`
	Prefix              string `xml:"Prefix"`
	KeyMarker           string `xml:"KeyMarker"`
	VersionIDMarker     string `xml:"VersionIdMarker"`
	NextKeyMarker       string `xml:"NextKeyMarker,omitempty"`
	NextVersionIDMarker string `xml:"NextVersionIdMarker,omitempty"`
	MaxKeys             int    `xml:"MaxKeys"`
	Delimiter           string `xml:"Delimiter,omitempty"`
	IsTruncated         bool   `xml:"IsTruncated"`

	// Entries holds concrete objectVersion / deleteMarkerVersion values;
	// their XMLName fields drive the element names.
	Entries []interface{}

	CommonPrefixes []commonPrefix `xml:"CommonPrefixes,omitempty"`
}

// locationResponse - GET /{bucket}?location response.
type locationResponse struct {
	XMLName  xml.Name `xml:"LocationConstraint"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:",chardata"`
}

// versioningConfiguration - body of PUT/GET /{bucket}?versioning.
type versioningConfiguration struct {
	XMLName xml.Name `xml:"VersioningConfiguration"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Status  string   `xml:"Status,omitempty"`
}

// initiateMultipartUploadResult - POST /{bucket}/{key}?uploads response.
type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

// completeMultipartUpload - POST /{bucket}/{key}?uploadId= request body.
type completeMultipartUpload struct {
	XMLName xml.Name        `xml:"CompleteMultipartUpload"`
	Parts   []completedPart `xml:"Part"`
}

type completedPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// completeMultipartUploadResult - POST /{bucket}/{key}?uploadId= response.
type completeMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	Xmlns    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// copyObjectResult - PUT /{bucket}/{key} with x-amz-copy-source response.
type copyObjectResult struct {
	XMLName      xml.Name    `xml:"CopyObjectResult"`
	Xmlns        string      `xml:"xmlns,attr"`
	LastModified contentTime `xml:"LastModified"`
	ETag         string      `xml:"ETag"`
}

// listPartsResult - GET /{bucket}/{key}?uploadId= response.
type listPartsResult struct {
	XMLName xml.Name `xml:"ListPartsResult"`
	Xmlns   string   `xml:"xmlns,attr"`

	Bucket               string     `xml:"Bucket"`
	Key                  string     `xml:"Key"`
	UploadID             string     `xml:"UploadId"`
	Initiator            *ownerInfo `xml:"Initiator,omitempty"`
	Owner                *ownerInfo `xml:"Owner,omitempty"`
	StorageClass         string     `xml:"StorageClass"`
	PartNumberMarker     int        `xml:"PartNumberMarker"`
	NextPartNumberMarker int        `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int        `xml:"MaxParts"`
	IsTruncated          bool       `xml:"IsTruncated"`

	Parts []listPartItem `xml:"Part"`
}

type listPartItem struct {
	PartNumber   int         `xml:"PartNumber"`
	LastModified contentTime `xml:"LastModified"`
	ETag         string      `xml:"ETag"`
	Size         int64       `xml:"Size"`
}

// listMultipartUploadsResult - GET /{bucket}?uploads response.
type listMultipartUploadsResult struct {
	XMLName xml.Name `xml:"ListMultipartUploadsResult"`
	Xmlns   string   `xml:"xmlns,attr"`

	Bucket             string `xml:"Bucket"`
	KeyMarker          string `xml:"KeyMarker"`
	UploadIDMarker     string `xml:"UploadIdMarker"`
	NextKeyMarker      string `xml:"NextKeyMarker,omitempty"`
	NextUploadIDMarker string `xml:"NextUploadIdMarker,omitempty"`
	MaxUploads         int    `xml:"MaxUploads"`
	Prefix             string `xml:"Prefix"`
	Delimiter          string `xml:"Delimiter,omitempty"`
	IsTruncated        bool   `xml:"IsTruncated"`

	Uploads        []uploadItem   `xml:"Upload"`
	CommonPrefixes []commonPrefix `xml:"CommonPrefixes,omitempty"`
}

type uploadItem struct {
	Key          string      `xml:"Key"`
	UploadID     string      `xml:"UploadId"`
	Initiator    *ownerInfo  `xml:"Initiator,omitempty"`
	Owner        *ownerInfo  `xml:"Owner,omitempty"`
	StorageClass string      `xml:"StorageClass"`
	Initiated    contentTime `xml:"Initiated"`
}

// encodeResponse encodes a response value as XML with the standard header.
func encodeResponse(response interface{}) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(response); err != nil {
		return nil
	}
	return buf.Bytes()
}

// setCommonHeaders sets headers present on every response.
func setCommonHeaders(w http.ResponseWriter, requestID string) {
	w.Header().Set("Server", "Cask")
	w.Header().Set("X-Amz-Request-Id", requestID)
	w.Header().Set("Accept-Ranges", "bytes")
}

// writeSuccessResponseXML writes success headers and an XML response body.
func writeSuccessResponseXML(w http.ResponseWriter, response []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(response)
}

// writeSuccessNoContent writes success headers with http status 204.
func writeSuccessNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeErrorResponse writes the S3 <Error> envelope for the given code.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, code APIErrorCode, requestID string) {
	apiErr := getAPIError(code)
	errResp := APIErrorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Description,
		Resource:  r.URL.Path,
		RequestID: requestID,
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(apiErr.HTTPStatusCode)
	// HEAD requests carry no body, the status line is the whole story.
	if r.Method != http.MethodHead {
		w.Write(encodeResponse(errResp))
	}
}
