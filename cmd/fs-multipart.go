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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	multipartMetaFile = "meta.json"
	partFilePrefix    = "part-"
	partMetaSuffix    = ".meta"

	// globalMaxPartID is the S3 part number ceiling.
	globalMaxPartID = 10000
)

// multipartUpload is the upload-session record stored in meta.json.
type multipartUpload struct {
	UploadID     string            `json:"uploadId"`
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	ContentType  string            `json:"contentType"`
	UserMetadata map[string]string `json:"userMetadata,omitempty"`
	InitiatedAt  time.Time         `json:"initiatedAt"`
}

// partInfo is the per-part sidecar stored next to each part file.
type partInfo struct {
	PartNumber   int       `json:"partNumber"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// multipartStore keeps in-flight uploads in a scratch tree at
// MULTIPART_ROOT/<bucket>/<uploadId>/ and commits completed objects
// through the object engine.
type multipartStore struct {
	root    string
	objects *fsStore
}

func newMultipartStore(root string, objects *fsStore) (*multipartStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &multipartStore{root: root, objects: objects}, nil
}

func (m *multipartStore) bucketDir(bucket string) string {
	return filepath.Join(m.root, url.PathEscape(bucket))
}

func (m *multipartStore) uploadDir(bucket, uploadID string) string {
	return filepath.Join(m.bucketDir(bucket), uploadID)
}

// NewMultipartUpload opens an upload session and returns its id.
func (m *multipartStore) NewMultipartUpload(bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	if err := validateObjectKey(key); err != nil {
		return "", err
	}
	upload := multipartUpload{
		UploadID:     mustGetUUIDHex(),
		Bucket:       bucket,
		Key:          key,
		ContentType:  contentType,
		UserMetadata: userMetadata,
		InitiatedAt:  UTCNow(),
	}
	dir := m.uploadDir(bucket, upload.UploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errS3(ErrInternalError, "creating upload scratch: %v", err)
	}
	data, err := json.Marshal(upload)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, multipartMetaFile), data, 0o644); err != nil {
		return "", errS3(ErrInternalError, "writing upload meta: %v", err)
	}
	return upload.UploadID, nil
}

// getUpload loads the session record, mapping a missing scratch
// directory to NoSuchUpload.
func (m *multipartStore) getUpload(bucket, uploadID string) (multipartUpload, error) {
	data, err := os.ReadFile(filepath.Join(m.uploadDir(bucket, uploadID), multipartMetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return multipartUpload{}, errS3(ErrNoSuchUpload, "")
		}
		return multipartUpload{}, err
	}
	var upload multipartUpload
	err = json.Unmarshal(data, &upload)
	return upload, err
}

// PutObjectPart stores one part, overwriting any previous upload of the
// same number.
func (m *multipartStore) PutObjectPart(bucket, uploadID string, partNumber int, r io.Reader, contentMD5 []byte) (partInfo, error) {
	if partNumber < 1 || partNumber > globalMaxPartID {
		return partInfo{}, errS3(ErrInvalidArgument, "part number must be between 1 and %d", globalMaxPartID)
	}
	if _, err := m.getUpload(bucket, uploadID); err != nil {
		return partInfo{}, err
	}

	dir := m.uploadDir(bucket, uploadID)
	tmpPath, size, sum, err := writeTemp(dir, r)
	if err != nil {
		return partInfo{}, toChunkedReadError(err)
	}
	if contentMD5 != nil && !bytes.Equal(contentMD5, sum) {
		os.Remove(tmpPath)
		return partInfo{}, errS3(ErrBadDigest, "Content-MD5 does not match part body")
	}

	part := partInfo{
		PartNumber:   partNumber,
		ETag:         hex.EncodeToString(sum),
		Size:         size,
		LastModified: UTCNow(),
	}
	partPath := filepath.Join(dir, partFilePrefix+strconv.Itoa(partNumber))
	if err = os.Rename(tmpPath, partPath); err != nil {
		os.Remove(tmpPath)
		return partInfo{}, errS3(ErrInternalError, "committing part: %v", err)
	}
	data, err := json.Marshal(part)
	if err != nil {
		return partInfo{}, err
	}
	if err = os.WriteFile(partPath+partMetaSuffix, data, 0o644); err != nil {
		return partInfo{}, errS3(ErrInternalError, "writing part meta: %v", err)
	}
	return part, nil
}

func (m *multipartStore) readPartInfo(bucket, uploadID string, partNumber int) (partInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.uploadDir(bucket, uploadID),
		partFilePrefix+strconv.Itoa(partNumber)+partMetaSuffix))
	if err != nil {
		return partInfo{}, err
	}
	var part partInfo
	err = json.Unmarshal(data, &part)
	return part, err
}

// canonicalizeETag strips surrounding double quotes clients copy from
// upload-part responses.
func canonicalizeETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// CompleteMultipartUpload concatenates the named parts into the
// destination object, derives the composite etag and removes the
// scratch directory. A failed complete leaves the scratch intact so the
// client may retry.
func (m *multipartStore) CompleteMultipartUpload(bucket, uploadID string, parts []completedPart, versioning string) (ObjectMeta, error) {
	upload, err := m.getUpload(bucket, uploadID)
	if err != nil {
		return ObjectMeta{}, err
	}
	if len(parts) == 0 {
		return ObjectMeta{}, errS3(ErrMalformedXML, "you must specify at least one part")
	}

	sorted := make([]completedPart, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].PartNumber == sorted[i-1].PartNumber {
			return ObjectMeta{}, errS3(ErrInvalidPartOrder, "duplicate part number %d", sorted[i].PartNumber)
		}
	}

	// Verify every part against its recorded etag and accumulate the
	// binary digests for the composite etag.
	md5Concat := md5.New()
	files := make([]*os.File, 0, len(sorted))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range sorted {
		if p.PartNumber < 1 || p.PartNumber > globalMaxPartID {
			return ObjectMeta{}, errS3(ErrInvalidArgument, "part number must be between 1 and %d", globalMaxPartID)
		}
		stored, err := m.readPartInfo(bucket, uploadID, p.PartNumber)
		if err != nil {
			return ObjectMeta{}, errS3(ErrInvalidPart, "part %d was never uploaded", p.PartNumber)
		}
		if canonicalizeETag(p.ETag) != stored.ETag {
			return ObjectMeta{}, errS3(ErrInvalidPart, "part %d etag mismatch", p.PartNumber)
		}
		binMD5, err := hex.DecodeString(stored.ETag)
		if err != nil {
			return ObjectMeta{}, errS3(ErrInternalError, "corrupt part etag: %v", err)
		}
		md5Concat.Write(binMD5)

		f, err := os.Open(filepath.Join(m.uploadDir(bucket, uploadID), partFilePrefix+strconv.Itoa(p.PartNumber)))
		if err != nil {
			return ObjectMeta{}, errS3(ErrInvalidPart, "part %d was never uploaded", p.PartNumber)
		}
		files = append(files, f)
	}

	compositeETag := fmt.Sprintf("%s-%d", hex.EncodeToString(md5Concat.Sum(nil)), len(sorted))

	readers := make([]io.Reader, len(files))
	for i, f := range files {
		readers[i] = f
	}
	meta, err := m.objects.PutObject(upload.Bucket, upload.Key, io.MultiReader(readers...), putOptions{
		versioning:   versioning,
		contentType:  upload.ContentType,
		userMetadata: upload.UserMetadata,
		etagOverride: compositeETag,
	})
	if err != nil {
		return ObjectMeta{}, err
	}

	m.removeScratch(bucket, uploadID)
	return meta, nil
}

// AbortMultipartUpload discards the scratch directory. Missing uploads
// abort successfully, aborts are idempotent.
func (m *multipartStore) AbortMultipartUpload(bucket, uploadID string) error {
	m.removeScratch(bucket, uploadID)
	return nil
}

// RemoveBucket drops every in-flight upload of a bucket, called when
// the bucket itself is deleted.
func (m *multipartStore) RemoveBucket(bucket string) error {
	return os.RemoveAll(m.bucketDir(bucket))
}

func (m *multipartStore) removeScratch(bucket, uploadID string) {
	os.RemoveAll(m.uploadDir(bucket, uploadID))
	// Drop the per-bucket parent when it emptied out.
	os.Remove(m.bucketDir(bucket))
}

// ListParts returns the stored parts ordered by part number with
// marker pagination.
func (m *multipartStore) ListParts(bucket, uploadID string, partNumberMarker, maxParts int) (multipartUpload, []partInfo, bool, int, error) {
	upload, err := m.getUpload(bucket, uploadID)
	if err != nil {
		return multipartUpload{}, nil, false, 0, err
	}
	entries, err := os.ReadDir(m.uploadDir(bucket, uploadID))
	if err != nil {
		return multipartUpload{}, nil, false, 0, errS3(ErrNoSuchUpload, "")
	}
	var parts []partInfo
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, partFilePrefix) || !strings.HasSuffix(name, partMetaSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, partFilePrefix), partMetaSuffix))
		if err != nil {
			continue
		}
		if n <= partNumberMarker {
			continue
		}
		part, err := m.readPartInfo(bucket, uploadID, n)
		if err != nil {
			continue
		}
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	isTruncated := false
	nextMarker := 0
	if maxParts > 0 && len(parts) > maxParts {
		parts = parts[:maxParts]
		isTruncated = true
	}
	if len(parts) > 0 {
		nextMarker = parts[len(parts)-1].PartNumber
	}
	return upload, parts, isTruncated, nextMarker, nil
}

// ListMultipartUploads enumerates in-flight uploads for a bucket
// ordered by (key, uploadId) with two-field pagination and prefix
// filtering.
func (m *multipartStore) ListMultipartUploads(bucket, prefix, keyMarker, uploadIDMarker string, maxUploads int) ([]multipartUpload, bool, string, string, error) {
	entries, err := os.ReadDir(m.bucketDir(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, "", "", nil
		}
		return nil, false, "", "", err
	}
	var uploads []multipartUpload
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		upload, err := m.getUpload(bucket, entry.Name())
		if err != nil {
			continue
		}
		if prefix != "" && !strings.HasPrefix(upload.Key, prefix) {
			continue
		}
		if keyMarker != "" {
			if upload.Key < keyMarker {
				continue
			}
			if upload.Key == keyMarker && (uploadIDMarker == "" || upload.UploadID <= uploadIDMarker) {
				continue
			}
		}
		uploads = append(uploads, upload)
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})

	isTruncated := false
	if maxUploads > 0 && len(uploads) > maxUploads {
		uploads = uploads[:maxUploads]
		isTruncated = true
	}
	nextKeyMarker, nextUploadIDMarker := "", ""
	if len(uploads) > 0 {
		nextKeyMarker = uploads[len(uploads)-1].Key
		nextUploadIDMarker = uploads[len(uploads)-1].UploadID
	}
	return uploads, isTruncated, nextKeyMarker, nextUploadIDMarker, nil
}
