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
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// On-disk layout constants. An unversioned object lives at
// <bucket>/<key> next to a <key>.meta.json sidecar; versioned objects
// live under <key>.versions/<versionId> with <versionId>.meta.json
// sidecars. The .latest marker is a convenience pointer only, the
// sidecars' isLatest flags are authoritative.
const (
	metaSuffix     = ".meta.json"
	versionsSuffix = ".versions"
	latestMarker   = ".latest"

	// nullVersionID marks objects written while versioning was
	// suspended (or before it was enabled).
	nullVersionID = "null"
)

// ObjectMeta is the sidecar document stored next to every object.
type ObjectMeta struct {
	Bucket         string            `json:"bucket"`
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"contentType"`
	ETag           string            `json:"etag"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	UserMetadata   map[string]string `json:"userMetadata,omitempty"`
	VersionID      string            `json:"versionId,omitempty"`
	IsLatest       bool              `json:"isLatest"`
	IsDeleteMarker bool              `json:"isDeleteMarker,omitempty"`
}

// putOptions carries the caller-side inputs of a write.
type putOptions struct {
	versioning   string
	contentType  string
	userMetadata map[string]string
	// contentMD5 is the decoded Content-MD5 header, verified against
	// the computed digest when non-nil.
	contentMD5 []byte
	// etagOverride replaces the MD5-derived etag, used by multipart
	// complete for the composite form.
	etagOverride string
}

// fsStore is the filesystem-backed object engine rooted at BUCKETS_ROOT.
type fsStore struct {
	root string
}

func newFSStore(root string) (*fsStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fsStore{root: root}, nil
}

// mustGetUUIDHex returns a fresh 32 character lowercase hex id.
func mustGetUUIDHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func (fs *fsStore) bucketPath(bucket string) string {
	return filepath.Join(fs.root, url.PathEscape(bucket))
}

// objectPath maps (bucket, key) onto the filesystem after validating
// that the key cannot escape the bucket root.
func (fs *fsStore) objectPath(bucket, key string) (string, error) {
	if err := validateObjectKey(key); err != nil {
		return "", err
	}
	bucketDir := fs.bucketPath(bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	if p != bucketDir && !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", errS3(ErrInvalidArgument, "object key escapes bucket root")
	}
	return p, nil
}

// validateObjectKey rejects keys that could resolve outside the bucket
// tree before any path math happens.
func validateObjectKey(key string) error {
	if key == "" {
		return errS3(ErrInvalidArgument, "object key cannot be empty")
	}
	if strings.HasPrefix(key, "/") {
		return errS3(ErrInvalidArgument, "object key cannot start with '/'")
	}
	if strings.ContainsRune(key, '\x00') {
		return errS3(ErrInvalidArgument, "object key contains a NUL byte")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return errS3(ErrInvalidArgument, "object key contains a '..' segment")
		}
	}
	return nil
}

// MakeBucket creates the on-disk bucket directory.
func (fs *fsStore) MakeBucket(bucket string) error {
	return os.MkdirAll(fs.bucketPath(bucket), 0o755)
}

// RemoveBucket unlinks the bucket tree, history included. Callers gate
// this on HasAnyObjects.
func (fs *fsStore) RemoveBucket(bucket string) error {
	return os.RemoveAll(fs.bucketPath(bucket))
}

// writeTemp streams r into a fresh temp file inside dir, computing the
// MD5 digest on the way. The temp file is the caller's to rename or
// remove.
func writeTemp(dir string, r io.Reader) (tmpPath string, size int64, sum []byte, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, nil, err
	}
	f, err := os.CreateTemp(dir, ".cask-tmp-*")
	if err != nil {
		return "", 0, nil, err
	}
	h := md5.New()
	size, err = io.Copy(f, io.TeeReader(r, h))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, nil, err
	}
	return f.Name(), size, h.Sum(nil), nil
}

// writeSidecar persists meta atomically next to its object.
func writeSidecar(path string, meta ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readSidecar(path string) (ObjectMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ObjectMeta{}, err
	}
	var meta ObjectMeta
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// versionSidecars returns every versioned sidecar of a key, newest
// first by updatedAt (version ids carry no ordering of their own).
func (fs *fsStore) versionSidecars(bucket, key string) ([]ObjectMeta, error) {
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(objPath + versionsSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var metas []ObjectMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		meta, err := readSidecar(filepath.Join(objPath+versionsSuffix, entry.Name()))
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	sort.SliceStable(metas, func(i, j int) bool {
		if !metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
			return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
		}
		return metas[i].VersionID > metas[j].VersionID
	})
	return metas, nil
}

// unversionedSidecar reads the sidecar of the unversioned path if any.
func (fs *fsStore) unversionedSidecar(bucket, key string) (ObjectMeta, bool, error) {
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return ObjectMeta{}, false, err
	}
	meta, err := readSidecar(objPath + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, false, nil
		}
		return ObjectMeta{}, false, err
	}
	return meta, true, nil
}

// setLatest rewrites versioned sidecars so that only versionID (which
// may be empty for "no versioned latest") carries isLatest.
func (fs *fsStore) setLatest(bucket, key, versionID string) error {
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return err
	}
	metas, err := fs.versionSidecars(bucket, key)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		want := meta.VersionID == versionID
		if meta.IsLatest == want {
			continue
		}
		meta.IsLatest = want
		sidecar := filepath.Join(objPath+versionsSuffix, meta.VersionID+metaSuffix)
		if err = writeSidecar(sidecar, meta); err != nil {
			return err
		}
	}
	marker := filepath.Join(objPath+versionsSuffix, latestMarker)
	if versionID == "" {
		if err = os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(marker, []byte(versionID), 0o644)
}

// clearUnversionedLatest rewrites the unversioned sidecar, if one
// exists, so it no longer claims to be the latest. Called whenever a
// versioned write or delete marker takes over as current, keeping the
// one-latest-per-key invariant across the null and versioned records.
func (fs *fsStore) clearUnversionedLatest(bucket, key string) error {
	meta, ok, err := fs.unversionedSidecar(bucket, key)
	if err != nil || !ok || !meta.IsLatest {
		return err
	}
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return err
	}
	meta.IsLatest = false
	return writeSidecar(objPath+metaSuffix, meta)
}

// PutObject writes object bytes and metadata, honouring the bucket's
// versioning state. It returns the stored sidecar.
func (fs *fsStore) PutObject(bucket, key string, r io.Reader, opts putOptions) (ObjectMeta, error) {
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return ObjectMeta{}, err
	}

	versioned := opts.versioning == versioningEnabled
	destDir := filepath.Dir(objPath)
	if versioned {
		destDir = objPath + versionsSuffix
	}

	tmpPath, size, sum, err := writeTemp(destDir, r)
	if err != nil {
		return ObjectMeta{}, toChunkedReadError(err)
	}
	if opts.contentMD5 != nil && !bytes.Equal(opts.contentMD5, sum) {
		os.Remove(tmpPath)
		return ObjectMeta{}, errS3(ErrBadDigest, "Content-MD5 does not match object body")
	}

	etag := hex.EncodeToString(sum)
	if opts.etagOverride != "" {
		etag = opts.etagOverride
	}

	meta := ObjectMeta{
		Bucket:       bucket,
		Key:          key,
		Size:         size,
		ContentType:  opts.contentType,
		ETag:         etag,
		UpdatedAt:    UTCNow(),
		UserMetadata: opts.userMetadata,
		IsLatest:     true,
	}

	switch opts.versioning {
	case versioningEnabled:
		meta.VersionID = mustGetUUIDHex()
		dest := filepath.Join(objPath+versionsSuffix, meta.VersionID)
		if err = os.Rename(tmpPath, dest); err != nil {
			os.Remove(tmpPath)
			return ObjectMeta{}, errS3(ErrInternalError, "committing version: %v", err)
		}
		if err = writeSidecar(dest+metaSuffix, meta); err != nil {
			return ObjectMeta{}, errS3(ErrInternalError, "writing sidecar: %v", err)
		}
		if err = fs.setLatest(bucket, key, meta.VersionID); err != nil {
			return ObjectMeta{}, errS3(ErrInternalError, "updating latest: %v", err)
		}
		if err = fs.clearUnversionedLatest(bucket, key); err != nil {
			return ObjectMeta{}, errS3(ErrInternalError, "updating latest: %v", err)
		}
	case versioningSuspended:
		meta.VersionID = nullVersionID
		if err = commitUnversioned(objPath, tmpPath, meta); err != nil {
			return ObjectMeta{}, err
		}
		// Versioned history stays but no version is latest anymore.
		if err = fs.setLatest(bucket, key, ""); err != nil {
			return ObjectMeta{}, errS3(ErrInternalError, "updating latest: %v", err)
		}
	default:
		if err = commitUnversioned(objPath, tmpPath, meta); err != nil {
			return ObjectMeta{}, err
		}
	}
	return meta, nil
}

func commitUnversioned(objPath, tmpPath string, meta ObjectMeta) error {
	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return errS3(ErrInternalError, "committing object: %v", err)
	}
	if err := writeSidecar(objPath+metaSuffix, meta); err != nil {
		return errS3(ErrInternalError, "writing sidecar: %v", err)
	}
	return nil
}

// StatObject resolves (bucket, key, versionId) to its sidecar. An empty
// versionID resolves the current object. A delete marker resolves like
// any other version; callers decide how to surface it.
func (fs *fsStore) StatObject(bucket, key, versionID string) (ObjectMeta, error) {
	if versionID != "" {
		return fs.statVersion(bucket, key, versionID)
	}
	metas, err := fs.versionSidecars(bucket, key)
	if err != nil {
		return ObjectMeta{}, err
	}
	for _, meta := range metas {
		if meta.IsLatest {
			return meta, nil
		}
	}
	meta, ok, err := fs.unversionedSidecar(bucket, key)
	if err != nil {
		return ObjectMeta{}, err
	}
	if !ok {
		return ObjectMeta{}, errS3(ErrNoSuchKey, "")
	}
	return meta, nil
}

func (fs *fsStore) statVersion(bucket, key, versionID string) (ObjectMeta, error) {
	if versionID == nullVersionID {
		meta, ok, err := fs.unversionedSidecar(bucket, key)
		if err != nil {
			return ObjectMeta{}, err
		}
		if !ok {
			return ObjectMeta{}, errS3(ErrNoSuchKey, "")
		}
		return meta, nil
	}
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return ObjectMeta{}, err
	}
	meta, err := readSidecar(filepath.Join(objPath+versionsSuffix, versionID+metaSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, errS3(ErrNoSuchKey, "")
		}
		return ObjectMeta{}, err
	}
	return meta, nil
}

// OpenObject resolves the version like StatObject and opens its byte
// payload. Delete markers have no payload; the returned file is nil for
// them.
func (fs *fsStore) OpenObject(bucket, key, versionID string) (ObjectMeta, *os.File, error) {
	meta, err := fs.StatObject(bucket, key, versionID)
	if err != nil {
		return ObjectMeta{}, nil, err
	}
	if meta.IsDeleteMarker {
		return meta, nil, nil
	}
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return ObjectMeta{}, nil, err
	}
	bytesPath := objPath
	if meta.VersionID != "" && meta.VersionID != nullVersionID {
		bytesPath = filepath.Join(objPath+versionsSuffix, meta.VersionID)
	}
	f, err := os.Open(bytesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, nil, errS3(ErrNoSuchKey, "")
		}
		return ObjectMeta{}, nil, err
	}
	return meta, f, nil
}

// deleteResult reports what an unversioned delete produced.
type deleteResult struct {
	versionID    string
	deleteMarker bool
}

// DeleteObject implements both delete forms. With a version id the
// target version is removed permanently (idempotent when absent);
// without one the behaviour depends on the bucket's versioning state.
func (fs *fsStore) DeleteObject(bucket, key, versionID, versioning string) (deleteResult, error) {
	objPath, err := fs.objectPath(bucket, key)
	if err != nil {
		return deleteResult{}, err
	}

	if versionID != "" {
		return deleteResult{}, fs.deleteVersion(bucket, key, objPath, versionID)
	}

	if versioning == versioningEnabled {
		// Append a delete marker as the new latest version. A marker
		// has no byte payload, only a sidecar.
		marker := ObjectMeta{
			Bucket:         bucket,
			Key:            key,
			UpdatedAt:      UTCNow(),
			VersionID:      mustGetUUIDHex(),
			IsLatest:       true,
			IsDeleteMarker: true,
		}
		versionsDir := objPath + versionsSuffix
		if err = os.MkdirAll(versionsDir, 0o755); err != nil {
			return deleteResult{}, errS3(ErrInternalError, "creating versions dir: %v", err)
		}
		if err = writeSidecar(filepath.Join(versionsDir, marker.VersionID+metaSuffix), marker); err != nil {
			return deleteResult{}, errS3(ErrInternalError, "writing delete marker: %v", err)
		}
		if err = fs.setLatest(bucket, key, marker.VersionID); err != nil {
			return deleteResult{}, errS3(ErrInternalError, "updating latest: %v", err)
		}
		if err = fs.clearUnversionedLatest(bucket, key); err != nil {
			return deleteResult{}, errS3(ErrInternalError, "updating latest: %v", err)
		}
		return deleteResult{versionID: marker.VersionID, deleteMarker: true}, nil
	}

	// Disabled or Suspended: unlink everything the key ever stored.
	for _, p := range []string{objPath + versionsSuffix, objPath, objPath + metaSuffix} {
		if err = os.RemoveAll(p); err != nil {
			return deleteResult{}, errS3(ErrInternalError, "removing object: %v", err)
		}
	}
	return deleteResult{}, nil
}

// deleteVersion permanently removes one version and, when it was the
// latest, promotes the newest survivor.
func (fs *fsStore) deleteVersion(bucket, key, objPath, versionID string) error {
	if versionID == nullVersionID {
		for _, p := range []string{objPath, objPath + metaSuffix} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return errS3(ErrInternalError, "removing object: %v", err)
			}
		}
		return nil
	}

	versionsDir := objPath + versionsSuffix
	meta, err := readSidecar(filepath.Join(versionsDir, versionID+metaSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // idempotent
		}
		return errS3(ErrInternalError, "reading sidecar: %v", err)
	}
	for _, p := range []string{
		filepath.Join(versionsDir, versionID),
		filepath.Join(versionsDir, versionID+metaSuffix),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errS3(ErrInternalError, "removing version: %v", err)
		}
	}

	remaining, err := fs.versionSidecars(bucket, key)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		os.Remove(filepath.Join(versionsDir, latestMarker))
		os.Remove(versionsDir)
		return nil
	}
	if meta.IsLatest {
		// remaining is newest first.
		return fs.setLatest(bucket, key, remaining[0].VersionID)
	}
	return nil
}
