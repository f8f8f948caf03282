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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// listObjectsResult is the engine-level output of a bucket listing.
type listObjectsResult struct {
	objects        []ObjectMeta
	commonPrefixes []string
	isTruncated    bool
	nextMarker     string
}

// listVersionsOutput is the engine-level output of a version listing.
// entries interleaves object versions and delete markers, ordered by
// key then newest first within a key.
type listVersionsOutput struct {
	entries             []ObjectMeta
	commonPrefixes      []string
	isTruncated         bool
	nextKeyMarker       string
	nextVersionIDMarker string
}

// currentKeys walks the bucket tree and returns the sorted set of keys
// that have any stored state, current or historical. Sidecars, markers
// and temp files are skipped; a .versions directory counts as its key
// without descending into it.
func (s *fsStore) currentKeys(bucket string) ([]string, error) {
	bucketDir := s.bucketPath(bucket)
	seen := make(map[string]struct{})
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == bucketDir {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasSuffix(key, versionsSuffix) {
				seen[strings.TrimSuffix(key, versionsSuffix)] = struct{}{}
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, metaSuffix) ||
			strings.HasPrefix(name, ".cask-tmp-") ||
			strings.HasSuffix(name, metaSuffix+".tmp") ||
			name == latestMarker {
			return nil
		}
		seen[key] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListObjects returns the current objects under prefix, grouping by
// delimiter into common prefixes. Keys whose latest version is a delete
// marker do not appear. Common prefixes count against maxKeys just like
// objects.
func (s *fsStore) ListObjects(bucket, prefix, delimiter, marker string, maxKeys int) (listObjectsResult, error) {
	keys, err := s.currentKeys(bucket)
	if err != nil {
		return listObjectsResult{}, err
	}

	var res listObjectsResult
	lastPrefix := ""
	count := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		// A marker ending in the delimiter is a common prefix emitted on
		// an earlier page; everything under it is already accounted for.
		if marker != "" && (key <= marker || skipsUnderPrefixMarker(key, marker, delimiter)) {
			continue
		}

		entryName := key
		isPrefix := false
		if delimiter != "" {
			if idx := strings.Index(key[len(prefix):], delimiter); idx >= 0 {
				entryName = prefix + key[len(prefix):][:idx+len(delimiter)]
				isPrefix = true
			}
		}
		if isPrefix && entryName == lastPrefix {
			continue
		}

		var meta ObjectMeta
		if !isPrefix {
			meta, err = s.StatObject(bucket, key, "")
			if err != nil {
				if toAPIErrorCode(err) == ErrNoSuchKey {
					continue
				}
				return listObjectsResult{}, err
			}
			if meta.IsDeleteMarker {
				continue
			}
		}

		if count == maxKeys {
			res.isTruncated = true
			return res, nil
		}
		if isPrefix {
			res.commonPrefixes = append(res.commonPrefixes, entryName)
			lastPrefix = entryName
		} else {
			res.objects = append(res.objects, meta)
		}
		res.nextMarker = entryName
		count++
	}
	return res, nil
}

// skipsUnderPrefixMarker reports whether key falls inside a marker that
// names a common prefix from an earlier page.
func skipsUnderPrefixMarker(key, marker, delimiter string) bool {
	return delimiter != "" && strings.HasSuffix(marker, delimiter) && strings.HasPrefix(key, marker)
}

// allVersions merges the versioned history of a key with its
// unversioned current object, newest first.
func (s *fsStore) allVersions(bucket, key string) ([]ObjectMeta, error) {
	metas, err := s.versionSidecars(bucket, key)
	if err != nil {
		return nil, err
	}
	unv, ok, err := s.unversionedSidecar(bucket, key)
	if err != nil {
		return nil, err
	}
	if ok {
		if unv.VersionID == "" {
			unv.VersionID = nullVersionID
		}
		metas = append(metas, unv)
		sort.SliceStable(metas, func(i, j int) bool {
			if !metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
				return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
			}
			return metas[i].VersionID > metas[j].VersionID
		})
	}
	return metas, nil
}

// ListAllVersions enumerates every version and delete marker under
// prefix with two-field (key, versionId) pagination.
func (s *fsStore) ListAllVersions(bucket, prefix, delimiter, keyMarker, versionIDMarker string, maxKeys int) (listVersionsOutput, error) {
	keys, err := s.currentKeys(bucket)
	if err != nil {
		return listVersionsOutput{}, err
	}

	var out listVersionsOutput
	lastPrefix := ""
	count := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if keyMarker != "" {
			if key < keyMarker {
				continue
			}
			if key == keyMarker && versionIDMarker == "" {
				continue
			}
			if skipsUnderPrefixMarker(key, keyMarker, delimiter) {
				continue
			}
		}

		if delimiter != "" {
			if idx := strings.Index(key[len(prefix):], delimiter); idx >= 0 {
				cp := prefix + key[len(prefix):][:idx+len(delimiter)]
				if cp == lastPrefix {
					continue
				}
				if count == maxKeys {
					out.isTruncated = true
					return out, nil
				}
				out.commonPrefixes = append(out.commonPrefixes, cp)
				lastPrefix = cp
				out.nextKeyMarker = cp
				out.nextVersionIDMarker = ""
				count++
				continue
			}
		}

		versions, err := s.allVersions(bucket, key)
		if err != nil {
			return listVersionsOutput{}, err
		}
		skipping := key == keyMarker && versionIDMarker != ""
		for _, v := range versions {
			if skipping {
				if v.VersionID == versionIDMarker {
					skipping = false
				}
				continue
			}
			if count == maxKeys {
				out.isTruncated = true
				return out, nil
			}
			out.entries = append(out.entries, v)
			out.nextKeyMarker = v.Key
			out.nextVersionIDMarker = v.VersionID
			count++
		}
	}
	return out, nil
}

// HasAnyObjects reports whether the bucket holds any current key that
// is not masked by a delete marker. Bucket deletion is gated on this.
func (s *fsStore) HasAnyObjects(bucket string) (bool, error) {
	keys, err := s.currentKeys(bucket)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		meta, err := s.StatObject(bucket, key, "")
		if err != nil {
			if toAPIErrorCode(err) == ErrNoSuchKey {
				continue
			}
			return false, err
		}
		if !meta.IsDeleteMarker {
			return true, nil
		}
	}
	return false, nil
}
