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
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	. "gopkg.in/check.v1"
)

type FSStoreSuite struct {
	store *fsStore
}

var _ = Suite(&FSStoreSuite{})

func (s *FSStoreSuite) SetUpTest(c *C) {
	store, err := newFSStore(c.MkDir())
	c.Assert(err, IsNil)
	c.Assert(store.MakeBucket("bucket"), IsNil)
	s.store = store
}

func (s *FSStoreSuite) put(c *C, key, body, versioning string) ObjectMeta {
	meta, err := s.store.PutObject("bucket", key, strings.NewReader(body), putOptions{
		versioning:  versioning,
		contentType: "text/plain",
	})
	c.Assert(err, IsNil)
	return meta
}

func (s *FSStoreSuite) read(c *C, key, versionID string) (ObjectMeta, string) {
	meta, f, err := s.store.OpenObject("bucket", key, versionID)
	c.Assert(err, IsNil)
	c.Assert(f, NotNil)
	defer f.Close()
	body, err := io.ReadAll(f)
	c.Assert(err, IsNil)
	return meta, string(body)
}

func (s *FSStoreSuite) TestPutGetRoundTrip(c *C) {
	body := "Hello, World!"
	meta := s.put(c, "greeting", body, versioningDisabled)

	sum := md5.Sum([]byte(body))
	c.Assert(meta.ETag, Equals, hex.EncodeToString(sum[:]))
	c.Assert(meta.Size, Equals, int64(len(body)))
	c.Assert(meta.IsLatest, Equals, true)
	c.Assert(meta.VersionID, Equals, "")

	got, gotBody := s.read(c, "greeting", "")
	c.Assert(gotBody, Equals, body)
	c.Assert(got.ETag, Equals, meta.ETag)
	c.Assert(got.ContentType, Equals, "text/plain")
}

func (s *FSStoreSuite) TestPutOverwriteDisabled(c *C) {
	s.put(c, "k", "v1", versioningDisabled)
	s.put(c, "k", "v2", versioningDisabled)
	_, body := s.read(c, "k", "")
	c.Assert(body, Equals, "v2")
}

func (s *FSStoreSuite) TestNestedKeys(c *C) {
	s.put(c, "a/b/c/deep", "payload", versioningDisabled)
	_, body := s.read(c, "a/b/c/deep", "")
	c.Assert(body, Equals, "payload")
}

func (s *FSStoreSuite) TestKeyValidation(c *C) {
	for _, key := range []string{"", "/leading", "a/../../../etc/passwd", "..", "nul\x00byte"} {
		_, err := s.store.PutObject("bucket", key, strings.NewReader("x"), putOptions{})
		c.Assert(err, NotNil, Commentf("key %q", key))
		c.Assert(toAPIErrorCode(err), Equals, ErrInvalidArgument, Commentf("key %q", key))
	}
}

func (s *FSStoreSuite) TestContentMD5Mismatch(c *C) {
	sum := md5.Sum([]byte("different body"))
	_, err := s.store.PutObject("bucket", "k", strings.NewReader("actual body"), putOptions{
		contentMD5: sum[:],
	})
	c.Assert(err, NotNil)
	c.Assert(toAPIErrorCode(err), Equals, ErrBadDigest)

	// And no partial state remains.
	_, err = s.store.StatObject("bucket", "k", "")
	c.Assert(toAPIErrorCode(err), Equals, ErrNoSuchKey)
}

func (s *FSStoreSuite) TestVersioningLifecycle(c *C) {
	v1 := s.put(c, "k", "v1", versioningEnabled)
	v2 := s.put(c, "k", "v2", versioningEnabled)
	c.Assert(v1.VersionID, Not(Equals), v2.VersionID)
	c.Assert(len(v1.VersionID), Equals, 32)

	// Latest resolves to the second write.
	_, body := s.read(c, "k", "")
	c.Assert(body, Equals, "v2")

	// Both versions remain addressable.
	_, body = s.read(c, "k", v1.VersionID)
	c.Assert(body, Equals, "v1")
	_, body = s.read(c, "k", v2.VersionID)
	c.Assert(body, Equals, "v2")

	// Exactly one version is latest.
	metas, err := s.store.versionSidecars("bucket", "k")
	c.Assert(err, IsNil)
	latest := 0
	for _, m := range metas {
		if m.IsLatest {
			latest++
		}
	}
	c.Assert(latest, Equals, 1)
}

func (s *FSStoreSuite) TestDeleteMarker(c *C) {
	v1 := s.put(c, "k", "v1", versioningEnabled)

	res, err := s.store.DeleteObject("bucket", "k", "", versioningEnabled)
	c.Assert(err, IsNil)
	c.Assert(res.deleteMarker, Equals, true)
	c.Assert(len(res.versionID), Equals, 32)

	// Unversioned read fails, the marker masks the key.
	_, err = s.store.StatObject("bucket", "k", "")
	c.Assert(err, IsNil) // marker itself resolves ...
	meta, _ := s.store.StatObject("bucket", "k", "")
	c.Assert(meta.IsDeleteMarker, Equals, true)

	// The old version is still reachable by id.
	_, body := s.read(c, "k", v1.VersionID)
	c.Assert(body, Equals, "v1")

	// Deleting the marker version promotes the survivor.
	_, err = s.store.DeleteObject("bucket", "k", res.versionID, versioningEnabled)
	c.Assert(err, IsNil)
	meta, err = s.store.StatObject("bucket", "k", "")
	c.Assert(err, IsNil)
	c.Assert(meta.IsDeleteMarker, Equals, false)
	c.Assert(meta.VersionID, Equals, v1.VersionID)
}

func (s *FSStoreSuite) TestDeleteVersionIdempotent(c *C) {
	s.put(c, "k", "v1", versioningEnabled)
	_, err := s.store.DeleteObject("bucket", "k", strings.Repeat("0", 32), versioningEnabled)
	c.Assert(err, IsNil)
}

func (s *FSStoreSuite) TestSuspendedPreservesHistory(c *C) {
	v1 := s.put(c, "k", "v1", versioningEnabled)
	suspended := s.put(c, "k", "v2", versioningSuspended)
	c.Assert(suspended.VersionID, Equals, nullVersionID)

	// The suspended write is current.
	meta, body := s.read(c, "k", "")
	c.Assert(body, Equals, "v2")
	c.Assert(meta.VersionID, Equals, nullVersionID)

	// The enabled-era version survives.
	_, body = s.read(c, "k", v1.VersionID)
	c.Assert(body, Equals, "v1")

	// The null version is addressable by its sentinel id.
	_, body = s.read(c, "k", nullVersionID)
	c.Assert(body, Equals, "v2")
}

func (s *FSStoreSuite) TestEnabledWriteAfterSuspendedSingleLatest(c *C) {
	s.put(c, "k", "v1", versioningEnabled)
	s.put(c, "k", "v2", versioningSuspended)
	v3 := s.put(c, "k", "v3", versioningEnabled)

	// The null version lost its latest flag to the new enabled write;
	// exactly one record carries it.
	versions, err := s.store.allVersions("bucket", "k")
	c.Assert(err, IsNil)
	latest := 0
	for _, m := range versions {
		if m.IsLatest {
			latest++
			c.Assert(m.VersionID, Equals, v3.VersionID)
		}
	}
	c.Assert(latest, Equals, 1)

	meta, body := s.read(c, "k", "")
	c.Assert(body, Equals, "v3")
	c.Assert(meta.VersionID, Equals, v3.VersionID)

	// The null version stays addressable.
	_, body = s.read(c, "k", nullVersionID)
	c.Assert(body, Equals, "v2")
}

func (s *FSStoreSuite) TestDeleteMarkerAfterSuspendedSingleLatest(c *C) {
	s.put(c, "k", "v1", versioningSuspended)

	res, err := s.store.DeleteObject("bucket", "k", "", versioningEnabled)
	c.Assert(err, IsNil)
	c.Assert(res.deleteMarker, Equals, true)

	versions, err := s.store.allVersions("bucket", "k")
	c.Assert(err, IsNil)
	latest := 0
	for _, m := range versions {
		if m.IsLatest {
			latest++
			c.Assert(m.IsDeleteMarker, Equals, true)
		}
	}
	c.Assert(latest, Equals, 1)
}

func (s *FSStoreSuite) TestUnversionedDeleteRemovesEverything(c *C) {
	s.put(c, "k", "v1", versioningEnabled)
	s.put(c, "k", "v2", versioningSuspended)

	_, err := s.store.DeleteObject("bucket", "k", "", versioningSuspended)
	c.Assert(err, IsNil)
	_, err = s.store.StatObject("bucket", "k", "")
	c.Assert(toAPIErrorCode(err), Equals, ErrNoSuchKey)

	// Idempotent.
	_, err = s.store.DeleteObject("bucket", "k", "", versioningSuspended)
	c.Assert(err, IsNil)
}

func (s *FSStoreSuite) TestListObjects(c *C) {
	for _, key := range []string{"a.txt", "dir/one", "dir/two", "z.txt"} {
		s.put(c, key, "x", versioningDisabled)
	}

	res, err := s.store.ListObjects("bucket", "", "", "", 1000)
	c.Assert(err, IsNil)
	c.Assert(res.isTruncated, Equals, false)
	keys := make([]string, 0, len(res.objects))
	for _, o := range res.objects {
		keys = append(keys, o.Key)
	}
	c.Assert(keys, DeepEquals, []string{"a.txt", "dir/one", "dir/two", "z.txt"})
}

func (s *FSStoreSuite) TestListObjectsDelimiter(c *C) {
	for _, key := range []string{"a.txt", "dir/one", "dir/two", "other/inner", "z.txt"} {
		s.put(c, key, "x", versioningDisabled)
	}

	res, err := s.store.ListObjects("bucket", "", "/", "", 1000)
	c.Assert(err, IsNil)
	keys := make([]string, 0, len(res.objects))
	for _, o := range res.objects {
		keys = append(keys, o.Key)
	}
	c.Assert(keys, DeepEquals, []string{"a.txt", "z.txt"})
	c.Assert(res.commonPrefixes, DeepEquals, []string{"dir/", "other/"})
}

func (s *FSStoreSuite) TestListObjectsPagination(c *C) {
	for _, key := range []string{"a", "b", "c", "d"} {
		s.put(c, key, "x", versioningDisabled)
	}

	res, err := s.store.ListObjects("bucket", "", "", "", 2)
	c.Assert(err, IsNil)
	c.Assert(res.isTruncated, Equals, true)
	c.Assert(res.nextMarker, Equals, "b")

	res, err = s.store.ListObjects("bucket", "", "", res.nextMarker, 2)
	c.Assert(err, IsNil)
	c.Assert(res.isTruncated, Equals, false)
	c.Assert(len(res.objects), Equals, 2)
	c.Assert(res.objects[0].Key, Equals, "c")
	c.Assert(res.objects[1].Key, Equals, "d")
}

func (s *FSStoreSuite) TestListObjectsDelimiterPagination(c *C) {
	for _, key := range []string{"a.txt", "dir/one", "dir/two", "dir/three", "z.txt"} {
		s.put(c, key, "x", versioningDisabled)
	}

	res, err := s.store.ListObjects("bucket", "", "/", "", 2)
	c.Assert(err, IsNil)
	c.Assert(res.isTruncated, Equals, true)
	keys := make([]string, 0, len(res.objects))
	for _, o := range res.objects {
		keys = append(keys, o.Key)
	}
	c.Assert(keys, DeepEquals, []string{"a.txt"})
	c.Assert(res.commonPrefixes, DeepEquals, []string{"dir/"})
	c.Assert(res.nextMarker, Equals, "dir/")

	// The next page must not repeat the prefix the first page ended on.
	res, err = s.store.ListObjects("bucket", "", "/", res.nextMarker, 2)
	c.Assert(err, IsNil)
	c.Assert(res.isTruncated, Equals, false)
	c.Assert(len(res.commonPrefixes), Equals, 0)
	c.Assert(len(res.objects), Equals, 1)
	c.Assert(res.objects[0].Key, Equals, "z.txt")
}

func (s *FSStoreSuite) TestListAllVersionsDelimiterPagination(c *C) {
	for _, key := range []string{"a", "dir/one", "dir/two", "z"} {
		s.put(c, key, "x", versioningEnabled)
	}

	out, err := s.store.ListAllVersions("bucket", "", "/", "", "", 2)
	c.Assert(err, IsNil)
	c.Assert(out.isTruncated, Equals, true)
	c.Assert(len(out.entries), Equals, 1)
	c.Assert(out.entries[0].Key, Equals, "a")
	c.Assert(out.commonPrefixes, DeepEquals, []string{"dir/"})
	c.Assert(out.nextKeyMarker, Equals, "dir/")

	out, err = s.store.ListAllVersions("bucket", "", "/", out.nextKeyMarker, out.nextVersionIDMarker, 2)
	c.Assert(err, IsNil)
	c.Assert(out.isTruncated, Equals, false)
	c.Assert(len(out.commonPrefixes), Equals, 0)
	c.Assert(len(out.entries), Equals, 1)
	c.Assert(out.entries[0].Key, Equals, "z")
}

func (s *FSStoreSuite) TestListExcludesDeleteMarkedKeys(c *C) {
	s.put(c, "kept", "x", versioningEnabled)
	s.put(c, "gone", "x", versioningEnabled)
	_, err := s.store.DeleteObject("bucket", "gone", "", versioningEnabled)
	c.Assert(err, IsNil)

	res, err := s.store.ListObjects("bucket", "", "", "", 1000)
	c.Assert(err, IsNil)
	c.Assert(len(res.objects), Equals, 1)
	c.Assert(res.objects[0].Key, Equals, "kept")
}

func (s *FSStoreSuite) TestListAllVersions(c *C) {
	v1 := s.put(c, "k", "v1", versioningEnabled)
	v2 := s.put(c, "k", "v2", versioningEnabled)

	out, err := s.store.ListAllVersions("bucket", "", "", "", "", 1000)
	c.Assert(err, IsNil)
	c.Assert(len(out.entries), Equals, 2)
	// Newest first within the key.
	c.Assert(out.entries[0].VersionID, Equals, v2.VersionID)
	c.Assert(out.entries[1].VersionID, Equals, v1.VersionID)
	c.Assert(out.entries[0].IsLatest, Equals, true)
	c.Assert(out.entries[1].IsLatest, Equals, false)
}

func (s *FSStoreSuite) TestHasAnyObjects(c *C) {
	empty, err := s.store.HasAnyObjects("bucket")
	c.Assert(err, IsNil)
	c.Assert(empty, Equals, false)

	s.put(c, "k", "x", versioningEnabled)
	nonEmpty, err := s.store.HasAnyObjects("bucket")
	c.Assert(err, IsNil)
	c.Assert(nonEmpty, Equals, true)

	// A delete marker masks the key again.
	_, err = s.store.DeleteObject("bucket", "k", "", versioningEnabled)
	c.Assert(err, IsNil)
	masked, err := s.store.HasAnyObjects("bucket")
	c.Assert(err, IsNil)
	c.Assert(masked, Equals, false)
}
