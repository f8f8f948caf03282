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
	"regexp"
	"strings"

	. "gopkg.in/check.v1"
)

type MultipartSuite struct {
	objects *fsStore
	store   *multipartStore
}

var _ = Suite(&MultipartSuite{})

func (s *MultipartSuite) SetUpTest(c *C) {
	dir := c.MkDir()
	objects, err := newFSStore(dir + "/buckets")
	c.Assert(err, IsNil)
	c.Assert(objects.MakeBucket("bucket"), IsNil)
	store, err := newMultipartStore(dir+"/multipart", objects)
	c.Assert(err, IsNil)
	s.objects = objects
	s.store = store
}

func (s *MultipartSuite) uploadPart(c *C, uploadID string, n int, body string) partInfo {
	part, err := s.store.PutObjectPart("bucket", uploadID, n, strings.NewReader(body), nil)
	c.Assert(err, IsNil)
	sum := md5.Sum([]byte(body))
	c.Assert(part.ETag, Equals, hex.EncodeToString(sum[:]))
	return part
}

func (s *MultipartSuite) TestCompleteRoundTrip(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "big", "text/plain", nil)
	c.Assert(err, IsNil)
	c.Assert(len(uploadID), Equals, 32)

	p1 := s.uploadPart(c, uploadID, 1, "Hello, ")
	p2 := s.uploadPart(c, uploadID, 2, "World!")

	meta, err := s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
		{PartNumber: 2, ETag: p2.ETag},
	}, versioningDisabled)
	c.Assert(err, IsNil)
	c.Assert(meta.ETag, Matches, `^[0-9a-f]{32}-2$`)
	c.Assert(meta.Size, Equals, int64(len("Hello, World!")))

	_, f, err := s.objects.OpenObject("bucket", "big", "")
	c.Assert(err, IsNil)
	defer f.Close()
	body, err := io.ReadAll(f)
	c.Assert(err, IsNil)
	c.Assert(string(body), Equals, "Hello, World!")

	// The scratch directory is gone; a second Complete cannot run.
	_, err = s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
	}, versioningDisabled)
	c.Assert(toAPIErrorCode(err), Equals, ErrNoSuchUpload)
}

func (s *MultipartSuite) TestCompositeETag(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	p1 := s.uploadPart(c, uploadID, 1, "aaa")
	p2 := s.uploadPart(c, uploadID, 2, "bbb")

	bin1, _ := hex.DecodeString(p1.ETag)
	bin2, _ := hex.DecodeString(p2.ETag)
	concat := md5.Sum(append(bin1, bin2...))
	want := hex.EncodeToString(concat[:]) + "-2"

	meta, err := s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
		{PartNumber: 2, ETag: p2.ETag},
	}, versioningDisabled)
	c.Assert(err, IsNil)
	c.Assert(meta.ETag, Equals, want)
	c.Assert(regexp.MustCompile(`^[0-9a-f]{32}-[1-9][0-9]{0,4}$`).MatchString(meta.ETag), Equals, true)
}

func (s *MultipartSuite) TestCompleteDuplicatePart(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	p1 := s.uploadPart(c, uploadID, 1, "data")

	_, err = s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
		{PartNumber: 1, ETag: p1.ETag},
	}, versioningDisabled)
	c.Assert(toAPIErrorCode(err), Equals, ErrInvalidPartOrder)
}

func (s *MultipartSuite) TestCompleteGapAllowed(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	p1 := s.uploadPart(c, uploadID, 1, "one")
	p3 := s.uploadPart(c, uploadID, 3, "three")

	meta, err := s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
		{PartNumber: 3, ETag: p3.ETag},
	}, versioningDisabled)
	c.Assert(err, IsNil)
	c.Assert(strings.HasSuffix(meta.ETag, "-2"), Equals, true)
}

func (s *MultipartSuite) TestCompleteWrongETag(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	s.uploadPart(c, uploadID, 1, "data")

	_, err = s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: strings.Repeat("0", 32)},
	}, versioningDisabled)
	c.Assert(toAPIErrorCode(err), Equals, ErrInvalidPart)

	// A failed complete leaves the upload intact for a retry.
	_, _, _, _, err = s.store.ListParts("bucket", uploadID, 0, 100)
	c.Assert(err, IsNil)
}

func (s *MultipartSuite) TestCompleteQuotedETags(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	p1 := s.uploadPart(c, uploadID, 1, "data")

	_, err = s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: "\"" + p1.ETag + "\""},
	}, versioningDisabled)
	c.Assert(err, IsNil)
}

func (s *MultipartSuite) TestPartNumberBounds(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)

	_, err = s.store.PutObjectPart("bucket", uploadID, 0, strings.NewReader("x"), nil)
	c.Assert(toAPIErrorCode(err), Equals, ErrInvalidArgument)
	_, err = s.store.PutObjectPart("bucket", uploadID, 10001, strings.NewReader("x"), nil)
	c.Assert(toAPIErrorCode(err), Equals, ErrInvalidArgument)
}

func (s *MultipartSuite) TestPartOverwrite(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	s.uploadPart(c, uploadID, 1, "first")
	p1 := s.uploadPart(c, uploadID, 1, "second")

	meta, err := s.store.CompleteMultipartUpload("bucket", uploadID, []completedPart{
		{PartNumber: 1, ETag: p1.ETag},
	}, versioningDisabled)
	c.Assert(err, IsNil)
	c.Assert(meta.Size, Equals, int64(len("second")))
}

func (s *MultipartSuite) TestAbortIdempotent(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	s.uploadPart(c, uploadID, 1, "data")

	c.Assert(s.store.AbortMultipartUpload("bucket", uploadID), IsNil)
	_, err = s.store.getUpload("bucket", uploadID)
	c.Assert(toAPIErrorCode(err), Equals, ErrNoSuchUpload)

	// Aborting again, or aborting an unknown id, still succeeds.
	c.Assert(s.store.AbortMultipartUpload("bucket", uploadID), IsNil)
	c.Assert(s.store.AbortMultipartUpload("bucket", "ffffffffffffffffffffffffffffffff"), IsNil)
}

func (s *MultipartSuite) TestListParts(c *C) {
	uploadID, err := s.store.NewMultipartUpload("bucket", "obj", "", nil)
	c.Assert(err, IsNil)
	for i := 1; i <= 5; i++ {
		s.uploadPart(c, uploadID, i, strings.Repeat("x", i))
	}

	_, parts, isTruncated, next, err := s.store.ListParts("bucket", uploadID, 0, 3)
	c.Assert(err, IsNil)
	c.Assert(isTruncated, Equals, true)
	c.Assert(len(parts), Equals, 3)
	c.Assert(next, Equals, 3)

	_, parts, isTruncated, _, err = s.store.ListParts("bucket", uploadID, next, 3)
	c.Assert(err, IsNil)
	c.Assert(isTruncated, Equals, false)
	c.Assert(len(parts), Equals, 2)
	c.Assert(parts[0].PartNumber, Equals, 4)
}

func (s *MultipartSuite) TestListUploads(c *C) {
	u1, err := s.store.NewMultipartUpload("bucket", "alpha", "", nil)
	c.Assert(err, IsNil)
	_, err = s.store.NewMultipartUpload("bucket", "beta", "", nil)
	c.Assert(err, IsNil)

	uploads, isTruncated, _, _, err := s.store.ListMultipartUploads("bucket", "", "", "", 100)
	c.Assert(err, IsNil)
	c.Assert(isTruncated, Equals, false)
	c.Assert(len(uploads), Equals, 2)
	c.Assert(uploads[0].Key, Equals, "alpha")
	c.Assert(uploads[0].UploadID, Equals, u1)
	c.Assert(uploads[1].Key, Equals, "beta")

	uploads, _, _, _, err = s.store.ListMultipartUploads("bucket", "al", "", "", 100)
	c.Assert(err, IsNil)
	c.Assert(len(uploads), Equals, 1)
	c.Assert(uploads[0].Key, Equals, "alpha")
}
