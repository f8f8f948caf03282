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
	"path/filepath"

	. "gopkg.in/check.v1"
)

type CatalogSuite struct {
	cat *catalog
}

var _ = Suite(&CatalogSuite{})

func (s *CatalogSuite) SetUpTest(c *C) {
	cat, err := openCatalog(filepath.Join(c.MkDir(), "catalog.db"))
	c.Assert(err, IsNil)
	s.cat = cat
}

func (s *CatalogSuite) TearDownTest(c *C) {
	s.cat.Close()
}

func (s *CatalogSuite) TestUserRoundTrip(c *C) {
	c.Assert(s.cat.PutUser(catalogUser{ID: "u1", Name: "alice", CreatedAt: UTCNow()}), IsNil)
	u, ok, err := s.cat.GetUser("u1")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(u.Name, Equals, "alice")

	_, ok, err = s.cat.GetUser("missing")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}

func (s *CatalogSuite) TestAccessKeyRoundTrip(c *C) {
	c.Assert(s.cat.PutAccessKey(catalogAccessKey{
		AccessKey: "AKEXAMPLE",
		SecretKey: "secret",
		UserID:    "u1",
	}), IsNil)
	k, ok, err := s.cat.GetAccessKey("AKEXAMPLE")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(k.SecretKey, Equals, "secret")
	c.Assert(k.UserID, Equals, "u1")

	c.Assert(s.cat.DeleteAccessKey("AKEXAMPLE"), IsNil)
	_, ok, err = s.cat.GetAccessKey("AKEXAMPLE")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}

func (s *CatalogSuite) TestCreateBucketUnique(c *C) {
	created, err := s.cat.CreateBucket(catalogBucket{Name: "photos", OwnerID: "u1", CreatedAt: UTCNow()})
	c.Assert(err, IsNil)
	c.Assert(created, Equals, true)

	created, err = s.cat.CreateBucket(catalogBucket{Name: "photos", OwnerID: "u2", CreatedAt: UTCNow()})
	c.Assert(err, IsNil)
	c.Assert(created, Equals, false)

	// The original owner won the race.
	b, ok, err := s.cat.GetBucket("photos")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(b.OwnerID, Equals, "u1")
}

func (s *CatalogSuite) TestSetBucketVersioning(c *C) {
	_, err := s.cat.CreateBucket(catalogBucket{Name: "b", OwnerID: "u1", CreatedAt: UTCNow()})
	c.Assert(err, IsNil)

	b, ok, err := s.cat.SetBucketVersioning("b", versioningEnabled)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(b.Versioning, Equals, versioningEnabled)

	b, ok, err = s.cat.SetBucketVersioning("b", versioningSuspended)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(b.Versioning, Equals, versioningSuspended)

	_, ok, err = s.cat.SetBucketVersioning("missing", versioningEnabled)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}

func (s *CatalogSuite) TestListBucketsByOwner(c *C) {
	for _, b := range []catalogBucket{
		{Name: "a-bucket", OwnerID: "u1"},
		{Name: "b-bucket", OwnerID: "u2"},
		{Name: "c-bucket", OwnerID: "u1"},
	} {
		b.CreatedAt = UTCNow()
		_, err := s.cat.CreateBucket(b)
		c.Assert(err, IsNil)
	}

	buckets, err := s.cat.ListBuckets("u1")
	c.Assert(err, IsNil)
	c.Assert(len(buckets), Equals, 2)
	c.Assert(buckets[0].Name, Equals, "a-bucket")
	c.Assert(buckets[1].Name, Equals, "c-bucket")

	all, err := s.cat.ListBuckets("")
	c.Assert(err, IsNil)
	c.Assert(len(all), Equals, 3)
}

func (s *CatalogSuite) TestDeleteBucket(c *C) {
	_, err := s.cat.CreateBucket(catalogBucket{Name: "b", OwnerID: "u1", CreatedAt: UTCNow()})
	c.Assert(err, IsNil)
	c.Assert(s.cat.DeleteBucket("b"), IsNil)
	_, ok, err := s.cat.GetBucket("b")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}
