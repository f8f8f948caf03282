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
	"time"

	. "gopkg.in/check.v1"
)

type CredCacheSuite struct {
	cat   *catalog
	creds *credentialCache
}

var _ = Suite(&CredCacheSuite{})

func (s *CredCacheSuite) SetUpTest(c *C) {
	cat, err := openCatalog(filepath.Join(c.MkDir(), "catalog.db"))
	c.Assert(err, IsNil)
	c.Assert(cat.PutAccessKey(catalogAccessKey{AccessKey: "AK1", SecretKey: "S1", UserID: "u1"}), IsNil)
	c.Assert(cat.PutAccessKey(catalogAccessKey{AccessKey: "AK2", SecretKey: "S2", UserID: "u2"}), IsNil)
	_, err = cat.CreateBucket(catalogBucket{Name: "owned", OwnerID: "u1", CreatedAt: UTCNow()})
	c.Assert(err, IsNil)
	s.cat = cat
	s.creds = newCredentialCache(cat)
}

func (s *CredCacheSuite) TearDownTest(c *C) {
	s.cat.Close()
}

func (s *CredCacheSuite) TestLookupSecretReadThrough(c *C) {
	secret, ok := s.creds.lookupSecret("AK1")
	c.Assert(ok, Equals, true)
	c.Assert(secret, Equals, "S1")

	// A second lookup is served from the cache even after the catalog
	// record disappears.
	c.Assert(s.cat.DeleteAccessKey("AK1"), IsNil)
	secret, ok = s.creds.lookupSecret("AK1")
	c.Assert(ok, Equals, true)
	c.Assert(secret, Equals, "S1")

	// Invalidation forces the miss through to the catalog.
	s.creds.invalidateKey("AK1")
	_, ok = s.creds.lookupSecret("AK1")
	c.Assert(ok, Equals, false)
}

func (s *CredCacheSuite) TestExpiredKeyDoesNotResolve(c *C) {
	c.Assert(s.cat.PutAccessKey(catalogAccessKey{
		AccessKey: "AKEXP",
		SecretKey: "SEXP",
		UserID:    "u1",
		ExpiresAt: UTCNow().Add(-time.Minute),
	}), IsNil)
	_, ok := s.creds.lookupSecret("AKEXP")
	c.Assert(ok, Equals, false)
}

func (s *CredCacheSuite) TestAuthorize(c *C) {
	c.Assert(s.creds.authorize("AK1", "owned"), Equals, true)
	c.Assert(s.creds.authorize("AK2", "owned"), Equals, false)
	c.Assert(s.creds.authorize("AK1", "missing"), Equals, false)
	c.Assert(s.creds.authorize("UNKNOWN", "owned"), Equals, false)
}

func (s *CredCacheSuite) TestBucketVersioningCache(c *C) {
	c.Assert(s.creds.bucketVersioning("owned"), Equals, versioningDisabled)

	b, ok, err := s.cat.SetBucketVersioning("owned", versioningEnabled)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	s.creds.storeBucket(b)
	c.Assert(s.creds.bucketVersioning("owned"), Equals, versioningEnabled)
}

func (s *CredCacheSuite) TestInvalidateBucket(c *C) {
	_, ok := s.creds.bucketOwner("owned")
	c.Assert(ok, Equals, true)

	c.Assert(s.cat.DeleteBucket("owned"), IsNil)
	s.creds.invalidateBucket("owned")
	_, ok = s.creds.bucketOwner("owned")
	c.Assert(ok, Equals, false)
}
