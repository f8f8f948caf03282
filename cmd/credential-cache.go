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
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// cachedSecret is the hot-path view of an access key.
type cachedSecret struct {
	secretKey string
	userID    string
	expiresAt time.Time
}

func (s cachedSecret) expired() bool {
	return !s.expiresAt.IsZero() && UTCNow().After(s.expiresAt)
}

// credentialCache keeps the request hot path off the catalog. Misses
// fall through to the catalog and populate the cache; catalog mutations
// must invalidate through the same cache so readers never see stale
// ownership.
type credentialCache struct {
	catalog *catalog

	secrets      *xsync.MapOf[string, cachedSecret] // access key id -> secret
	bucketOwners *xsync.MapOf[string, string]       // bucket -> owner user id
	versioning   *xsync.MapOf[string, string]       // bucket -> versioning state
}

func newCredentialCache(cat *catalog) *credentialCache {
	c := &credentialCache{
		catalog:      cat,
		secrets:      xsync.NewMapOf[string, cachedSecret](),
		bucketOwners: xsync.NewMapOf[string, string](),
		versioning:   xsync.NewMapOf[string, string](),
	}
	c.warm()
	return c
}

// warm primes the caches from the catalog so the first requests after a
// restart do not all stampede it. Expired keys are skipped; anything the
// scan misses is picked up later by the read-through path.
func (c *credentialCache) warm() {
	if keys, err := c.catalog.ListAccessKeys(); err == nil {
		for _, k := range keys {
			s := cachedSecret{secretKey: k.SecretKey, userID: k.UserID, expiresAt: k.ExpiresAt}
			if s.expired() {
				continue
			}
			c.secrets.Store(k.AccessKey, s)
		}
	}
	if buckets, err := c.catalog.ListBuckets(""); err == nil {
		for _, b := range buckets {
			c.bucketOwners.Store(b.Name, b.OwnerID)
			c.versioning.Store(b.Name, b.Versioning)
		}
	}
}

// lookupSecret resolves an access key id to its secret. Expired keys do
// not resolve.
func (c *credentialCache) lookupSecret(accessKey string) (string, bool) {
	s, ok := c.lookup(accessKey)
	if !ok {
		return "", false
	}
	return s.secretKey, true
}

// lookupOwner resolves an access key id to the owning user id.
func (c *credentialCache) lookupOwner(accessKey string) (string, bool) {
	s, ok := c.lookup(accessKey)
	if !ok {
		return "", false
	}
	return s.userID, true
}

func (c *credentialCache) lookup(accessKey string) (cachedSecret, bool) {
	if s, ok := c.secrets.Load(accessKey); ok {
		if s.expired() {
			c.secrets.Delete(accessKey)
			return cachedSecret{}, false
		}
		return s, true
	}
	k, ok, err := c.catalog.GetAccessKey(accessKey)
	if err != nil || !ok {
		return cachedSecret{}, false
	}
	s := cachedSecret{secretKey: k.SecretKey, userID: k.UserID, expiresAt: k.ExpiresAt}
	if s.expired() {
		return cachedSecret{}, false
	}
	c.secrets.Store(accessKey, s)
	return s, true
}

// invalidateKey drops an access key from the cache, to be called after
// a catalog key mutation.
func (c *credentialCache) invalidateKey(accessKey string) {
	c.secrets.Delete(accessKey)
}

// bucketOwner resolves a bucket name to the owning user id.
func (c *credentialCache) bucketOwner(bucket string) (string, bool) {
	if owner, ok := c.bucketOwners.Load(bucket); ok {
		return owner, true
	}
	b, ok, err := c.catalog.GetBucket(bucket)
	if err != nil || !ok {
		return "", false
	}
	c.bucketOwners.Store(bucket, b.OwnerID)
	c.versioning.Store(bucket, b.Versioning)
	return b.OwnerID, true
}

// authorize reports whether the access key may operate on the bucket,
// which in this single-tenant-per-user model means the key's user owns
// the bucket.
func (c *credentialCache) authorize(accessKey, bucket string) bool {
	userID, ok := c.lookupOwner(accessKey)
	if !ok {
		return false
	}
	owner, ok := c.bucketOwner(bucket)
	if !ok {
		return false
	}
	return userID == owner
}

// bucketVersioning returns the versioning state for a bucket,
// versioningDisabled when unknown.
func (c *credentialCache) bucketVersioning(bucket string) string {
	if state, ok := c.versioning.Load(bucket); ok {
		return state
	}
	b, ok, err := c.catalog.GetBucket(bucket)
	if err != nil || !ok {
		return versioningDisabled
	}
	c.bucketOwners.Store(bucket, b.OwnerID)
	c.versioning.Store(bucket, b.Versioning)
	return b.Versioning
}

// storeBucket primes the cache after a bucket create or versioning
// change.
func (c *credentialCache) storeBucket(b catalogBucket) {
	c.bucketOwners.Store(b.Name, b.OwnerID)
	c.versioning.Store(b.Name, b.Versioning)
}

// invalidateBucket drops a bucket from the cache after deletion.
func (c *credentialCache) invalidateBucket(bucket string) {
	c.bucketOwners.Delete(bucket)
	c.versioning.Delete(bucket)
}
