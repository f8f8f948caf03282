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
	"encoding/json"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key spaces inside the catalog database. Values are JSON documents.
const (
	catalogUserPrefix   = "u/"
	catalogKeyPrefix    = "k/"
	catalogBucketPrefix = "b/"
)

// Bucket versioning states. A bucket starts out Disabled and can never
// return to Disabled once versioning was enabled.
const (
	versioningDisabled  = ""
	versioningEnabled   = "Enabled"
	versioningSuspended = "Suspended"
)

// catalogUser is an account that owns access keys and buckets.
type catalogUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// catalogAccessKey binds an access key id and its secret to a user. A
// zero ExpiresAt means the key never expires.
type catalogAccessKey struct {
	AccessKey string    `json:"accessKey"`
	SecretKey string    `json:"secretKey"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// catalogBucket records bucket ownership and its versioning state.
type catalogBucket struct {
	Name       string    `json:"name"`
	OwnerID    string    `json:"ownerId"`
	CreatedAt  time.Time `json:"createdAt"`
	Versioning string    `json:"versioning,omitempty"`
}

// catalog is the durable store for users, access keys and the bucket
// table. Mutations sync to disk before returning; check-and-put pairs
// serialize behind mu.
type catalog struct {
	mu sync.Mutex
	db *leveldb.DB
}

var catalogWriteOptions = &opt.WriteOptions{Sync: true}

// openCatalog opens (creating if necessary) the catalog database at path.
func openCatalog(path string) (*catalog, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &catalog{db: db}, nil
}

func (c *catalog) Close() error {
	return c.db.Close()
}

func (c *catalog) putJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(key), data, catalogWriteOptions)
}

func (c *catalog) getJSON(key string, v interface{}) (bool, error) {
	data, err := c.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

// PutUser stores or replaces a user record.
func (c *catalog) PutUser(u catalogUser) error {
	return c.putJSON(catalogUserPrefix+u.ID, u)
}

// GetUser fetches a user by id.
func (c *catalog) GetUser(id string) (catalogUser, bool, error) {
	var u catalogUser
	ok, err := c.getJSON(catalogUserPrefix+id, &u)
	return u, ok, err
}

// PutAccessKey stores or replaces an access key record.
func (c *catalog) PutAccessKey(k catalogAccessKey) error {
	return c.putJSON(catalogKeyPrefix+k.AccessKey, k)
}

// GetAccessKey fetches an access key record by access key id.
func (c *catalog) GetAccessKey(accessKey string) (catalogAccessKey, bool, error) {
	var k catalogAccessKey
	ok, err := c.getJSON(catalogKeyPrefix+accessKey, &k)
	return k, ok, err
}

// DeleteAccessKey removes an access key record.
func (c *catalog) DeleteAccessKey(accessKey string) error {
	return c.db.Delete([]byte(catalogKeyPrefix+accessKey), catalogWriteOptions)
}

// ListAccessKeys returns every access key record in the catalog.
func (c *catalog) ListAccessKeys() ([]catalogAccessKey, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(catalogKeyPrefix)), nil)
	defer iter.Release()
	var keys []catalogAccessKey
	for iter.Next() {
		var k catalogAccessKey
		if err := json.Unmarshal(iter.Value(), &k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, iter.Error()
}

// CreateBucket inserts a bucket record if no bucket of that name exists
// yet. Returns false when the name is already taken.
func (c *catalog) CreateBucket(b catalogBucket) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := catalogBucketPrefix + b.Name
	ok, err := c.db.Has([]byte(key), nil)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	return true, c.putJSON(key, b)
}

// GetBucket fetches a bucket record by name.
func (c *catalog) GetBucket(name string) (catalogBucket, bool, error) {
	var b catalogBucket
	ok, err := c.getJSON(catalogBucketPrefix+name, &b)
	return b, ok, err
}

// DeleteBucket removes a bucket record.
func (c *catalog) DeleteBucket(name string) error {
	return c.db.Delete([]byte(catalogBucketPrefix+name), catalogWriteOptions)
}

// SetBucketVersioning transitions the bucket versioning state. The
// Disabled state cannot be re-entered once left.
func (c *catalog) SetBucketVersioning(name, state string) (catalogBucket, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b catalogBucket
	ok, err := c.getJSON(catalogBucketPrefix+name, &b)
	if err != nil || !ok {
		return b, ok, err
	}
	b.Versioning = state
	return b, true, c.putJSON(catalogBucketPrefix+name, b)
}

// ListBuckets returns all bucket records owned by ownerID, ordered by
// name. An empty ownerID lists every bucket.
func (c *catalog) ListBuckets(ownerID string) ([]catalogBucket, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(catalogBucketPrefix)), nil)
	defer iter.Release()
	var buckets []catalogBucket
	for iter.Next() {
		var b catalogBucket
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, err
		}
		if ownerID != "" && b.OwnerID != ownerID {
			continue
		}
		buckets = append(buckets, b)
	}
	return buckets, iter.Error()
}
