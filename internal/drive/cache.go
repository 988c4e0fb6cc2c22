package drive

import (
	"sync"
	"time"
)

// listingTTL bounds how long a cached folder listing is trusted.
const listingTTL = 600 * time.Second

// Listing is one folder's direct children, decrypted.
type Listing struct {
	Folders []*Folder
	Files   []*File

	fetchedAt time.Time
}

// pathTarget is a resolved path endpoint: exactly one of Folder or File
// is set.
type pathTarget struct {
	Folder *Folder
	File   *File
}

// Cache holds folder listings keyed by UUID plus resolved paths. Any
// folder invalidation wipes the whole path cache, since a single rename
// or move can change every path below it.
type Cache struct {
	mu       sync.Mutex
	listings map[string]*Listing
	paths    map[string]pathTarget
	now      func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		listings: make(map[string]*Listing),
		paths:    make(map[string]pathTarget),
		now:      time.Now,
	}
}

// GetListing returns a cached listing if it is still fresh.
func (c *Cache) GetListing(folderUUID string) (*Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	listing, ok := c.listings[folderUUID]
	if !ok || c.now().Sub(listing.fetchedAt) > listingTTL {
		delete(c.listings, folderUUID)
		return nil, false
	}
	return listing, true
}

// PutListing stores a fresh listing.
func (c *Cache) PutListing(folderUUID string, listing *Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	listing.fetchedAt = c.now()
	c.listings[folderUUID] = listing
}

// InvalidateFolder drops one folder's listing and every cached path.
func (c *Cache) InvalidateFolder(folderUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, folderUUID)
	c.paths = make(map[string]pathTarget)
}

// GetPath returns a previously resolved path target.
func (c *Cache) GetPath(path string) (pathTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target, ok := c.paths[path]
	return target, ok
}

// PutPath stores a resolved path target.
func (c *Cache) PutPath(path string, target pathTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = target
}

// Clear empties the whole cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = make(map[string]*Listing)
	c.paths = make(map[string]pathTarget)
}
