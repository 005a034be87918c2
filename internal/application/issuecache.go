package application

import (
	"sync"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// IssueState distinguishes "not yet fetched" from "fetched, does not exist".
type IssueState int

const (
	IssueAbsent IssueState = iota
	IssueNotFound
	IssueFound
)

// String returns the wire name of the state.
func (s IssueState) String() string {
	switch s {
	case IssueNotFound:
		return "not_found"
	case IssueFound:
		return "found"
	default:
		return "loading"
	}
}

// IssueCache holds issues fetched during one view session. A present key with
// a nil value is an explicit negative entry.
type IssueCache struct {
	mu      sync.RWMutex
	entries map[model.IssueKey]*model.Issue
}

// NewIssueCache creates an empty cache.
func NewIssueCache() *IssueCache {
	return &IssueCache{entries: make(map[model.IssueKey]*model.Issue)}
}

// Lookup returns the cached issue and its state.
func (c *IssueCache) Lookup(key model.IssueKey) (*model.Issue, IssueState) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	issue, ok := c.entries[key]
	switch {
	case !ok:
		return nil, IssueAbsent
	case issue == nil:
		return nil, IssueNotFound
	default:
		return issue, IssueFound
	}
}

// StoreFound caches issue under key.
func (c *IssueCache) StoreFound(key model.IssueKey, issue *model.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = issue
}

// StoreNotFound records that key does not exist upstream.
func (c *IssueCache) StoreNotFound(key model.IssueKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = nil
}

// Evict forgets key so the next lookup refetches it.
func (c *IssueCache) Evict(key model.IssueKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Missing returns the keys that have never been fetched, preserving order.
func (c *IssueCache) Missing(keys []model.IssueKey) []model.IssueKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []model.IssueKey
	for _, key := range keys {
		if _, ok := c.entries[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
