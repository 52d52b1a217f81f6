// Package graphcache holds a TTL-bounded map of compiled topologies, keyed
// by (workflow_id, topology_hash, trigger_node_id), so that repeated
// executions of an unchanged workflow skip rebuilding its DAG. Grounded on
// the teacher's condition_cache shape generalized from caching compiled expr
// programs to caching compiled topologies.
package graphcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/topology"
)

// DefaultTTL matches spec's one-hour default.
const DefaultTTL = time.Hour

type entry struct {
	topo      *topology.Topology
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache of compiled topologies.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// New returns a Cache with the given TTL (DefaultTTL if ttl <= 0).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{entries: make(map[string]entry), ttl: ttl}
}

// Hash computes the topology_hash: SHA-256 over the workflow's updated_at,
// each node's updated_at, and each node's ComponentConfig's updated_at,
// truncated to 12 hex chars.
func Hash(workflow *domain.Workflow) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d", workflow.UpdatedAt.UnixNano())
	for _, n := range workflow.Nodes {
		fmt.Fprintf(h, "|%s:%d", n.ID, n.UpdatedAt.UnixNano())
		if n.ComponentConfig != nil {
			fmt.Fprintf(h, ":%d", n.ComponentConfig.UpdatedAt.UnixNano())
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:12]
}

func key(workflowID, hash, triggerNodeID string) string {
	return workflowID + ":" + hash + ":" + triggerNodeID
}

// GetOrBuild returns the cached topology for (workflow.ID, Hash(workflow),
// triggerNodeID) if present and unexpired; otherwise it builds outside any
// lock and stores the result. A race between two concurrent misses performs
// a harmless double-build, since topology.Build is pure.
func (c *Cache) GetOrBuild(workflow *domain.Workflow, triggerNodeID string) (*topology.Topology, error) {
	k := key(workflow.ID, Hash(workflow), triggerNodeID)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		return e.topo, nil
	}

	topo, err := topology.Build(workflow, triggerNodeID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[k] = entry{topo: topo, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return topo, nil
}

// Invalidate removes every cached entry for workflowID.
func (c *Cache) Invalidate(workflowID string) {
	prefix := workflowID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of live (possibly expired) cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
