// Package redispool provides a node pool backed by a Redis hash. Agents
// announce themselves by writing a JSON record under their node ID:
//
//	HSET dungeonjob:nodes lin-1 '{"id":"lin-1","os":"linux","last_seen":"2026-10-19T10:00:00Z"}'
//
// The hash is re-read on every selection, so nodes that join or leave the
// fleet are picked up without restarting the orchestrator.
package redispool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// DefaultKey is the hash that holds node announcements.
const DefaultKey = "dungeonjob:nodes"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of a `pool "redis"` block.
type Input struct {
	Addr     string `hcl:"addr"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	Key      string `hcl:"key,optional"`
	// StaleAfter drops nodes whose last_seen is older than this duration.
	// Empty disables the check.
	StaleAfter string `hcl:"stale_after,optional"`
}

// Record is the JSON announcement an agent stores in the hash.
type Record struct {
	ID       string    `json:"id"`
	OS       string    `json:"os"`
	Label    string    `json:"label,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// hashReader is the subset of the redis client the pool needs.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Pool lists nodes from a Redis hash.
type Pool struct {
	client     hashReader
	closer     io.Closer
	key        string
	staleAfter time.Duration
	now        func() time.Time
}

// New builds a Pool over an existing client.
func New(client hashReader, key string, staleAfter time.Duration) *Pool {
	if key == "" {
		key = DefaultKey
	}
	p := &Pool{client: client, key: key, staleAfter: staleAfter, now: time.Now}
	if c, ok := client.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// Close releases the client connection pool, if the client owns one.
func (p *Pool) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Nodes implements nodepool.Pool. Malformed and stale records are skipped
// with a warning rather than failing the whole listing.
func (p *Pool) Nodes(ctx context.Context) ([]node.ExecutionNode, error) {
	logger := ctxlog.FromContext(ctx)
	entries, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read node hash '%s': %w", p.key, err)
	}

	nodes := make([]node.ExecutionNode, 0, len(entries))
	for field, raw := range entries {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.Warn("⚠️ Skipping malformed node record.", "field", field, "error", err)
			continue
		}
		if rec.ID == "" {
			rec.ID = field
		}
		family, err := platform.ParseFamily(rec.OS)
		if err != nil {
			logger.Warn("⚠️ Skipping node record with unknown os.", "node_id", rec.ID, "error", err)
			continue
		}
		if p.staleAfter > 0 && p.now().Sub(rec.LastSeen) > p.staleAfter {
			logger.Debug("Skipping stale node.", "node_id", rec.ID, "last_seen", rec.LastSeen)
			continue
		}
		nodes = append(nodes, node.ExecutionNode{ID: rec.ID, OS: family, Label: rec.Label})
	}
	// Hash fields come back unordered; round-robin needs a stable order.
	slices.SortFunc(nodes, func(a, b node.ExecutionNode) int { return strings.Compare(a.ID, b.ID) })
	return nodes, nil
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPool("redis", &registry.PoolFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (nodepool.Pool, error) {
			in := input.(*Input)
			var stale time.Duration
			if in.StaleAfter != "" {
				d, err := time.ParseDuration(in.StaleAfter)
				if err != nil {
					return nil, fmt.Errorf("redis pool: invalid stale_after '%s': %w", in.StaleAfter, err)
				}
				stale = d
			}
			client := redis.NewClient(&redis.Options{
				Addr:     in.Addr,
				Password: in.Password,
				DB:       in.DB,
			})
			ctxlog.FromContext(ctx).Debug("Redis node pool configured.", "addr", in.Addr, "db", in.DB, "key", in.Key)
			return New(client, in.Key, stale), nil
		},
	})
}
