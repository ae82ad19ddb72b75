// Package memcachedclient implements herdcache.BackendClient on top of
// github.com/bradfitz/gomemcache/memcache. Two concrete variants are
// provided, differing only in construction (§9 design note): NewClient
// takes a static server list, NewDiscoveryClient polls an ElastiCache
// configuration endpoint and rebuilds the server list in the background.
// Both share the same unexported core.
package memcachedclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/rs/zerolog"
)

// minTTLSeconds is the smallest TTL memcached treats as an expiry rather
// than "forever". Anything below it truncates to 0 (§6).
const minTTLSeconds = 1

// Client adapts *memcache.Client to herdcache.BackendClient.
type Client struct {
	mc     *memcache.Client
	logger zerolog.Logger

	healthMu   sync.RWMutex
	available  bool
	healthStop chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a zerolog.Logger for backend-fault warnings (§7).
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a Client against a static list of memcached servers.
func NewClient(servers []string, opts ...Option) *Client {
	c := newClient(memcache.New(servers...), opts...)
	c.startHealthLoop(5 * time.Second)
	return c
}

// NewDiscoveryClient builds a Client that discovers its server list from
// an ElastiCache configuration endpoint, polling it every pollInterval and
// rebuilding the underlying memcache.Client's server list without ever
// blocking callers on re-discovery (§1 names node discovery as an external
// concern kept out of the core; this is that concern's home).
func NewDiscoveryClient(configEndpoint string, pollInterval time.Duration, opts ...Option) *Client {
	c := newClient(memcache.New(), opts...)
	stop := c.startHealthLoop(5 * time.Second)
	go c.discoveryLoop(configEndpoint, pollInterval, stop)
	return c
}

func newClient(mc *memcache.Client, opts ...Option) *Client {
	c := &Client{
		mc:        mc,
		logger:    zerolog.Nop(),
		available: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements herdcache.BackendClient.
func (c *Client) Get(ctx context.Context, key string, timeout time.Duration) ([]byte, bool) {
	type result struct {
		item *memcache.Item
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		item, err := c.mc.Get(key)
		ch <- result{item, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if !errors.Is(r.err, memcache.ErrCacheMiss) {
				c.logger.Warn().Err(r.err).Str("key", key).Msg("memcachedclient: get failed")
			}
			return nil, false
		}
		return r.item.Value, true
	case <-time.After(timeout):
		c.logger.Warn().Str("key", key).Msg("memcachedclient: get timed out")
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Set implements herdcache.BackendClient. ttl<1s truncates to 0 (§6).
func (c *Client) Set(_ context.Context, key string, ttl time.Duration, v []byte) <-chan bool {
	done := make(chan bool, 1)
	seconds := int32(ttl / time.Second)
	if seconds < minTTLSeconds {
		seconds = 0
	}
	go func() {
		err := c.mc.Set(&memcache.Item{Key: key, Value: v, Expiration: seconds})
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("memcachedclient: set failed")
		}
		done <- err == nil
	}()
	return done
}

// Delete implements herdcache.BackendClient.
func (c *Client) Delete(_ context.Context, key string) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		err := c.mc.Delete(key)
		if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("memcachedclient: delete failed")
		}
		done <- err == nil || errors.Is(err, memcache.ErrCacheMiss)
	}()
	return done
}

// Flush implements herdcache.BackendClient.
func (c *Client) Flush(_ context.Context) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		err := c.mc.FlushAll()
		if err != nil {
			c.logger.Warn().Err(err).Msg("memcachedclient: flush failed")
		}
		done <- err == nil
	}()
	return done
}

// IsAvailable implements herdcache.BackendClient, backed by a background
// health-check loop rather than a synchronous round-trip on every call.
func (c *Client) IsAvailable() bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.available
}

// Shutdown implements herdcache.BackendClient. Idempotent.
func (c *Client) Shutdown() {
	c.healthMu.Lock()
	if c.healthStop != nil {
		close(c.healthStop)
		c.healthStop = nil
	}
	c.healthMu.Unlock()
}

func (c *Client) startHealthLoop(interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	c.healthMu.Lock()
	c.healthStop = stop
	c.healthMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, err := c.mc.Get("__herdcache_health_check__")
				reachable := err == nil || errors.Is(err, memcache.ErrCacheMiss)
				c.healthMu.Lock()
				c.available = reachable
				c.healthMu.Unlock()
			case <-stop:
				return
			}
		}
	}()
	return stop
}

// discoveryLoop polls configEndpoint's ElastiCache "config get cluster"
// line every pollInterval and rebuilds the memcache.Client's server list.
func (c *Client) discoveryLoop(configEndpoint string, pollInterval time.Duration, stop <-chan struct{}) {
	c.pollOnce(configEndpoint)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.pollOnce(configEndpoint)
		case <-stop:
			return
		}
	}
}

func (c *Client) pollOnce(configEndpoint string) {
	servers, err := fetchClusterNodes(configEndpoint)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", configEndpoint).Msg("memcachedclient: cluster discovery failed")
		return
	}
	if len(servers) == 0 {
		return
	}
	if err := c.mc.SetServers(servers...); err != nil {
		c.logger.Warn().Err(err).Msg("memcachedclient: failed to apply discovered server list")
	}
}

// fetchClusterNodes issues the ElastiCache auto-discovery "config get
// cluster" command against configEndpoint and parses its node list line
// ("hostname|ip|port host2|ip2|port2 ...") into "host:port" strings.
func fetchClusterNodes(configEndpoint string) ([]string, error) {
	conn, err := net.DialTimeout("tcp", configEndpoint, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(conn, "config get cluster\r\n"); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(conn)
	// The response is a versioned config block: a header line, a node
	// list line, a blank line and "END". We only need the node list.
	var nodeLine string
	for i := 0; i < 10; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "END" || line == "" {
			continue
		}
		if strings.Contains(line, "|") {
			nodeLine = line
			break
		}
	}
	if nodeLine == "" {
		return nil, errors.New("memcachedclient: no node list in discovery response")
	}

	var servers []string
	for _, node := range strings.Fields(nodeLine) {
		parts := strings.Split(node, "|")
		if len(parts) != 3 {
			continue
		}
		host, port := parts[0], parts[2]
		servers = append(servers, net.JoinHostPort(host, port))
	}
	return servers, nil
}
