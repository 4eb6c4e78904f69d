package app

import (
	"context"
	"sync"

	"github.com/dshills/uisync/internal/invoke"
)

type recordingClient struct {
	mu      sync.Mutex
	batches int
}

func (c *recordingClient) Transmit(context.Context, []invoke.Invocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	return nil
}

func (c *recordingClient) Ping(context.Context, string) error { return nil }

func (c *recordingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}
