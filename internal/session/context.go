// Package session holds the run-wide state attached to every log record.
package session

import (
	"log/slog"
	"sync"
)

// Context holds the loaded map and the simulation tick
type Context struct {
	mu       sync.RWMutex
	mapName  string
	vehicles int
	tick     uint64
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{mapName: "No map loaded"}
}

// MapName returns the loaded map
func (c *Context) MapName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapName
}

// Tick returns the last completed tick
func (c *Context) Tick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

// Vehicles returns the roster size
func (c *Context) Vehicles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vehicles
}

// SetMap records the loaded map and roster size
func (c *Context) SetMap(name string, vehicles int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapName = name
	c.vehicles = vehicles
}

// SetTick records the last completed tick
func (c *Context) SetTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = tick
}

// Attrs returns the session as log attributes, for logging.ContextHandler.
func (c *Context) Attrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []slog.Attr{
		slog.String("map", c.mapName),
		slog.Uint64("tick", c.tick),
	}
}
