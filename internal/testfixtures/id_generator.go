package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator hands out "<prefix>-<n>" identifiers so tests can predict the
// ids a service assigns to users, sessions and log entries.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

// NewIDGenerator returns a generator for prefix, or "id" when prefix is empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next issues the next identifier. It is safe for concurrent use.
func (g *IDGenerator) Next() string {
	return g.Nth(g.issued.Add(1))
}

// Nth returns the identifier issued n-th without consuming it.
func (g *IDGenerator) Nth(n uint64) string {
	return g.prefix + "-" + strconv.FormatUint(n, 10)
}

// NextFunc adapts Next to the func() string the services take. A nil
// generator yields empty ids.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}
