package market

import "sync"

// BookCache holds the latest order-book snapshot per symbol.
type BookCache struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewBookCache() *BookCache {
	return &BookCache{books: make(map[string]*Book)}
}

// Set replaces the snapshot for book.Symbol.
func (c *BookCache) Set(book *Book) {
	c.mu.Lock()
	c.books[book.Symbol] = book
	c.mu.Unlock()
}

// Get returns the latest snapshot or nil when none was recorded yet.
func (c *BookCache) Get(symbol string) *Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.books[symbol]
}
