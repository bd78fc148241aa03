package orderbook

// Key identifies one book
type Key struct {
	Exchange string
	Symbol   string
}

// Registry holds one Book per (exchange, symbol). It is fully built at
// startup and read-only afterwards.
type Registry struct {
	books map[Key]*Book
	keys  []Key
}

// NewRegistry creates a book for every exchange and symbol combination
func NewRegistry(exchanges, symbols []string) *Registry {
	r := &Registry{
		books: make(map[Key]*Book, len(exchanges)*len(symbols)),
		keys:  make([]Key, 0, len(exchanges)*len(symbols)),
	}
	for _, exchange := range exchanges {
		for _, symbol := range symbols {
			key := Key{Exchange: exchange, Symbol: symbol}
			if _, exists := r.books[key]; exists {
				continue
			}
			r.books[key] = NewBook(exchange, symbol)
			r.keys = append(r.keys, key)
		}
	}
	return r
}

// Get returns the book for exchange and symbol, or nil
func (r *Registry) Get(exchange, symbol string) *Book {
	return r.books[Key{Exchange: exchange, Symbol: symbol}]
}

// View returns the current view of a book, or nil when it is unknown or unset
func (r *Registry) View(exchange, symbol string) *View {
	if book := r.Get(exchange, symbol); book != nil {
		return book.View()
	}
	return nil
}

// ForExchange returns the books owned by one exchange keyed by symbol
func (r *Registry) ForExchange(exchange string) map[string]*Book {
	books := make(map[string]*Book)
	for _, key := range r.keys {
		if key.Exchange == exchange {
			books[key.Symbol] = r.books[key]
		}
	}
	return books
}

// Keys returns all keys in creation order
func (r *Registry) Keys() []Key {
	keys := make([]Key, len(r.keys))
	copy(keys, r.keys)
	return keys
}
