package memory

import (
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
)

// Seed writes books directly into the committed state, replacing any book
// with the same isbn. It is meant for tests and the -memory dev mode.
// It waits for any open transaction to finish so a later commit cannot
// overwrite the seeded rows.
func (s *MemoryStore) Seed(books ...domain.Book) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, b := range books {
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now
		s.data.books[b.ISBN] = b
	}
}

// Remove deletes a book from the committed state without touching carts,
// orders or sales that reference it. Like Seed, it waits for open transactions.
func (s *MemoryStore) Remove(isbn string) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.books, isbn)
}
