package rowstore

import (
	"context"
	"sort"
	"sync"

	"github.com/NasaVasa/pricewatch/internal/domain"
)

// MemoryStore is a process-local row store with stable row indexes starting
// at 1. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.Mutex
	next int
	rows map[int]map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{next: 1, rows: make(map[int]map[string]string)}
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := make([]int, 0, len(s.rows))
	for index := range s.rows {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	rows := make([]domain.Row, 0, len(indexes))
	for _, index := range indexes {
		rows = append(rows, domain.Row{Index: index, Values: copyValues(s.rows[index])})
	}
	return rows, nil
}

func (s *MemoryStore) Append(ctx context.Context, values map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.next
	s.next++
	row := make(map[string]string, len(domain.Columns))
	for _, name := range domain.Columns {
		row[name] = ""
	}
	mergeValues(row, values)
	s.rows[index] = row
	return index, nil
}

func (s *MemoryStore) Update(ctx context.Context, index int, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[index]
	if !ok {
		return domain.ErrNotFound
	}
	mergeValues(row, values)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[index]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, index)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func mergeValues(row, values map[string]string) {
	for column, value := range values {
		if name, ok := domain.CanonicalColumn(column); ok {
			row[name] = value
		}
	}
}

func copyValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
