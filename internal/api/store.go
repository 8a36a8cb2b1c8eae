package api

import (
	"container/list"
	"sync"
)

// DefaultStoreCapacity bounds how many finished generations are kept.
const DefaultStoreCapacity = 256

// GenerationStore keeps recent generations for GET /v1/generations/:id.
// The oldest entry is evicted once capacity is reached.
type GenerationStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	records  map[string]*list.Element
}

func NewGenerationStore(capacity int) *GenerationStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &GenerationStore{
		capacity: capacity,
		order:    list.New(),
		records:  make(map[string]*list.Element),
	}
}

func (s *GenerationStore) Save(g Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.records[g.ID]; ok {
		el.Value = g
		s.order.MoveToBack(el)
		return
	}
	s.records[g.ID] = s.order.PushBack(g)
	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.records, oldest.Value.(Generation).ID)
	}
}

func (s *GenerationStore) Get(id string) (Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.records[id]
	if !ok {
		return Generation{}, false
	}
	return el.Value.(Generation), true
}

func (s *GenerationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.records[id]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.records, id)
	return true
}

func (s *GenerationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
