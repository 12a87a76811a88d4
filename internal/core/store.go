package core

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Store is the authoritative ordered collection of employees.
// All methods are safe for concurrent use; records leave the store by value.
type Store struct {
	mu        sync.RWMutex
	employees []Employee
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Seed appends records that already carry ids, such as the demo data set.
// It rejects non-positive or duplicate ids and leaves the store untouched
// in that case.
func (s *Store) Seed(employees []Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool, len(s.employees)+len(employees))
	for _, e := range s.employees {
		seen[e.ID] = true
	}
	for _, e := range employees {
		if e.ID <= 0 {
			return fmt.Errorf("seed employee %q: id must be positive, got %d", e.Name, e.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("seed employee %q: duplicate id %d", e.Name, e.ID)
		}
		seen[e.ID] = true
	}

	s.employees = append(s.employees, employees...)
	return nil
}

// List returns the records present at call time, in insertion order.
// Later mutations are not observed by the returned sequence.
func (s *Store) List() iter.Seq[Employee] {
	snapshot := s.Snapshot()
	return func(yield func(Employee) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

// Snapshot returns a copy of all records in insertion order.
func (s *Store) Snapshot() []Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.employees)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.employees)
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id int) (Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.employees[i], true
	}
	return Employee{}, false
}

// NextID returns the id the next Add would assign.
func (s *Store) NextID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID()
}

func (s *Store) nextID() int {
	highest := 0
	for _, e := range s.employees {
		if e.ID > highest {
			highest = e.ID
		}
	}
	return highest + 1
}

// Add assigns the next id to e, appends it and returns the stored record.
// Any id already set on e is ignored.
func (s *Store) Add(e Employee) Employee {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID()
	s.employees = append(s.employees, e)
	return e
}

// UpdateFields applies the present fields of p to the record with the given
// id. Returns ErrNotFound when there is no such record.
func (s *Store) UpdateFields(id int, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("update %d: %w", id, ErrNotFound)
	}
	p.Apply(&s.employees[i])
	return nil
}

// Replace overwrites the record whose id equals e.ID with e.
// Returns ErrNotFound when there is no such record.
func (s *Store) Replace(e Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(e.ID)
	if i < 0 {
		return fmt.Errorf("replace %d: %w", e.ID, ErrNotFound)
	}
	s.employees[i] = e
	return nil
}

// Remove deletes the record with the given id.
// Returns ErrNotFound when there is no such record.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove %d: %w", id, ErrNotFound)
	}
	s.employees = slices.Delete(s.employees, i, i+1)
	return nil
}

// DistinctDepartments returns the non-empty department names, compared
// case-sensitively and sorted. It is computed on every call.
func (s *Store) DistinctDepartments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.employees {
		if e.Department != "" {
			seen[e.Department] = struct{}{}
		}
	}

	departments := make([]string, 0, len(seen))
	for d := range seen {
		departments = append(departments, d)
	}
	slices.Sort(departments)
	return departments
}

func (s *Store) indexOf(id int) int {
	return slices.IndexFunc(s.employees, func(e Employee) bool { return e.ID == id })
}
