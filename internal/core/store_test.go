package core

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	if err := s.Seed(DefaultSeed()[:3]); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return s
}

func TestStore_AddAssignsNextID(t *testing.T) {
	s := NewStore()

	first := s.Add(Employee{ID: 99, Name: "A"})
	if first.ID != 1 {
		t.Errorf("first Add id = %d, want 1 on empty store", first.ID)
	}

	second := s.Add(Employee{Name: "B"})
	if second.ID != 2 {
		t.Errorf("second Add id = %d, want 2", second.ID)
	}

	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := s.NextID(); got != 3 {
		t.Errorf("NextID after removing 1 = %d, want 3", got)
	}

	if err := s.Remove(2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := s.NextID(); got != 1 {
		t.Errorf("NextID on emptied store = %d, want 1", got)
	}
}

func TestStore_NextIDFollowsHighestSeededID(t *testing.T) {
	s := NewStore()
	if err := s.Seed([]Employee{{ID: 7, Name: "a"}, {ID: 40, Name: "b"}, {ID: 3, Name: "c"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if got := s.Add(Employee{Name: "d"}).ID; got != 41 {
		t.Errorf("Add id = %d, want 41 after the highest seeded id", got)
	}
	if err := s.Remove(41); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(40); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := s.NextID(); got != 8 {
		t.Errorf("NextID = %d, want 8 once 40 is gone", got)
	}
}

func TestStore_IDsStayUnique(t *testing.T) {
	s := newSeededStore(t)

	for i := 0; i < 50; i++ {
		switch i % 3 {
		case 0, 1:
			s.Add(Employee{Name: "x"})
		case 2:
			snap := s.Snapshot()
			_ = s.Remove(snap[len(snap)/2].ID)
		}

		seen := map[int]bool{}
		highest := 0
		for e := range s.List() {
			if seen[e.ID] {
				t.Fatalf("step %d: duplicate id %d", i, e.ID)
			}
			seen[e.ID] = true
			if e.ID > highest {
				highest = e.ID
			}
		}
		if got := s.NextID(); got != highest+1 {
			t.Fatalf("step %d: NextID = %d, want %d", i, got, highest+1)
		}
	}
}

func TestStore_UpdateFieldsIsPartial(t *testing.T) {
	s := newSeededStore(t)
	before, _ := s.Get(2)

	if err := s.UpdateFields(2, Patch{Name: Ptr("김철수2")}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	got, _ := s.Get(2)
	want := before
	want.Name = "김철수2"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newSeededStore(t)
	before := s.Snapshot()

	if err := s.UpdateFields(42, Patch{Name: Ptr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateFields unknown id err = %v, want ErrNotFound", err)
	}
	if err := s.Remove(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove unknown id err = %v, want ErrNotFound", err)
	}
	if err := s.Replace(Employee{ID: 42}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Replace unknown id err = %v, want ErrNotFound", err)
	}

	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("store changed on not-found operations (-want +got):\n%s", diff)
	}
}

func TestStore_ListIsSnapshot(t *testing.T) {
	s := newSeededStore(t)
	seq := s.List()

	s.Add(Employee{Name: "later"})

	var names []string
	for e := range seq {
		names = append(names, e.Name)
	}
	want := []string{"홍길동", "김철수", "이영희"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("List order (-want +got):\n%s", diff)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newSeededStore(t)

	e, ok := s.Get(1)
	if !ok {
		t.Fatal("Get(1) not found")
	}
	e.Name = "changed"

	again, _ := s.Get(1)
	if again.Name != "홍길동" {
		t.Errorf("store record changed through copy: %q", again.Name)
	}
}

func TestStore_DistinctDepartments(t *testing.T) {
	s := NewStore()
	s.Add(Employee{Name: "a", Department: "영업"})
	s.Add(Employee{Name: "b", Department: "Dev"})
	s.Add(Employee{Name: "c", Department: "dev"})
	s.Add(Employee{Name: "d", Department: ""})
	s.Add(Employee{Name: "e", Department: "영업"})

	want := []string{"Dev", "dev", "영업"}
	if diff := cmp.Diff(want, s.DistinctDepartments()); diff != "" {
		t.Errorf("DistinctDepartments (-want +got):\n%s", diff)
	}

	if err := s.UpdateFields(2, Patch{Department: Ptr("마케팅")}); err != nil {
		t.Fatal(err)
	}
	got := s.DistinctDepartments()
	if slices.Contains(got, "Dev") || !slices.Contains(got, "마케팅") {
		t.Errorf("DistinctDepartments not recomputed after update: %v", got)
	}
}

func TestStore_SeedRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name  string
		input []Employee
	}{
		{"zero id", []Employee{{ID: 0, Name: "a"}}},
		{"duplicate id", []Employee{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			if err := s.Seed(tt.input); err == nil {
				t.Fatal("Seed should fail")
			}
			if s.Len() != 0 {
				t.Errorf("Len = %d after failed seed, want 0", s.Len())
			}
		})
	}
}

func TestStore_ReplaceOverwritesWholesale(t *testing.T) {
	s := newSeededStore(t)
	updated := Employee{ID: 3, Name: "새이름", Department: "", JoinDate: NewDate(2024, time.May, 5)}

	if err := s.Replace(updated); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ := s.Get(3)
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("Replace (-want +got):\n%s", diff)
	}
}
