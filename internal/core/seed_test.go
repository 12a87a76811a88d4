package core

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeSeed(t *testing.T) {
	doc := `
employees:
  - id: 3
    name: 홍길동
    department: 영업
    joinDate: 2021-01-10
  - id: 7
    name: Kim
    department: Dev
    joinDate: "2022/03/01"
`
	got, err := DecodeSeed(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeSeed: %v", err)
	}

	want := []Employee{
		{ID: 3, Name: "홍길동", Department: "영업", JoinDate: NewDate(2021, time.January, 10)},
		{ID: 7, Name: "Kim", Department: "Dev", JoinDate: NewDate(2022, time.March, 1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeSeed (-want +got):\n%s", diff)
	}
}

func TestDecodeSeed_RejectsUnknownFields(t *testing.T) {
	doc := "employees:\n  - id: 1\n    salary: 10\n"
	if _, err := DecodeSeed(strings.NewReader(doc)); err == nil {
		t.Error("DecodeSeed should reject unknown fields")
	}
}

func TestEncodeSeed_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeSeed(&buf, DefaultSeed()); err != nil {
		t.Fatalf("EncodeSeed: %v", err)
	}

	got, err := DecodeSeed(&buf)
	if err != nil {
		t.Fatalf("DecodeSeed: %v", err)
	}
	if diff := cmp.Diff(DefaultSeed(), got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestLoadSeedFile_EmptyPathUsesDefault(t *testing.T) {
	got, err := LoadSeedFile("")
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}
