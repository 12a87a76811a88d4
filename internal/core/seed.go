package core

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a seed document:
//
//	employees:
//	  - id: 1
//	    name: 홍길동
//	    department: 영업
//	    joinDate: 2021-01-10
type seedFile struct {
	Employees []Employee `yaml:"employees"`
}

// DefaultSeed returns the demo data set the application starts with when no
// seed file is configured.
func DefaultSeed() []Employee {
	return []Employee{
		{ID: 1, Name: "홍길동", Department: "영업", JoinDate: NewDate(2021, 1, 10)},
		{ID: 2, Name: "김철수", Department: "인사", JoinDate: NewDate(2022, 3, 1)},
		{ID: 3, Name: "이영희", Department: "개발", JoinDate: NewDate(2020, 7, 15)},
		{ID: 4, Name: "박민수", Department: "개발", JoinDate: NewDate(2019, 12, 2)},
		{ID: 5, Name: "최유리", Department: "총무", JoinDate: NewDate(2023, 4, 18)},
		{ID: 6, Name: "정우진", Department: "영업", JoinDate: NewDate(2021, 8, 30)},
		{ID: 7, Name: "한지민", Department: "인사", JoinDate: NewDate(2020, 11, 5)},
		{ID: 8, Name: "오세훈", Department: "개발", JoinDate: NewDate(2022, 6, 14)},
		{ID: 9, Name: "강수지", Department: "마케팅", JoinDate: NewDate(2018, 9, 9)},
		{ID: 10, Name: "류현우", Department: "총무", JoinDate: NewDate(2023, 2, 22)},
	}
}

// DecodeSeed reads a YAML seed document.
func DecodeSeed(r io.Reader) ([]Employee, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return doc.Employees, nil
}

// EncodeSeed writes employees as a YAML seed document.
func EncodeSeed(w io.Writer, employees []Employee) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seedFile{Employees: employees}); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	return enc.Close()
}

// LoadSeedFile returns the employees in the YAML file at path, or
// DefaultSeed when path is empty.
func LoadSeedFile(path string) ([]Employee, error) {
	if path == "" {
		return DefaultSeed(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	return DecodeSeed(f)
}
