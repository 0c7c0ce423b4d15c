package config

import (
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	cfg := Config{DBUser: "svc", DBPass: "secret", DBHost: "db", DBPort: "3306", DBName: "accounts"}
	got := cfg.DSN()
	want := "svc:secret@tcp(db:3306)/accounts?parseTime=true&charset=utf8mb4&loc=UTC"
	if got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}

func TestDSNEmptyPassword(t *testing.T) {
	cfg := Config{DBUser: "svc", DBHost: "db", DBPort: "3306", DBName: "accounts"}
	got := cfg.DSN()
	if !strings.HasPrefix(got, "svc:@tcp(db:3306)/accounts?") {
		t.Fatalf("DSN() = %q, want empty-password form", got)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("DSN() = %q, missing parseTime", got)
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"*", []string{"*"}},
		{"a.example.com, b.example.com", []string{"a.example.com", "b.example.com"}},
		{" , ,", nil},
	}
	for _, tt := range tests {
		got := splitCSV(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitCSV(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
