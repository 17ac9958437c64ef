package cluster

import (
	"strings"
	"testing"
)

func TestParseSkipsBlankAndComments(t *testing.T) {
	r := strings.NewReader("10.0.0.1:9001\n\n# comment\n10.0.0.2:9002\n")
	cfg, err := Parse(r)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.N() != 2 {
		t.Fatalf("N() = %d, want 2", cfg.N())
	}
	if cfg.Endpoints[0].Addr != "10.0.0.1:9001" || cfg.Endpoints[1].Addr != "10.0.0.2:9002" {
		t.Fatalf("unexpected endpoints: %+v", cfg.Endpoints)
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	if _, err := Parse(strings.NewReader("not-a-hostport\n")); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestFirst(t *testing.T) {
	cfg, err := Parse(strings.NewReader("a:1\nb:2\nc:3\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := cfg.First(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Addr != "a:1" || got[1].Addr != "b:2" {
		t.Fatalf("First(2) = %+v", got)
	}
	if _, err := cfg.First(4); err == nil {
		t.Fatal("expected error when requesting more endpoints than configured")
	}
}
