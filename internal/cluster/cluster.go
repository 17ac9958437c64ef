// Package cluster parses the client's cluster configuration file
// (spec.md §6): one `<ip>:<port>` line per cloud, in the fixed order the
// client dials them for upload (n connections) or download (k connections).
//
// The line-oriented `bufio.Scanner` parse loop with per-line validation is
// grounded on restic's internal/backend/location parsing style (location.go
// splits a repository spec into scheme+config with the same
// validate-as-you-scan shape), adapted here to a flat list of endpoints
// instead of a single backend URL.
package cluster

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// Endpoint is one cloud's `ip:port` dial address.
type Endpoint struct {
	Addr string
}

// Config is the ordered list of cloud endpoints read from the cluster
// config file. Index i is "cloud i" throughout the client pipeline.
type Config struct {
	Endpoints []Endpoint
}

// Load reads and validates the cluster config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "cluster: opening config file")
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads one `<ip>:<port>` endpoint per non-blank line from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, port, err := net.SplitHostPort(line)
		if err != nil || host == "" || port == "" {
			return nil, cdserrors.New(cdserrors.KindInvalidArg,
				fmt.Sprintf("cluster: config line %d: expected <ip>:<port>, got %q", lineNo, line))
		}
		cfg.Endpoints = append(cfg.Endpoints, Endpoint{Addr: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "cluster: reading config file")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "cluster: config file has no endpoints")
	}
	return cfg, nil
}

// N returns the total number of configured clouds.
func (c *Config) N() int { return len(c.Endpoints) }

// First returns the first k endpoints, the set the download path dials
// (spec.md §6: "the client opens n such connections (upload) or k
// (download)").
func (c *Config) First(k int) ([]Endpoint, error) {
	if k < 0 || k > len(c.Endpoints) {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "cluster: requested more endpoints than configured")
	}
	return c.Endpoints[:k], nil
}
