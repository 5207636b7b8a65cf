// Package frames reads the list of per-frame template URLs from a manifest.
//
// A manifest either lists the templates directly or gives one pattern with a
// {t} placeholder and the frame timestamps to substitute:
//
//	ingest: "2024-05-01T12:00:00Z"
//	template: "https://tiles.example.com/radar/{t}/{z}/{x}/{y}.png"
//	frames: ["1714564800", "1714565400"]
//
// JSON documents are accepted as well.
package frames

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrEmptyManifest = errors.New("manifest lists no frames")

type Manifest struct {
	Ingest    string   `yaml:"ingest" json:"ingest"`
	Template  string   `yaml:"template" json:"template"`
	Frames    []string `yaml:"frames" json:"frames"`
	Templates []string `yaml:"templates" json:"templates"`
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse frame manifest: %w", err)
	}
	if len(m.Templates) == 0 && (m.Template == "" || len(m.Frames) == 0) {
		return nil, ErrEmptyManifest
	}
	return &m, nil
}

func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame manifest: %w", err)
	}
	return Parse(data)
}

// IngestTime parses the RFC 3339 ingest timestamp. A manifest without one
// yields the zero time.
func (m *Manifest) IngestTime() (time.Time, error) {
	if m.Ingest == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, m.Ingest)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ingest time %q: %w", m.Ingest, err)
	}
	return t, nil
}

// TemplateURLs returns the template of every stride-th frame, starting with
// the first. A stride below 1 keeps every frame.
func (m *Manifest) TemplateURLs(stride int) []string {
	all := m.Templates
	if len(all) == 0 {
		all = make([]string, len(m.Frames))
		for i, t := range m.Frames {
			all[i] = strings.ReplaceAll(m.Template, "{t}", t)
		}
	}

	if stride < 1 {
		stride = 1
	}
	urls := make([]string, 0, (len(all)+stride-1)/stride)
	for i := 0; i < len(all); i += stride {
		urls = append(urls, all[i])
	}
	return urls
}
