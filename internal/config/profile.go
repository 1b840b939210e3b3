package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// Profile is the page geometry and placement policy PDFs are laid out with.
type Profile struct {
	Page   layout.PageSpec `yaml:"page"`
	Policy layout.Policy   `yaml:"policy"`
}

func DefaultProfile() Profile {
	return Profile{Page: layout.A4(), Policy: layout.DefaultPolicy()}
}

// LoadProfile reads a YAML layout profile. Keys it sets override the A4
// defaults; unknown keys are an error. An empty path yields the defaults.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read layout profile: %w", err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("layout profile %s: %w", path, err)
	}
	return p, nil
}

func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, err
	}
	if err := p.Page.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
