package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/demodigi-hub/results-hub/internal/domain/skillmap"
)

// competenciesFile is the YAML shape of the competency catalogue:
//
//	competencies:
//	  - name: IT-säkerhet
//	    skills:
//	      - Backup
//	      - Password
//	      - Phishing
//
// Competency and skill order in the file is significant: it decides the
// column order of the result grids and must stay stable between the run
// that produced an export and any later run that reads it.
type competenciesFile struct {
	Competencies []struct {
		Name   string   `yaml:"name"`
		Skills []string `yaml:"skills"`
	} `yaml:"competencies"`
}

// LoadCompetencies reads the competency catalogue from a YAML file.
func LoadCompetencies(path string) (*skillmap.Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open competencies file: %w", err)
	}
	defer f.Close()

	return ParseCompetencies(f)
}

// ParseCompetencies reads the competency catalogue from YAML.
func ParseCompetencies(r io.Reader) (*skillmap.Catalogue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read competencies: %w", err)
	}

	var file competenciesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse competencies YAML: %w", err)
	}
	if len(file.Competencies) == 0 {
		return nil, fmt.Errorf("competencies file lists no competencies")
	}

	comps := make([]skillmap.Competency, 0, len(file.Competencies))
	for _, c := range file.Competencies {
		comps = append(comps, skillmap.Competency{Name: c.Name, Skills: c.Skills})
	}

	catalogue, err := skillmap.NewCatalogue(comps)
	if err != nil {
		return nil, fmt.Errorf("invalid competency catalogue: %w", err)
	}
	return catalogue, nil
}
