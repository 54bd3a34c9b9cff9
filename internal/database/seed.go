package database

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/dreamate/pkg/models"
)

type personaFile struct {
	Personas []models.Persona `yaml:"personas"`
}

// LoadPersonas reads persona definitions from a YAML file
func LoadPersonas(path string) ([]models.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}
	var file personaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	return file.Personas, nil
}

// SeedPersonas upserts every persona of the YAML file at path and returns
// how many were stored. A missing file seeds nothing.
func SeedPersonas(ctx context.Context, repo *ConversationRepository, path string) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	personas, err := LoadPersonas(path)
	if err != nil {
		return 0, err
	}
	for _, p := range personas {
		if err := repo.UpsertPersona(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to seed persona %s: %w", p.ID, err)
		}
	}
	return len(personas), nil
}
