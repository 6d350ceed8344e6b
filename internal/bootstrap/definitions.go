package bootstrap

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/domain/models"
)

//go:embed definitions.yaml
var sampleDefinitionsYAML []byte

// SampleDefinitions returns the bundled example definitions file.
func SampleDefinitions() []byte {
	return sampleDefinitionsYAML
}

type seedFile struct {
	Definitions []seedDefinition `yaml:"definitions"`
}

type seedDefinition struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Category    string    `yaml:"category"`
	Tags        []string  `yaml:"tags"`
	Active      bool      `yaml:"active"`
	Graph       yaml.Node `yaml:"graph"`
}

// InitializeDefinitions creates the definitions in a seed file for owner's
// tenant. Definitions whose name already exists in the tenant are skipped,
// so seeding twice is harmless. Returns the number created.
func InitializeDefinitions(ctx context.Context, sm *services.ServiceManager, owner *models.UserSession, data []byte) (int, error) {
	log.Println("🔧 Initializing workflow definitions...")

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse definitions file: %w", err)
	}

	existing, err := sm.Definitions.ListDefinitions(ctx, owner, models.DefinitionFilter{})
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, def := range existing {
		known[def.Name] = true
	}

	created := 0
	for _, entry := range file.Definitions {
		if known[entry.Name] {
			log.Printf("   ⏭️ Definition %s already exists, skipping", entry.Name)
			continue
		}

		rawGraph, err := yaml.Marshal(&entry.Graph)
		if err != nil {
			return created, fmt.Errorf("definition %s: %w", entry.Name, err)
		}
		graph, err := models.ParseGraphYAML(rawGraph)
		if err != nil {
			return created, fmt.Errorf("definition %s: %w", entry.Name, err)
		}

		def, validation, err := sm.Definitions.CreateDefinition(ctx, owner, services.DefinitionRequest{
			Name:        entry.Name,
			Description: entry.Description,
			Category:    entry.Category,
			Tags:        entry.Tags,
			Graph:       graph,
		})
		if err != nil {
			return created, fmt.Errorf("definition %s: %w", entry.Name, err)
		}
		for _, w := range validation.Warnings {
			log.Printf("   ⚠️ %s: %s", entry.Name, w.Message)
		}

		if entry.Active {
			if !validation.IsValid {
				log.Printf("   ⚠️ Definition %s is invalid, left inactive: %v", entry.Name, validation.Codes())
			} else if _, err := sm.Definitions.ActivateDefinition(ctx, owner, def.ID); err != nil {
				return created, fmt.Errorf("definition %s: %w", entry.Name, err)
			}
		}

		known[entry.Name] = true
		created++
		log.Printf("   ✅ Definition %s created (%s)", entry.Name, def.ID)
	}
	return created, nil
}
