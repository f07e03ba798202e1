package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/pkg/taskslug"
)

// TaskFile is the YAML shape of a human-authored task list
type TaskFile struct {
	Tasks []TaskEntry `yaml:"tasks"`
}

// TaskEntry is one declared task in a task file
type TaskEntry struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Capability  string   `yaml:"capability"`
	Command     string   `yaml:"command"`
	DependsOn   []string `yaml:"depends_on"`
	Artifacts   []string `yaml:"artifacts"`
}

// LoadTaskFile parses a YAML task file into submission inputs. Entries
// without an explicit ID get a slug derived from their title, suffixed
// for uniqueness within the file.
func LoadTaskFile(path string) ([]dto.SubmitInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return ParseTaskFile(data)
}

// ParseTaskFile parses task file content into submission inputs
func ParseTaskFile(data []byte) ([]dto.SubmitInput, error) {
	var file TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("task file declares no tasks")
	}

	seen := make(map[string]bool, len(file.Tasks))
	inputs := make([]dto.SubmitInput, 0, len(file.Tasks))

	for i, entry := range file.Tasks {
		if entry.Title == "" {
			return nil, fmt.Errorf("task %d: title is required", i+1)
		}

		id := entry.ID
		if id == "" {
			id = taskslug.Slugify(entry.Title)
			for n := 2; seen[id]; n++ {
				id = fmt.Sprintf("%s-%d", taskslug.Slugify(entry.Title), n)
			}
		}
		if seen[id] {
			return nil, fmt.Errorf("task %d: duplicate id %q", i+1, id)
		}
		seen[id] = true

		inputs = append(inputs, dto.SubmitInput{
			ID:           id,
			Title:        entry.Title,
			Description:  entry.Description,
			Capability:   entry.Capability,
			Command:      entry.Command,
			Dependencies: entry.DependsOn,
			Artifacts:    entry.Artifacts,
		})
	}
	return inputs, nil
}
