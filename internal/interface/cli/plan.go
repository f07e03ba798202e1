package cli

import (
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/infrastructure/ingest"
)

func newPlanCmd() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate a task file and show its execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := ingest.LoadTaskFile(taskFile)
			if err != nil {
				return err
			}

			order, err := executionOrder(inputs)
			if err != nil {
				return err
			}

			byID := make(map[string]dto.SubmitInput, len(inputs))
			for _, input := range inputs {
				byID[input.ID] = input
			}

			fmt.Printf("%d task(s), execution order:\n", len(inputs))
			for i, id := range order {
				input := byID[id]
				line := fmt.Sprintf("  %2d. %-26s [%s]", i+1, id, capabilityOf(input))
				if len(input.Dependencies) > 0 {
					line += fmt.Sprintf("  after %v", input.Dependencies)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&taskFile, "file", "f", "tasks.yaml", "Task file to validate")
	return cmd
}

func capabilityOf(input dto.SubmitInput) string {
	if input.Capability == "" {
		return "general"
	}
	return input.Capability
}

// executionOrder validates dependency references and returns a
// topological ordering of the task IDs. Tasks without edges keep their
// file order.
func executionOrder(inputs []dto.SubmitInput) ([]string, error) {
	known := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		known[input.ID] = true
	}

	var edges []toposort.Edge
	hasEdge := make(map[string]bool)
	for _, input := range inputs {
		for _, dep := range input.Dependencies {
			if !known[dep] {
				return nil, fmt.Errorf("task %s depends on unknown task %s", input.ID, dep)
			}
			edges = append(edges, toposort.Edge{dep, input.ID})
			hasEdge[dep] = true
			hasEdge[input.ID] = true
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %v", err)
	}

	order := make([]string, 0, len(inputs))
	for _, v := range sorted {
		order = append(order, v.(string))
	}
	for _, input := range inputs {
		if !hasEdge[input.ID] {
			order = append(order, input.ID)
		}
	}
	return order, nil
}
