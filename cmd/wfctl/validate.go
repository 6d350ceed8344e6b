package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/workflow/internal/domain"
	"github.com/nexuscrm/workflow/internal/domain/models"
	"github.com/nexuscrm/workflow/pkg/expression"
)

var errInvalidDefinition = errors.New("definition is invalid")

func newValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a definition graph file (.yaml, .yml or .json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFile(file, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "graph file to validate")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// validateFile prints the validation result as JSON and returns
// errInvalidDefinition when the graph has errors.
func validateFile(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var g models.Graph
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		g, err = models.ParseGraphYAML(data)
	case ".json":
		g, err = models.ParseGraphJSON(data)
	default:
		return fmt.Errorf("unsupported file type %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	result := domain.ValidateGraph(g)
	result.CheckConditions(g, expression.NewEngine().Validate)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.IsValid {
		return errInvalidDefinition
	}
	return nil
}
