package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
	"github.com/p-blackswan/taskqueue/internal/models"
)

// printResult writes v to w in the selected format. YAML output keeps the
// JSON field names and order.
func printResult(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if format != "yaml" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to convert result to yaml: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to encode result as yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// blockStyle clears the flow and quoting styles a JSON document carries.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

type taskFile struct {
	Tasks []models.TaskDef `json:"tasks" yaml:"tasks"`
}

// readTaskDefs loads task definitions from a YAML or JSON file holding either
// a list or an object with a "tasks" key.
func readTaskDefs(path string) ([]models.TaskDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindFileReadError, err, "failed to read tasks file %s", path)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	var defs []models.TaskDef
	if err := unmarshal(data, &defs); err == nil {
		return defs, nil
	}
	var wrapped taskFile
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, perrors.Wrap(perrors.KindInvalidArgument, err, "invalid tasks file %s", path)
	}
	return wrapped.Tasks, nil
}
