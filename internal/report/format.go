package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is the outcome of one (model, mode) evaluation.
type Entry struct {
	Model     string        `json:"model" yaml:"model"`
	Mode      int           `json:"mode" yaml:"mode"`
	Family    string        `json:"family" yaml:"family"`
	Param     string        `json:"param" yaml:"param"`
	Clean     float64       `json:"clean_map" yaml:"clean_map"`
	Perturbed float64       `json:"perturbed_map" yaml:"perturbed_map"`
	TopK      int           `json:"topk" yaml:"topk"`
	Queries   int           `json:"queries" yaml:"queries"`
	Elapsed   time.Duration `json:"elapsed_ns" yaml:"elapsed"`
}

// Drop is the mAP lost to the perturbation.
func (e Entry) Drop() float64 { return e.Clean - e.Perturbed }

// Summary collects every entry of a run.
type Summary struct {
	RunID   string    `json:"run_id" yaml:"run_id"`
	Started time.Time `json:"started" yaml:"started"`
	Noise   string    `json:"noise" yaml:"noise"`
	Entries []Entry   `json:"entries" yaml:"entries"`
}

// Formats lists the supported output formats.
func Formats() []string {
	return []string{"text", "json", "yaml", "csv"}
}

// Format renders s in the given format. An empty format means text.
func Format(s Summary, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(s)
	case "yaml":
		return formatYAML(s)
	case "csv":
		return formatCSV(s)
	case "text", "":
		return formatText(s), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatJSON(s Summary) (string, error) {
	bts, err := json.MarshalIndent(s, "", "  ")
	return string(bts), err
}

func formatYAML(s Summary) (string, error) {
	bts, err := yaml.Marshal(s)
	return string(bts), err
}

func formatCSV(s Summary) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{
		"run_id", "model", "mode", "family", "param", "clean_map", "perturbed_map", "drop", "topk", "queries",
	}); err != nil {
		return "", err
	}
	for _, e := range s.Entries {
		if err := writer.Write([]string{
			s.RunID,
			e.Model,
			strconv.Itoa(e.Mode),
			e.Family,
			e.Param,
			fmt.Sprintf("%.6f", e.Clean),
			fmt.Sprintf("%.6f", e.Perturbed),
			fmt.Sprintf("%.6f", e.Drop()),
			strconv.Itoa(e.TopK),
			strconv.Itoa(e.Queries),
		}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(s Summary) string {
	var output strings.Builder
	fmt.Fprintf(&output, "# run %s\n", s.RunID)
	mode := -1
	for _, e := range s.Entries {
		if e.Mode != mode {
			mode = e.Mode
			fmt.Fprintf(&output, "mode %d (%s %s)\n", e.Mode, e.Family, e.Param)
		}
		fmt.Fprintf(&output, "  %-16s %s  drop=%.4f\n", e.Model, MAPLine(e.Clean, e.Perturbed), e.Drop())
	}
	return output.String()
}
