package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one executable test description.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tree        TreeNode `yaml:"tree"`
	Steps       []Step   `yaml:"steps"`
}

// TreeNode declares a node of the initial tree. Props map kind names to
// input values.
type TreeNode struct {
	ID       string         `yaml:"id"`
	Props    map[string]any `yaml:"props,omitempty"`
	Children []TreeNode     `yaml:"children,omitempty"`
}

// Step is exactly one operation.
type Step struct {
	Set      *Write        `yaml:"set,omitempty"`
	Batch    []Write       `yaml:"batch,omitempty"`
	Append   *AppendStep   `yaml:"append,omitempty"`
	Remove   string        `yaml:"remove,omitempty"`
	Reparent *ReparentStep `yaml:"reparent,omitempty"`
	Eval     *EvalStep     `yaml:"eval,omitempty"`
	Pass     *PassStep     `yaml:"pass,omitempty"`
	Stats    *StatsStep    `yaml:"stats,omitempty"`
}

// Write sets one input.
type Write struct {
	Node  string `yaml:"node"`
	Kind  string `yaml:"kind"`
	Value any    `yaml:"value"`
}

// AppendStep creates a node under Parent, before Before when set.
type AppendStep struct {
	Node   string         `yaml:"node"`
	Parent string         `yaml:"parent"`
	Before string         `yaml:"before,omitempty"`
	Props  map[string]any `yaml:"props,omitempty"`
}

// ReparentStep moves Node to the end of Parent's children.
type ReparentStep struct {
	Node   string `yaml:"node"`
	Parent string `yaml:"parent"`
}

// EvalStep evaluates one slot. Expect is compared with the value, where
// node references render as "@name". Error is an error code. Hits and
// Misses are deltas of the database counters over this step.
type EvalStep struct {
	Node   string `yaml:"node"`
	Kind   string `yaml:"kind"`
	Expect any    `yaml:"expect,omitempty"`
	Error  string `yaml:"error,omitempty"`
	Hits   *int64 `yaml:"hits,omitempty"`
	Misses *int64 `yaml:"misses,omitempty"`
}

// PassStep runs a full parallel layout pass from the root.
type PassStep struct {
	Workers int  `yaml:"workers,omitempty"`
	Units   *int `yaml:"units,omitempty"`
}

// StatsStep checks absolute database statistics.
type StatsStep struct {
	Entries  *int   `yaml:"entries,omitempty"`
	Patterns *int   `yaml:"patterns,omitempty"`
	Revision *int64 `yaml:"revision,omitempty"`
}

// Op names the operation of a step.
func (s Step) Op() string {
	switch {
	case s.Set != nil:
		return "set"
	case s.Batch != nil:
		return "batch"
	case s.Append != nil:
		return "append"
	case s.Remove != "":
		return "remove"
	case s.Reparent != nil:
		return "reparent"
	case s.Eval != nil:
		return "eval"
	case s.Pass != nil:
		return "pass"
	case s.Stats != nil:
		return "stats"
	}
	return ""
}

func (s Step) opCount() int {
	n := 0
	for _, set := range []bool{
		s.Set != nil, s.Batch != nil, s.Append != nil, s.Remove != "",
		s.Reparent != nil, s.Eval != nil, s.Pass != nil, s.Stats != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file, rejecting unknown
// fields and missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.Tree.ID == "" {
		return errors.New("tree.id is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	seen := map[string]bool{}
	var walk func(n TreeNode, path string) error
	walk = func(n TreeNode, path string) error {
		if n.ID == "" {
			return fmt.Errorf("%s: id is required", path)
		}
		if seen[n.ID] {
			return fmt.Errorf("%s: duplicate id %q", path, n.ID)
		}
		seen[n.ID] = true
		for i, c := range n.Children {
			if err := walk(c, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(s.Tree, "tree"); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if n := step.opCount(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one operation required, got %d", i, n)
	}

	switch step.Op() {
	case "set":
		return validateWrite(fmt.Sprintf("steps[%d].set", i), *step.Set)
	case "batch":
		if len(step.Batch) == 0 {
			return fmt.Errorf("steps[%d].batch: must be non-empty", i)
		}
		for j, w := range step.Batch {
			if err := validateWrite(fmt.Sprintf("steps[%d].batch[%d]", i, j), w); err != nil {
				return err
			}
		}
	case "append":
		if step.Append.Node == "" || step.Append.Parent == "" {
			return fmt.Errorf("steps[%d].append: node and parent are required", i)
		}
	case "reparent":
		if step.Reparent.Node == "" || step.Reparent.Parent == "" {
			return fmt.Errorf("steps[%d].reparent: node and parent are required", i)
		}
	case "eval":
		if step.Eval.Node == "" || step.Eval.Kind == "" {
			return fmt.Errorf("steps[%d].eval: node and kind are required", i)
		}
		if step.Eval.Expect != nil && step.Eval.Error != "" {
			return fmt.Errorf("steps[%d].eval: expect and error are exclusive", i)
		}
	case "pass":
		if step.Pass.Workers < 0 {
			return fmt.Errorf("steps[%d].pass: workers must be non-negative", i)
		}
	}
	return nil
}

func validateWrite(path string, w Write) error {
	if w.Node == "" || w.Kind == "" {
		return fmt.Errorf("%s: node and kind are required", path)
	}
	return nil
}
