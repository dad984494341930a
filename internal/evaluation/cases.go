// Package evaluation runs golden conversations through the pipeline and
// reports how often they end in success, clarification or error.
package evaluation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Case is one golden test. Either Input or Conversation is set; the status of
// the last turn is compared with ExpectedStatus.
type Case struct {
	Name           string   `yaml:"name" json:"name"`
	Input          string   `yaml:"input,omitempty" json:"input,omitempty"`
	Conversation   []string `yaml:"conversation,omitempty" json:"conversation,omitempty"`
	ExpectedStatus string   `yaml:"expected_status" json:"expected_status"`
}

// Turns returns the user inputs of the case in order
func (c Case) Turns() []string {
	if len(c.Conversation) > 0 {
		return c.Conversation
	}
	return []string{c.Input}
}

func (c Case) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("case has no name")
	}
	if c.Input == "" && len(c.Conversation) == 0 {
		return fmt.Errorf("case %q has neither input nor conversation", c.Name)
	}
	if c.Input != "" && len(c.Conversation) > 0 {
		return fmt.Errorf("case %q has both input and conversation", c.Name)
	}
	switch c.ExpectedStatus {
	case "success", "needs_clarification", "error":
		return nil
	default:
		return fmt.Errorf("case %q has unknown expected_status %q", c.Name, c.ExpectedStatus)
	}
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// ParseCases decodes a YAML document with a top-level "cases" list
func ParseCases(data []byte) ([]Case, error) {
	var f caseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation cases: %w", err)
	}
	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("no evaluation cases found")
	}
	for _, c := range f.Cases {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return f.Cases, nil
}

// LoadCases reads a YAML case file
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation cases: %w", err)
	}
	return ParseCases(data)
}

// GoldenCases is the built-in regression set for the retail sample schema
func GoldenCases() []Case {
	return []Case{
		{Name: "Ambiguous top query", Input: "Show top stores", ExpectedStatus: "needs_clarification"},
		{
			Name:           "Clarification resolution",
			Conversation:   []string{"Show top stores", "By total revenue in the last 6 months"},
			ExpectedStatus: "success",
		},
		{Name: "No implicit defaults", Input: "Show top stores", ExpectedStatus: "needs_clarification"},
		{Name: "Valid aggregation query", Input: "Show total revenue per city", ExpectedStatus: "success"},
		{Name: "Hallucinated column prevention", Input: "Show profit per store", ExpectedStatus: "needs_clarification"},
	}
}
