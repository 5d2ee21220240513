package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AnswersFile drives a non-interactive run:
//
//	answers:
//	  firstName: Ada
//	documents:
//	  cv: [./cv.pdf]
type AnswersFile struct {
	Answers   map[string]string   `yaml:"answers"`
	Documents map[string][]string `yaml:"documents"`
}

// LoadAnswersFile reads and parses path.
func LoadAnswersFile(path string) (AnswersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AnswersFile{}, fmt.Errorf("read answers file: %w", err)
	}
	return ParseAnswers(data)
}

// ParseAnswers parses an answers document.
func ParseAnswers(data []byte) (AnswersFile, error) {
	var af AnswersFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return AnswersFile{}, fmt.Errorf("parse answers file: %w", err)
	}
	if af.Answers == nil {
		af.Answers = map[string]string{}
	}
	return af, nil
}
