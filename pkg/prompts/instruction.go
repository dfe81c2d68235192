package prompts

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

//go:embed instruction.md
var defaultBody string

// DefaultCustomerID is the customer whose profile is embedded when an
// instruction does not name one.
const DefaultCustomerID = "123"

const globalFormat = "The profile of the current customer is:  %s"

// Instruction is the agent's system prompt before the customer profile is
// attached.
type Instruction struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	CustomerID  string `yaml:"customer_id"`

	Body     string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// Default returns the built-in customer service instruction.
func Default() *Instruction {
	return &Instruction{
		Name:        "customer_service_agent",
		Description: "Customer service agent for BetterSales sports goods",
		CustomerID:  DefaultCustomerID,
		Body:        defaultBody,
	}
}

// Load reads an instruction override from a Markdown file. Front matter is
// optional; missing fields fall back to the built-in instruction's.
func Load(path string) (*Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read instruction")
	}
	meta, body := splitFrontmatter(string(data))

	in := Default()
	in.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if meta != "" {
		if err := yaml.Unmarshal([]byte(meta), in); err != nil {
			return nil, errors.Wrapf(err, "parse front matter in %s", path)
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.Errorf("instruction %s has no body", path)
	}
	in.Body = strings.TrimSpace(body) + "\n"
	in.FilePath, _ = filepath.Abs(path)
	if in.CustomerID == "" {
		in.CustomerID = DefaultCustomerID
	}
	return in, nil
}

// Global formats the customer profile line that precedes the instruction.
func Global(profile any) (string, error) {
	b, err := json.MarshalIndent(profile, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "encode customer profile")
	}
	return strings.Replace(globalFormat, "%s", string(b), 1), nil
}

// Render returns the full system prompt: the global profile line followed by
// the instruction body. A nil profile yields the body alone.
func (in *Instruction) Render(profile any) (string, error) {
	if profile == nil {
		return in.Body, nil
	}
	global, err := Global(profile)
	if err != nil {
		return "", err
	}
	return global + "\n\n" + in.Body, nil
}
