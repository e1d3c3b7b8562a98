package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Violation is one place where a config document breaks the schema.
type Violation struct {
	Path   string
	Reason string
	Value  any
}

func (v Violation) String() string {
	if v.Value == nil {
		return v.Path + ": " + v.Reason
	}
	return fmt.Sprintf("%s: %s (got %v)", v.Path, v.Reason, v.Value)
}

// Violations checks a YAML config document against the embedded schema.
// An empty document is checked as an empty mapping.
func Violations(doc []byte) ([]Violation, error) {
	var tree any
	if err := yaml.Unmarshal(doc, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	asJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(asJSON))
	if err != nil {
		return nil, err
	}

	out := make([]Violation, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		out = append(out, Violation{Path: re.Field(), Reason: re.Description(), Value: re.Value()})
	}
	return out, nil
}

// ValidateConfig fails with KindInvalidOption listing every violation.
func ValidateConfig(doc []byte) error {
	found, err := Violations(doc)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	lines := make([]string, len(found))
	for i, v := range found {
		lines[i] = "  - " + v.String()
	}
	return pkgerrors.Newf(pkgerrors.KindInvalidOption, "config", "Validate",
		"%d schema violation(s):\n%s", len(found), strings.Join(lines, "\n"))
}
