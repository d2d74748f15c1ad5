package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BriefKindCommission is the default brief schema used for new commissions.
const BriefKindCommission = "commission"

// ErrValidation can be used with errors.Is to detect brief validation failures.
var ErrValidation = errors.New("validation failed")

// BriefValidator checks commission briefs against the JSON Schemas shipped in
// the schemas directory. One schema file per brief kind, e.g.
// commission.v1.json.
type BriefValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewBriefValidator loads and compiles every *.json schema in schemaDir.
func NewBriefValidator(schemaDir string) (*BriefValidator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		kind = strings.TrimSuffix(kind, ".v1")
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://atelierly.dev/schemas/" + kind
		schemas[kind], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schemas found in %q", schemaDir)
	}
	return &BriefValidator{schemas: schemas}, nil
}

// ValidateBrief hard-rejects briefs that do not match the kind's schema.
func (v *BriefValidator) ValidateBrief(kind string, brief json.RawMessage) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown brief kind %q", kind)
	}
	var doc interface{}
	if err := json.Unmarshal(brief, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
