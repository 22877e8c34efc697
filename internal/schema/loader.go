package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxSchemaSize caps the size of a schema source (16MB).
const maxSchemaSize = 16 << 20

//go:embed box.yaml
var boxSchema []byte

// Default compiles the Box API description embedded in the binary.
func Default() (*Catalog, error) {
	return Load(boxSchema)
}

// LoadFile reads and compiles a schema source from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	cat, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Load compiles a schema source. Either an OpenAPI 3 document (JSON or YAML)
// or a flat JSON catalog array is accepted. The load is all-or-nothing: on
// any error no catalog is returned.
func Load(data []byte) (*Catalog, error) {
	if len(data) > maxSchemaSize {
		return nil, docError("source too large: %d bytes (max %d)", len(data), maxSchemaSize)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, docError("empty source")
	}
	if trimmed[0] == '[' {
		return loadFlat(trimmed)
	}

	var root map[string]any
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &root); err != nil {
			return nil, docError("failed to parse document: %v", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, docError("failed to parse document: %v", err)
	}
	if root == nil {
		return nil, docError("document is not an object")
	}
	if _, ok := root["swagger"]; ok {
		return nil, docError("swagger 2.0 documents are not supported")
	}
	if _, ok := root["openapi"]; !ok {
		return nil, docError("document has no openapi version field")
	}
	return compileOpenAPI(root)
}

// FlatTool is one entry of the flat catalog format.
type FlatTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Params      []FlatParam `json:"params"`
}

// FlatParam describes one parameter of a flat catalog tool.
type FlatParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, integer, boolean, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
	In          string `json:"in"` // path, query, header, body
}

func loadFlat(data []byte) (*Catalog, error) {
	var entries []FlatTool
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, docError("failed to parse catalog: %v", err)
	}

	b := newBuilder()
	for i, ft := range entries {
		label := ft.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if ft.Method == "" {
			return nil, opError(label, "empty method")
		}
		if ft.Path == "" {
			return nil, opError(label, "empty path")
		}
		method := strings.ToUpper(ft.Method)
		name := ft.Name
		if name == "" {
			name = DeriveName(method, ft.Path)
		}
		path, _ := splitFragment(ft.Path)

		tool := &Tool{
			Name:        name,
			Method:      method,
			Path:        path,
			Description: strings.TrimSpace(ft.Description),
		}
		for _, fp := range ft.Params {
			loc, ok := parseLocation(fp.In)
			if !ok {
				return nil, opError(name, "parameter %q has unrecognized location %q", fp.Name, fp.In)
			}
			if loc == LocationBody {
				tool.HasBody = true
			}
			tool.Params = append(tool.Params, Parameter{
				Name:        fp.Name,
				In:          loc,
				Required:    fp.Required,
				Type:        normalizeType(fp.Type),
				Description: fp.Description,
			})
		}
		if tool.HasBody {
			tool.ContentType = "application/json"
		}
		if err := b.add(tool); err != nil {
			return nil, err
		}
	}
	return b.catalog(), nil
}
