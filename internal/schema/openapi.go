package schema

import (
	"fmt"
	"sort"
	"strings"
)

// operationMethods lists the path-item keys that are operations, in the order
// tools are emitted for a single path.
var operationMethods = []string{"get", "put", "post", "delete", "options", "head", "patch"}

// maxRefDepth bounds $ref chains so a cyclic reference fails instead of looping.
const maxRefDepth = 32

// openAPIDoc is a decoded OpenAPI 3 document.
type openAPIDoc struct {
	root map[string]any
}

func compileOpenAPI(root map[string]any) (*Catalog, error) {
	version := fmt.Sprint(root["openapi"])
	if !strings.HasPrefix(version, "3.") {
		return nil, docError("unsupported openapi version %q (want 3.x)", version)
	}
	paths, ok := root["paths"].(map[string]any)
	if !ok {
		return nil, docError("document has no paths object")
	}

	doc := &openAPIDoc{root: root}
	b := newBuilder()

	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawPath := range keys {
		item, err := doc.resolve(paths[rawPath])
		if err != nil {
			return nil, docError("path %s: %v", rawPath, err)
		}
		shared, err := doc.parameterList(item["parameters"])
		if err != nil {
			return nil, docError("path %s: %v", rawPath, err)
		}

		for _, method := range operationMethods {
			node, ok := item[method]
			if !ok {
				continue
			}
			op, err := doc.resolve(node)
			if err != nil {
				return nil, docError("%s %s: %v", strings.ToUpper(method), rawPath, err)
			}
			tool, skipReason, err := doc.compileOperation(method, rawPath, op, shared)
			if err != nil {
				return nil, err
			}
			if skipReason != "" {
				b.skip(operationLabel(method, rawPath, op), skipReason)
				continue
			}
			if err := b.add(tool); err != nil {
				return nil, err
			}
		}
	}
	return b.catalog(), nil
}

func operationLabel(method, path string, op map[string]any) string {
	if id, _ := op["operationId"].(string); id != "" {
		return id
	}
	return DeriveName(method, path)
}

// compileOperation turns one OpenAPI operation into a tool. A non-empty skip
// reason means the operation is valid but cannot be carried as JSON.
func (d *openAPIDoc) compileOperation(method, rawPath string, op map[string]any, shared []rawParam) (*Tool, string, error) {
	name := operationLabel(method, rawPath, op)
	path, _ := splitFragment(rawPath)

	own, err := d.parameterList(op["parameters"])
	if err != nil {
		return nil, "", opError(name, "%v", err)
	}

	tool := &Tool{
		Name:        name,
		Method:      strings.ToUpper(method),
		Path:        path,
		Description: describe(op),
	}

	// Operation-level parameters override path-level ones with the same name and location.
	merged := make([]rawParam, 0, len(shared)+len(own))
	overridden := make(map[string]bool, len(own))
	for _, p := range own {
		overridden[p.in+"\x00"+p.name] = true
	}
	for _, p := range shared {
		if !overridden[p.in+"\x00"+p.name] {
			merged = append(merged, p)
		}
	}
	merged = append(merged, own...)

	for _, p := range merged {
		if p.name == "" {
			return nil, "", opError(name, "parameter with empty name")
		}
		loc, ok := parseLocation(p.in)
		if !ok || loc == LocationBody {
			return nil, "", opError(name, "parameter %q has unrecognized location %q", p.name, p.in)
		}
		tool.Params = append(tool.Params, Parameter{
			Name:        p.name,
			In:          loc,
			Required:    p.required,
			Type:        p.typ,
			Description: p.description,
		})
	}

	if node, ok := op["requestBody"]; ok {
		reason, err := d.compileBody(tool, node)
		if err != nil {
			return nil, "", opError(name, "%v", err)
		}
		if reason != "" {
			return nil, reason, nil
		}
	}
	return tool, "", nil
}

// compileBody adds body parameters for a JSON request body.
func (d *openAPIDoc) compileBody(tool *Tool, node any) (string, error) {
	body, err := d.resolve(node)
	if err != nil {
		return "", fmt.Errorf("requestBody: %w", err)
	}
	required, _ := body["required"].(bool)

	content, _ := body["content"].(map[string]any)
	if len(content) == 0 {
		return "", nil
	}
	mediaType, media, ok := jsonMedia(content)
	if !ok {
		types := make([]string, 0, len(content))
		for k := range content {
			types = append(types, k)
		}
		sort.Strings(types)
		return "request body is not JSON (" + strings.Join(types, ", ") + ")", nil
	}

	tool.HasBody = true
	tool.ContentType = mediaType
	mediaObj, _ := media.(map[string]any)
	schemaNode, present := mediaObj["schema"]
	if !present {
		tool.RawBody = true
		tool.Params = append(tool.Params, Parameter{Name: RawBodyParam, In: LocationBody, Required: required, Type: TypeObject})
		return "", nil
	}

	props, requiredProps, typ, err := d.objectShape(schemaNode, 0)
	if err != nil {
		return "", fmt.Errorf("requestBody schema: %w", err)
	}
	if typ != TypeObject || len(props) == 0 {
		tool.RawBody = true
		tool.Params = append(tool.Params, Parameter{Name: RawBodyParam, In: LocationBody, Required: required, Type: typ})
		return "", nil
	}

	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		tool.Params = append(tool.Params, Parameter{
			Name:        n,
			In:          LocationBody,
			Required:    requiredProps[n],
			Type:        props[n].typ,
			Description: props[n].description,
		})
	}
	return "", nil
}

// jsonMedia picks the JSON entry of a content map.
func jsonMedia(content map[string]any) (string, any, bool) {
	if m, ok := content["application/json"]; ok {
		return "application/json", m, true
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(k, "+json") {
			return k, content[k], true
		}
	}
	return "", nil, false
}

type propInfo struct {
	typ         Type
	description string
}

// objectShape flattens a schema (following $ref and allOf) into its
// properties, required set and coarse type.
func (d *openAPIDoc) objectShape(node any, depth int) (map[string]propInfo, map[string]bool, Type, error) {
	if depth > maxRefDepth {
		return nil, nil, "", fmt.Errorf("allOf nesting deeper than %d", maxRefDepth)
	}
	s, err := d.resolve(node)
	if err != nil {
		return nil, nil, "", err
	}

	props := make(map[string]propInfo)
	required := make(map[string]bool)
	typ := d.typeOf(s)

	if all, ok := s["allOf"].([]any); ok {
		for _, part := range all {
			p, r, t, err := d.objectShape(part, depth+1)
			if err != nil {
				return nil, nil, "", err
			}
			if t == TypeObject {
				typ = TypeObject
			}
			for k, v := range p {
				props[k] = v
			}
			for k := range r {
				required[k] = true
			}
		}
	}

	if raw, ok := s["properties"].(map[string]any); ok {
		for k, v := range raw {
			ps, err := d.resolve(v)
			if err != nil {
				return nil, nil, "", fmt.Errorf("property %s: %w", k, err)
			}
			props[k] = propInfo{typ: d.typeOf(ps), description: describe(ps)}
		}
	}
	if req, ok := s["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	return props, required, typ, nil
}

// typeOf infers the coarse type of an already-resolved schema.
func (d *openAPIDoc) typeOf(s map[string]any) Type {
	switch t := s["type"].(type) {
	case string:
		return normalizeType(t)
	case []any:
		// OpenAPI 3.1 type arrays: take the first non-null entry.
		for _, e := range t {
			if name, ok := e.(string); ok && name != "null" {
				return normalizeType(name)
			}
		}
	}
	if _, ok := s["properties"]; ok {
		return TypeObject
	}
	if _, ok := s["allOf"]; ok {
		return TypeObject
	}
	if _, ok := s["items"]; ok {
		return TypeArray
	}
	return TypeString
}

type rawParam struct {
	name        string
	in          string
	required    bool
	typ         Type
	description string
}

func (d *openAPIDoc) parameterList(node any) ([]rawParam, error) {
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("parameters is not a list")
	}
	out := make([]rawParam, 0, len(list))
	for i, entry := range list {
		p, err := d.resolve(entry)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		if in == "" {
			return nil, fmt.Errorf("parameter %q has no location", name)
		}
		required, _ := p["required"].(bool)
		typ := TypeString
		if sn, ok := p["schema"]; ok {
			s, err := d.resolve(sn)
			if err != nil {
				return nil, fmt.Errorf("parameter %q schema: %w", name, err)
			}
			typ = d.typeOf(s)
		}
		out = append(out, rawParam{
			name:        name,
			in:          in,
			required:    required,
			typ:         typ,
			description: describe(p),
		})
	}
	return out, nil
}

// resolve follows local $ref chains and returns the target object.
func (d *openAPIDoc) resolve(node any) (map[string]any, error) {
	for depth := 0; depth <= maxRefDepth; depth++ {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", node)
		}
		ref, ok := m["$ref"].(string)
		if !ok {
			return m, nil
		}
		target, err := d.lookupRef(ref)
		if err != nil {
			return nil, err
		}
		node = target
	}
	return nil, fmt.Errorf("$ref chain deeper than %d", maxRefDepth)
}

// lookupRef resolves a JSON pointer of the form #/a/b/c within the document.
func (d *openAPIDoc) lookupRef(ref string) (any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, fmt.Errorf("external $ref %q not supported", ref)
	}
	var cur any = d.root
	for _, tok := range strings.Split(ref[2:], "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("$ref %q does not resolve", ref)
		}
		if cur, ok = m[tok]; !ok {
			return nil, fmt.Errorf("$ref %q does not resolve", ref)
		}
	}
	return cur, nil
}

// describe picks the summary, falling back to the description.
func describe(m map[string]any) string {
	if s, _ := m["summary"].(string); strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	s, _ := m["description"].(string)
	return strings.TrimSpace(s)
}
