package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Catalog maps tool names to tools. It has no mutation path after Load returns,
// so it can be shared by any number of goroutines.
type Catalog struct {
	tools   map[string]*Tool
	order   []*Tool
	skipped []Skipped
}

// Skipped records an operation that was left out of the catalog on purpose.
type Skipped struct {
	Operation string
	Reason    string
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (*Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Tools returns every tool in load order. The returned slice is a fresh copy.
func (c *Catalog) Tools() []*Tool {
	out := make([]*Tool, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Skipped returns the operations the loader chose not to compile.
func (c *Catalog) Skipped() []Skipped {
	out := make([]Skipped, len(c.skipped))
	copy(out, c.skipped)
	return out
}

// builder accumulates tools and only yields a catalog when every one passed verification.
type builder struct {
	tools   map[string]*Tool
	order   []*Tool
	skipped []Skipped
}

func newBuilder() *builder {
	return &builder{tools: make(map[string]*Tool)}
}

func (b *builder) skip(op, reason string) {
	b.skipped = append(b.skipped, Skipped{Operation: op, Reason: reason})
}

func (b *builder) add(t *Tool) error {
	if err := verifyTool(t); err != nil {
		return err
	}
	if _, dup := b.tools[t.Name]; dup {
		return opError(t.Name, "duplicate tool name")
	}
	b.tools[t.Name] = t
	b.order = append(b.order, t)
	return nil
}

func (b *builder) catalog() *Catalog {
	return &Catalog{tools: b.tools, order: b.order, skipped: b.skipped}
}

// toolNamePattern matches names an MCP client accepts.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// verifyTool checks the name, method, parameter set and the path-template invariant.
func verifyTool(t *Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return opError(t.Name, "invalid tool name (want 1-64 of [A-Za-z0-9_-])")
	}
	if !allowedMethods[t.Method] {
		return opError(t.Name, "unsupported method %q", t.Method)
	}
	if t.Path == "" || !strings.HasPrefix(t.Path, "/") {
		return opError(t.Name, "path %q must start with /", t.Path)
	}
	if strings.Contains(t.Path, "..") {
		return opError(t.Name, "path %q contains ..", t.Path)
	}

	placeholders, err := pathPlaceholders(t.Path)
	if err != nil {
		return opError(t.Name, "%v", err)
	}

	seen := make(map[string]bool, len(t.Params))
	pathParams := make(map[string]bool)
	for _, p := range t.Params {
		if p.Name == "" {
			return opError(t.Name, "parameter with empty name")
		}
		if seen[p.Name] {
			return opError(t.Name, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.In == LocationBody && !t.HasBody {
			return opError(t.Name, "body parameter %q on an operation without a body", p.Name)
		}
	}
	for _, p := range t.ParamsIn(LocationPath) {
		if !p.Required {
			return opError(t.Name, "path parameter %q must be required", p.Name)
		}
		pathParams[p.Name] = true
	}

	for _, name := range placeholders {
		if !pathParams[name] {
			return opError(t.Name, "placeholder {%s} has no path parameter", name)
		}
		delete(pathParams, name)
	}
	for name := range pathParams {
		return opError(t.Name, "path parameter %q has no placeholder in %s", name, t.Path)
	}
	return nil
}

// pathPlaceholders returns the {name} placeholders of a path template in order.
func pathPlaceholders(path string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '}':
			return nil, fmt.Errorf("unbalanced } at offset %d in %q", i, path)
		case '{':
			end := strings.IndexByte(path[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated { at offset %d in %q", i, path)
			}
			name := path[i+1 : i+end]
			if name == "" || strings.ContainsAny(name, "{/") {
				return nil, fmt.Errorf("malformed placeholder at offset %d in %q", i, path)
			}
			if seen[name] {
				return nil, fmt.Errorf("placeholder {%s} repeated in %q", name, path)
			}
			seen[name] = true
			names = append(names, name)
			i += end
		}
	}
	return names, nil
}

// DeriveName builds the Box-style tool name for an operation that carries no
// explicit identifier: the lower-cased method, then each path segment, with
// placeholder segments collapsed to "id". GET /files/{file_id}/comments
// becomes get_files_id_comments. A "#fragment" on the path, which Box uses to
// tell apart operations sharing a method and path, is appended after a double
// underscore: PUT /files/{file_id}#add_shared_link becomes
// put_files_id__add_shared_link.
func DeriveName(method, path string) string {
	path, fragment := splitFragment(path)
	parts := []string{strings.ToLower(method)}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			parts = append(parts, "id")
			continue
		}
		if slug := slugify(seg); slug != "" {
			parts = append(parts, slug)
		}
	}
	name := strings.Join(parts, "_")
	if slug := slugify(fragment); slug != "" {
		name += "__" + slug
	}
	return name
}

// splitFragment separates a "#fragment" suffix from a path template.
func splitFragment(path string) (string, string) {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func slugify(s string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && sb.Len() > 0 {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
