// Package schema compiles an API description into an immutable catalog of tools.
package schema

import "strings"

// Location is where a parameter travels in the outgoing HTTP request.
type Location string

const (
	LocationPath   Location = "path"
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationBody   Location = "body"
)

// Type is the coarse type tag used for argument checks.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
)

// Parameter describes one argument accepted by a tool.
type Parameter struct {
	Name        string
	In          Location
	Required    bool
	Type        Type
	Description string
}

// Tool is one compiled operation. Tools are read-only once the catalog is built.
type Tool struct {
	Name        string
	Method      string
	Path        string
	Description string
	Params      []Parameter

	// HasBody is set when the operation declares a JSON request body.
	HasBody bool
	// RawBody means the whole body is carried by the single "body" parameter.
	RawBody bool
	// ContentType is the media type the body is sent as.
	ContentType string
}

// Param returns the declared parameter with the given name.
func (t *Tool) Param(name string) (Parameter, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ParamsIn returns the declared parameters for one location, in declaration order.
func (t *Tool) ParamsIn(loc Location) []Parameter {
	var out []Parameter
	for _, p := range t.Params {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// RawBodyParam is the parameter name used when a body schema is not an object.
const RawBodyParam = "body"

// allowedMethods is the set of verbs a tool may use.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "OPTIONS": true, "HEAD": true,
}

func parseLocation(s string) (Location, bool) {
	switch Location(strings.ToLower(s)) {
	case LocationPath:
		return LocationPath, true
	case LocationQuery:
		return LocationQuery, true
	case LocationHeader:
		return LocationHeader, true
	case LocationBody:
		return LocationBody, true
	}
	return "", false
}

// normalizeType folds the JSON Schema type vocabulary into the five coarse tags.
func normalizeType(s string) Type {
	switch strings.ToLower(s) {
	case "number", "integer":
		return TypeNumber
	case "boolean", "bool":
		return TypeBoolean
	case "object":
		return TypeObject
	case "array":
		return TypeArray
	default:
		return TypeString
	}
}
