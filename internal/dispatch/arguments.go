package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/box-mcp/internal/schema"
)

// partitioned holds validated arguments grouped by where they travel.
type partitioned struct {
	path   map[string]string
	query  map[string]string
	header map[string]string
	body   map[string]any
	raw    any
	hasRaw bool
}

// partition validates args against the tool and sorts them by location.
// Nothing here touches the network.
func partition(tool *schema.Tool, args map[string]any, allowExtra bool) (*partitioned, []string, error) {
	out := &partitioned{
		path:   map[string]string{},
		query:  map[string]string{},
		header: map[string]string{},
		body:   map[string]any{},
	}

	for _, p := range tool.Params {
		val, present := args[p.Name]
		if present && val == nil {
			present = false
		}
		if !present {
			if p.Required {
				return nil, nil, missingParameter(tool.Name, p.Name)
			}
			continue
		}

		if err := checkType(p, val); err != nil {
			return nil, nil, invalidParameter(tool.Name, p.Name, "%v", err)
		}

		switch p.In {
		case schema.LocationPath:
			s := formatValue(val)
			if s == "" {
				return nil, nil, missingParameter(tool.Name, p.Name)
			}
			out.path[p.Name] = s
		case schema.LocationQuery:
			out.query[p.Name] = formatValue(val)
		case schema.LocationHeader:
			s := formatValue(val)
			if strings.ContainsAny(s, "\r\n") {
				return nil, nil, invalidParameter(tool.Name, p.Name, "header value contains a line break")
			}
			out.header[p.Name] = s
		case schema.LocationBody:
			if tool.RawBody && p.Name == schema.RawBodyParam {
				out.raw = val
				out.hasRaw = true
				continue
			}
			out.body[p.Name] = val
		}
	}

	var extras []string
	for name := range args {
		if _, declared := tool.Param(name); !declared {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	if len(extras) > 0 && !allowExtra {
		return nil, nil, unexpectedParameter(tool.Name, extras[0])
	}
	return out, extras, nil
}

// checkType performs the coarse type check. Path, query and header values end
// up as strings on the wire, so stringified numbers and booleans are accepted
// there; body values must carry their JSON type.
func checkType(p schema.Parameter, val any) error {
	wire := p.In != schema.LocationBody

	switch p.Type {
	case schema.TypeString:
		if _, ok := val.(string); ok {
			return nil
		}
		if wire && isNumber(val) {
			return nil
		}
	case schema.TypeNumber:
		if isNumber(val) {
			return nil
		}
		if s, ok := val.(string); ok && wire {
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				return nil
			}
		}
	case schema.TypeBoolean:
		if _, ok := val.(bool); ok {
			return nil
		}
		if s, ok := val.(string); ok && wire {
			if _, err := strconv.ParseBool(s); err == nil {
				return nil
			}
		}
	case schema.TypeObject:
		if isKind(val, reflect.Map) {
			return nil
		}
	case schema.TypeArray:
		if isKind(val, reflect.Slice, reflect.Array) {
			return nil
		}
		// Comma lists ("name,size") are how Box spells arrays on the wire.
		if _, ok := val.(string); ok && wire {
			return nil
		}
	default:
		return nil
	}
	return fmt.Errorf("expected %s, got %s", p.Type, describeValue(val))
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	}
	return false
}

func isKind(v any, kinds ...reflect.Kind) bool {
	k := reflect.TypeOf(v).Kind()
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func describeValue(v any) string {
	switch {
	case isNumber(v):
		return "number"
	case isKind(v, reflect.Bool):
		return "boolean"
	case isKind(v, reflect.String):
		return "string"
	case isKind(v, reflect.Map):
		return "object"
	case isKind(v, reflect.Slice, reflect.Array):
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

// formatValue renders a value for a path segment, query string or header.
// Arrays become comma-separated lists; objects are JSON-encoded.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
