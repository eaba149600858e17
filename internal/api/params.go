package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// ParamType is a query parameter's declared type per §4.10.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInteger
	ParamUnsignedInteger
	ParamDouble
)

// ParamSpec declares one query parameter's name, type, and whether it must
// be present. Default is used when the parameter is absent and not
// Required.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Default  any
}

// ParameterError is raised by ParseParams on a missing required parameter
// or a typed conversion failure — both map to HTTP 400 / ErrInvalidParameter
// per §4.10 and the §7 error taxonomy.
type ParameterError struct {
	Param string
	Err   error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %q: %v", e.Param, e.Err)
}

func (e *ParameterError) Unwrap() error { return e.Err }

// ParseParams extracts each declared parameter from the request's query
// string into the returned map, applying defaults and validating types.
// Unknown query parameters are silently ignored per §4.10.
func ParseParams(r *http.Request, specs []ParamSpec) (map[string]any, error) {
	values := make(map[string]any, len(specs))
	query := r.URL.Query()

	for _, spec := range specs {
		raw := query.Get(spec.Name)
		if raw == "" {
			if spec.Required {
				return nil, &ParameterError{Param: spec.Name, Err: fmt.Errorf("required parameter missing")}
			}
			values[spec.Name] = spec.Default
			continue
		}

		v, err := convertParam(spec.Type, raw)
		if err != nil {
			return nil, &ParameterError{Param: spec.Name, Err: err}
		}
		values[spec.Name] = v
	}
	return values, nil
}

func convertParam(t ParamType, raw string) (any, error) {
	switch t {
	case ParamString:
		return raw, nil
	case ParamInteger:
		return strconv.ParseInt(raw, 10, 64)
	case ParamUnsignedInteger:
		return strconv.ParseUint(raw, 10, 64)
	case ParamDouble:
		return strconv.ParseFloat(raw, 64)
	default:
		return nil, fmt.Errorf("unknown parameter type")
	}
}
