package contracts

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInteger
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindStringList:
		return "array of strings"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field describes one property of a tool input object.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	// NonEmpty applies to strings and to the elements of string lists.
	NonEmpty    bool
	NonNegative bool
	Enum        []string
	MinItems    int
	Default     any
}

// Shape is the input descriptor of one tool. Unknown properties are always rejected.
type Shape struct {
	Fields []Field
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (s Shape) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks raw JSON arguments against the shape and returns them with defaults filled in.
func (s Shape) Validate(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ValidationError{Problems: []string{"arguments are not valid JSON"}}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, &ValidationError{Problems: []string{"arguments must be a JSON object"}}
	}

	var problems []string
	// a repeated key would be read first-wins here but last-wins by the decoder
	seen := map[string]bool{}
	doc.ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		switch {
		case seen[name]:
			problems = append(problems, fmt.Sprintf("%s: duplicate field", name))
		default:
			if _, ok := s.Field(name); !ok {
				problems = append(problems, fmt.Sprintf("%s: unexpected field", name))
			}
		}
		seen[name] = true
		return true
	})

	out := slices.Clone(raw)
	for _, f := range s.Fields {
		v := doc.Get(f.Name)
		if !v.Exists() {
			if f.Required {
				problems = append(problems, fmt.Sprintf("%s: field required", f.Name))
				continue
			}
			if f.Default != nil {
				var err error
				if out, err = sjson.SetBytes(out, f.Name, f.Default); err != nil {
					return nil, fmt.Errorf("default for %s: %w", f.Name, err)
				}
			}
			continue
		}
		problems = append(problems, f.check(v)...)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

func (f Field) check(v gjson.Result) []string {
	switch f.Kind {
	case KindString:
		if v.Type != gjson.String {
			return []string{fmt.Sprintf("%s: expected string", f.Name)}
		}
		return f.checkString(f.Name, v.Str)
	case KindBool:
		if v.Type != gjson.True && v.Type != gjson.False {
			return []string{fmt.Sprintf("%s: expected boolean", f.Name)}
		}
	case KindInteger:
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
			return []string{fmt.Sprintf("%s: expected integer", f.Name)}
		}
		if f.NonNegative && v.Num < 0 {
			return []string{fmt.Sprintf("%s: must be greater than or equal to 0", f.Name)}
		}
	case KindStringList:
		if !v.IsArray() {
			return []string{fmt.Sprintf("%s: expected %s", f.Name, f.Kind)}
		}
		items := v.Array()
		var problems []string
		if len(items) < f.MinItems {
			problems = append(problems, fmt.Sprintf("%s: expected at least %d item(s)", f.Name, f.MinItems))
		}
		for i, item := range items {
			name := fmt.Sprintf("%s[%d]", f.Name, i)
			if item.Type != gjson.String {
				problems = append(problems, name+": expected string")
				continue
			}
			problems = append(problems, f.checkString(name, item.Str)...)
		}
		return problems
	}
	return nil
}

func (f Field) checkString(name, s string) []string {
	if f.NonEmpty && s == "" {
		return []string{name + ": must not be empty"}
	}
	if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
		return []string{fmt.Sprintf("%s: must be one of %s", name, strings.Join(f.Enum, ", "))}
	}
	return nil
}

// Properties returns the JSON Schema of every field keyed by name.
func (s Shape) Properties() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = f.schema()
	}
	return props
}

func (s Shape) RequiredFields() []string {
	required := []string{}
	for _, f := range s.Fields {
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return required
}

func (s Shape) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           s.Properties(),
		"required":             s.RequiredFields(),
		"additionalProperties": false,
	}
}

func (f Field) schema() map[string]any {
	schema := map[string]any{}
	stringSchema := func() map[string]any {
		m := map[string]any{"type": "string"}
		if f.NonEmpty {
			m["minLength"] = 1
		}
		if len(f.Enum) > 0 {
			m["enum"] = slices.Clone(f.Enum)
		}
		return m
	}

	switch f.Kind {
	case KindString:
		schema = stringSchema()
	case KindBool:
		schema["type"] = "boolean"
	case KindInteger:
		schema["type"] = "integer"
		if f.NonNegative {
			schema["minimum"] = 0
		}
	case KindStringList:
		schema["type"] = "array"
		schema["items"] = stringSchema()
		if f.MinItems > 0 {
			schema["minItems"] = f.MinItems
		}
	}

	if f.Description != "" {
		schema["description"] = f.Description
	}
	if f.Default != nil {
		schema["default"] = f.Default
	}
	return schema
}
