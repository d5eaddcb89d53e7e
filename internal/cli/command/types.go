package command

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldInt64
	FieldFloat
	FieldBool
	FieldFile
)

func (t FieldType) String() string {
	switch t {
	case FieldInt, FieldInt64:
		return "int"
	case FieldFloat:
		return "number"
	case FieldBool:
		return "bool"
	case FieldFile:
		return "path"
	default:
		return "text"
	}
}

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Command defines a CLI command binding.
type Command struct {
	Group   string
	Action  string
	Summary string
	Fields  []Field
	// OneOf lists field groups of which at least one must be present, e.g. answer|answer_file.
	OneOf [][]string
}

func (c Command) Key() string {
	return c.Group + " " + c.Action
}

// Usage renders "group action name=<type> [opt=<type>]".
func (c Command) Usage() string {
	var b strings.Builder
	b.WriteString(c.Key())
	for _, f := range c.Fields {
		if f.Required {
			fmt.Fprintf(&b, " %s=<%s>", f.Name, f.Type)
		} else {
			fmt.Fprintf(&b, " [%s=<%s>]", f.Name, f.Type)
		}
	}
	return b.String()
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// ParseArgs turns key=value tokens into Params.
func ParseArgs(tokens []string) (Params, error) {
	params := Params{}
	for _, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(strings.TrimSpace(parts[0]), parts[1])
	}
	return params, nil
}

// Missing returns the required fields that have no value.
func (c Command) Missing(params Params) []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Required && strings.TrimSpace(params.Get(f.Name)) == "" {
			out = append(out, f)
		}
	}
	return out
}

// Check verifies that typed fields parse and that each OneOf group is satisfied.
func (c Command) Check(params Params) error {
	for _, f := range c.Fields {
		v := params.Get(f.Name)
		if v == "" {
			continue
		}
		var err error
		switch f.Type {
		case FieldInt:
			_, err = ParseInt(v)
		case FieldInt64:
			_, err = ParseInt64(v)
		case FieldFloat:
			_, err = ParseFloat(v)
		case FieldBool:
			_, err = strconv.ParseBool(strings.TrimSpace(v))
		}
		if err != nil {
			return fmt.Errorf("invalid %s %q: expected %s", f.Name, v, f.Type)
		}
	}
	for _, group := range c.OneOf {
		found := false
		for _, name := range group {
			if params.Get(name) != "" {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("one of %s is required", strings.Join(group, "|"))
		}
	}
	return nil
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ParseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// ParseBool treats an absent value as false.
func ParseBool(value string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(value))
	return b
}

func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file failed: %w", err)
	}
	return data, nil
}
