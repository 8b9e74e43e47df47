// Package types - Dynamic resource attribute bags
package types

import "encoding/json"

// Attributes is an open-ended mapping of attribute name to scalar, list,
// or map value as decoded from canonical JSON. Access goes through the
// typed helpers; callers never assert shapes themselves.
type Attributes map[string]interface{}

// Get retrieves a raw value, returning nil if not found
func (a Attributes) Get(key string) interface{} {
	if v, ok := a[key]; ok {
		return v
	}
	return nil
}

// Has reports whether the attribute is present
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// GetString retrieves a string attribute value
func (a Attributes) GetString(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// GetInt retrieves an integer attribute value
func (a Attributes) GetInt(key string) int {
	switch n := a[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// GetFloat retrieves a float64 attribute value
func (a Attributes) GetFloat(key string) float64 {
	switch n := a[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return 0
}

// GetBool retrieves a boolean attribute value
func (a Attributes) GetBool(key string) bool {
	if b, ok := a[key].(bool); ok {
		return b
	}
	return false
}

// GetList retrieves a list attribute value
func (a Attributes) GetList(key string) []interface{} {
	if l, ok := a[key].([]interface{}); ok {
		return l
	}
	return nil
}

// GetMap retrieves a nested map attribute value
func (a Attributes) GetMap(key string) Attributes {
	if m, ok := a[key].(map[string]interface{}); ok {
		return Attributes(m)
	}
	return nil
}

// GetMapList retrieves a list of nested maps, the shape Terraform uses
// for repeated blocks like ebs_block_device.
func (a Attributes) GetMapList(key string) []Attributes {
	raw := a.GetList(key)
	if raw == nil {
		return nil
	}
	out := make([]Attributes, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Attributes(m))
		}
	}
	return out
}

// Clone returns a shallow copy
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
