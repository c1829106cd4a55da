package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Arg is one named tool argument.
type Arg struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Args is an ordered key/value mapping of tool arguments.
type Args []Arg

// ArgsFromMap builds Args from a map with keys in lexical order, so the
// same call always produces the same argument order.
func ArgsFromMap(m map[string]any) Args {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make(Args, 0, len(keys))
	for _, k := range keys {
		args = append(args, Arg{Key: k, Value: m[k]})
	}
	return args
}

// Get returns the value for key.
func (a Args) Get(key string) (any, bool) {
	for _, arg := range a {
		if arg.Key == key {
			return arg.Value, true
		}
	}
	return nil, false
}

// String returns the value for key formatted as a string, or "" if absent.
func (a Args) String(key string) string {
	v, ok := a.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Map returns the arguments as a plain map.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, arg := range a {
		m[arg.Key] = arg.Value
	}
	return m
}

// Keys returns the argument names in order.
func (a Args) Keys() []string {
	keys := make([]string, len(a))
	for i, arg := range a {
		keys[i] = arg.Key
	}
	return keys
}

// MarshalJSON encodes Args as a JSON object, preserving order.
func (a Args) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, arg := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(arg.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(arg.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// ToolCall is one outstanding tool invocation issued by the model.
type ToolCall struct {
	ResponseID string `json:"responseId"`
	Name       string `json:"name"`
	Args       Args   `json:"args"`
}

// ToolResult is the executor's answer to a ToolCall.
type ToolResult struct {
	ResponseID string `json:"responseId"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	Failed     bool   `json:"failed,omitempty"`
}

// ToolParam is one string parameter of a tool.
type ToolParam struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolSpec declares a tool to the remote model.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"params,omitempty"`
}
