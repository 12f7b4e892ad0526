package cli

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Query runs a jq expression over v and returns every value it emits.
// v is normalized through JSON first, so struct tags decide field names.
func Query(v any, expr string) ([]any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", expr, err)
	}

	input, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var out []any
	iter := code.Run(input)
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := value.(error); ok {
			return nil, fmt.Errorf("query %q: %w", expr, err)
		}
		out = append(out, value)
	}
	return out, nil
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query input: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode query input: %w", err)
	}
	return out, nil
}
