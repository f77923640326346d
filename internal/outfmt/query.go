package outfmt

import (
	"context"
	"encoding/json"
	"io"

	"github.com/lunar-chat/lunar-cli/internal/filter"
)

type queryKey struct{}

// WithQuery adds a JQ query to the context
func WithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// GetQuery retrieves the JQ query from context
func GetQuery(ctx context.Context) string {
	if q, ok := ctx.Value(queryKey{}).(string); ok {
		return q
	}
	return ""
}

// WriteJSONFiltered writes JSON with optional JQ filtering.
func WriteJSONFiltered(w io.Writer, v any, query string) error {
	if query == "" {
		return WriteJSON(w, v)
	}

	// Marshal to JSON, apply filter, then re-marshal with indentation.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	result, err := filter.ApplyFromJSON(data, query)
	if err != nil {
		return err
	}

	return WriteJSON(w, result)
}
