package slate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GraphQLLocation points at the offending position in a query document.
type GraphQLLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLErrorItem is one entry of a GraphQL response's top-level error list.
type GraphQLErrorItem struct {
	Message   string            `json:"message"`
	Path      []any             `json:"path"`
	Locations []GraphQLLocation `json:"locations"`
}

// GraphQLError is a logical query failure: the transport call returned 200
// but the response carried a top-level error list. It indicates a malformed
// or rejected query, not transience, and is therefore never retried.
type GraphQLError struct {
	Errors []GraphQLErrorItem
	Query  string
}

func (e *GraphQLError) Error() string {
	parts := make([]string, 0, len(e.Errors))

	for _, item := range e.Errors {
		msg := item.Message

		if len(item.Path) > 0 {
			elems := make([]string, len(item.Path))
			for i, p := range item.Path {
				elems[i] = fmt.Sprint(p)
			}

			msg += " (path " + strings.Join(elems, "/") + ")"
		}

		if len(item.Locations) > 0 {
			loc := item.Locations[0]
			msg += fmt.Sprintf(" (line %d column %d)", loc.Line, loc.Column)
		}

		parts = append(parts, msg)
	}

	return "slate: graphql query failed: " + strings.Join(parts, "; ")
}

// graphQLEnvelope is the wire shape of every GraphQL response.
type graphQLEnvelope struct {
	Data   json.RawMessage    `json:"data"`
	Errors []GraphQLErrorItem `json:"errors"`
}

// graphQLRequest is the wire shape of a GraphQL POST.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// QueryGraphQL posts a query document with variables to the server's
// /graphql endpoint and unmarshals the data payload into out (which may be
// nil when the caller only cares about success). Transport-level transience
// is retried like any REST call; a 200 response carrying an error list is a
// *GraphQLError and is not retried.
func (c *Connection) QueryGraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	resp, err := c.do(ctx, http.MethodPost, c.gqlURL, graphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return err
	}

	var envelope graphQLEnvelope
	if err := resp.DecodeJSON(&envelope); err != nil {
		return err
	}

	if len(envelope.Errors) > 0 {
		return &GraphQLError{Errors: envelope.Errors, Query: query}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("slate: decoding graphql data: %w", err)
		}
	}

	return nil
}
