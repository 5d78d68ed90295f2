// Package knowledge retrieves ranked practice knowledge snippets for the
// patient and clinical assistants.
package knowledge

import "context"

// Retriever returns the most relevant knowledge snippets for a tenant-scoped
// query, best first. An empty slice means nothing relevant was found.
type Retriever interface {
	Retrieve(ctx context.Context, clientID, query string) ([]string, error)
}
