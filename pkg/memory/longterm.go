// Package memory implements the long-term memory collaborator, the
// conversation observer, and the reflector (§4.7).
package memory

import (
	"context"

	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"
)

// LongTermMemory is one retrieved fact surfaced to the context builder
// (§4.6): "- [category] content (id: ...)".
type LongTermMemory struct {
	ID       string
	Category string
	Content  string
	Score    float32
}

// Retriever is the semantic-search collaborator the agent loop consults
// for long-term memories (§4.8 step 2). Semantic search itself (embedding
// generation, collection curation) happens outside this package; this is
// a thin client over the vector store.
type Retriever interface {
	Search(ctx context.Context, conversationID, query string, topK int) ([]LongTermMemory, error)
}

// QdrantRetriever queries a Qdrant collection of embedded memory points.
type QdrantRetriever struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantRetriever constructs a Retriever backed by a running Qdrant
// instance.
func NewQdrantRetriever(host string, port int, collection string) (*QdrantRetriever, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct qdrant client")
	}
	return &QdrantRetriever{client: client, collection: collection}, nil
}

// Search does not embed query and does not use it: it returns up to topK
// points of the collection whose conversation_id payload matches, with no
// similarity ranking against the query text.
func (r *QdrantRetriever) Search(ctx context.Context, conversationID, query string, topK int) ([]LongTermMemory, error) {
	limit := uint64(topK)
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("conversation_id", conversationID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query qdrant")
	}

	memories := make([]LongTermMemory, 0, len(points))
	for _, p := range points {
		memories = append(memories, LongTermMemory{
			ID:       p.Id.GetUuid(),
			Category: stringField(p.Payload, "category"),
			Content:  stringField(p.Payload, "content"),
			Score:    p.Score,
		})
	}
	return memories, nil
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// NoopRetriever always returns no memories, used where long-term retrieval
// is not configured.
type NoopRetriever struct{}

func (NoopRetriever) Search(ctx context.Context, conversationID, query string, topK int) ([]LongTermMemory, error) {
	return nil, nil
}
