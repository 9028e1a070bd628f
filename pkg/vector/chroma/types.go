package chroma

import "github.com/papercomputeco/simstore/pkg/vector"

type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type createCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type addRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

// queryResponse holds one inner slice per query embedding.
type queryResponse struct {
	IDs        [][]string         `json:"ids"`
	Documents  [][]*string        `json:"documents"`
	Metadatas  [][]map[string]any `json:"metadatas"`
	Distances  [][]float32        `json:"distances"`
	Embeddings [][][]float32      `json:"embeddings"`
}

// results converts the first result group, which is the only one since the
// driver sends a single query embedding.
func (r queryResponse) results(m vector.Metric) []vector.QueryResult {
	if len(r.IDs) == 0 {
		return []vector.QueryResult{}
	}

	out := make([]vector.QueryResult, len(r.IDs[0]))
	for i := range r.IDs[0] {
		doc := vector.Document{Metadata: map[string]string{}}
		if len(r.Documents) > 0 && i < len(r.Documents[0]) && r.Documents[0][i] != nil {
			doc.PageContent = *r.Documents[0][i]
		}
		if len(r.Metadatas) > 0 && i < len(r.Metadatas[0]) {
			for k, v := range r.Metadatas[0][i] {
				if s, ok := v.(string); ok {
					doc.Metadata[k] = s
				}
			}
		}
		if len(r.Embeddings) > 0 && i < len(r.Embeddings[0]) {
			doc.Embedding = r.Embeddings[0][i]
		}

		var dist float32
		if len(r.Distances) > 0 && i < len(r.Distances[0]) {
			dist = r.Distances[0][i]
		}
		out[i] = vector.QueryResult{Document: doc, Score: score(m, dist)}
	}
	return out
}
