package domain

type SearchFilter struct {
	Category     string
	DocumentType string
}

// RetrievedDocument is a ranked reference snippet returned by the retrieval
// backend. It lives only for the duration of one analysis run and is never
// persisted by the core.
type RetrievedDocument struct {
	ID           string  `json:"id"`
	DocumentCode string  `json:"document_code"`
	Title        string  `json:"title"`
	Snippet      string  `json:"snippet"`
	Category     string  `json:"category"`
	DocumentType string  `json:"document_type"`
	Relevance    float64 `json:"relevance"`
}

// DocumentChunk is one indexable unit of a tenant reference document.
type DocumentChunk struct {
	DocumentCode string
	Title        string
	Content      string
	Category     string
	DocumentType string
	ChunkIndex   int
}
