package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

// shardName maps a tenant id onto its Weaviate tenant shard.
func shardName(tenant domain.TenantID) string {
	return "tenant_" + tenant.String()
}

// chunkObjectID derives a stable v5 uuid from the chunk coordinates, making
// batch upserts idempotent across queue redeliveries.
func chunkObjectID(tenant domain.TenantID, chunk domain.DocumentChunk) string {
	key := fmt.Sprintf("%s|%s|%d", tenant, chunk.DocumentCode, chunk.ChunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func chunkProperties(tenant domain.TenantID, chunk domain.DocumentChunk) map[string]any {
	return map[string]any{
		"tenantId":     tenant.String(),
		"documentCode": chunk.DocumentCode,
		"title":        chunk.Title,
		"content":      chunk.Content,
		"category":     chunk.Category,
		"documentType": chunk.DocumentType,
		"chunkIndex":   chunk.ChunkIndex,
	}
}

// whereOperand is one Equal condition of a GraphQL where filter.
type whereOperand struct {
	path  string
	value string
}

func filterOperands(filter domain.SearchFilter) []whereOperand {
	var operands []whereOperand
	if filter.Category != "" {
		operands = append(operands, whereOperand{path: "category", value: filter.Category})
	}
	if filter.DocumentType != "" {
		operands = append(operands, whereOperand{path: "documentType", value: filter.DocumentType})
	}
	return operands
}

func renderWhere(operands []whereOperand) string {
	if len(operands) == 0 {
		return ""
	}
	parts := make([]string, 0, len(operands))
	for _, op := range operands {
		parts = append(parts, fmt.Sprintf(
			`{path: ["%s"], operator: Equal, valueText: %s}`,
			op.path, strconv.Quote(op.value),
		))
	}
	if len(parts) == 1 {
		return fmt.Sprintf("where: %s", parts[0])
	}
	return fmt.Sprintf("where: {operator: And, operands: [%s]}", strings.Join(parts, ", "))
}

// searchQuery renders the Get query. tenantArg is empty for filtered mode,
// where the tenant constraint travels as a where operand instead.
func searchQuery(class, tenantArg, queryText string, operands []whereOperand, limit int) string {
	args := []string{
		fmt.Sprintf("bm25: {query: %s}", strconv.Quote(queryText)),
		fmt.Sprintf("limit: %d", limit),
	}
	if tenantArg != "" {
		args = append(args, fmt.Sprintf("tenant: %s", strconv.Quote(tenantArg)))
	}
	if where := renderWhere(operands); where != "" {
		args = append(args, where)
	}
	return fmt.Sprintf(`{
  Get {
    %s(%s) {
      documentCode
      title
      content
      category
      documentType
      _additional { id score }
    }
  }
}`, class, strings.Join(args, ", "))
}

func countQuery(class, tenantArg string, operands []whereOperand) string {
	var args []string
	if tenantArg != "" {
		args = append(args, fmt.Sprintf("tenant: %s", strconv.Quote(tenantArg)))
	}
	if where := renderWhere(operands); where != "" {
		args = append(args, where)
	}
	argList := ""
	if len(args) > 0 {
		argList = "(" + strings.Join(args, ", ") + ")"
	}
	return fmt.Sprintf(`{
  Aggregate {
    %s%s { meta { count } }
  }
}`, class, argList)
}

type searchHit struct {
	DocumentCode string `json:"documentCode"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Category     string `json:"category"`
	DocumentType string `json:"documentType"`
	Additional   struct {
		ID    string          `json:"id"`
		Score json.RawMessage `json:"score"`
	} `json:"_additional"`
}

// decodeSearch parses a Get response and applies the canonical ordering:
// relevance descending, object id ascending as the tiebreak.
func decodeSearch(class string, data json.RawMessage) ([]domain.RetrievedDocument, error) {
	var payload struct {
		Get map[string][]searchHit `json:"Get"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode search payload: %w", err)
	}

	hits := payload.Get[class]
	out := make([]domain.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.RetrievedDocument{
			ID:           hit.Additional.ID,
			DocumentCode: hit.DocumentCode,
			Title:        hit.Title,
			Snippet:      hit.Content,
			Category:     hit.Category,
			DocumentType: hit.DocumentType,
			Relevance:    parseScore(hit.Additional.Score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// parseScore tolerates both encodings Weaviate uses for _additional.score:
// a JSON number and a quoted decimal string.
func parseScore(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if parsed, err := strconv.ParseFloat(str, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func decodeCount(class string, data json.RawMessage) (int, error) {
	var payload struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("decode aggregate payload: %w", err)
	}
	groups := payload.Aggregate[class]
	if len(groups) == 0 {
		return 0, nil
	}
	return groups[0].Meta.Count, nil
}

func runCount(ctx context.Context, client *Client, tenantArg string, operands []whereOperand) (int, error) {
	data, err := client.Query(ctx, countQuery(client.Class(), tenantArg, operands))
	if err != nil {
		return 0, err
	}
	return decodeCount(client.Class(), data)
}
