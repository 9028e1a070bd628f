package pgvector

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/papercomputeco/simstore/pkg/vector"
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// distanceOperator returns the pgvector operator ordering rows best first.
func distanceOperator(m vector.Metric) string {
	switch m {
	case vector.MetricInnerProduct:
		return "<#>"
	case vector.MetricCosine:
		return "<=>"
	default:
		return "<->"
	}
}

// operatorClass returns the index operator class matching the metric.
func operatorClass(m vector.Metric) string {
	switch m {
	case vector.MetricInnerProduct:
		return "vector_ip_ops"
	case vector.MetricCosine:
		return "vector_cosine_ops"
	default:
		return "vector_l2_ops"
	}
}

// schemaStatements returns the DDL creating the extension, table and index.
func schemaStatements(table string, dim uint32, m vector.Metric) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	page_content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	embedding vector(%d) NOT NULL
)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding %s)`,
			table, table, operatorClass(m)),
	}
}

// insertStatement builds a multi-row INSERT for rows documents. Each row
// binds page_content, metadata and embedding text in that order.
func insertStatement(table string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (page_content, metadata, embedding) VALUES ", table)
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&b, "($%d, $%d::jsonb, $%d::vector)", n+1, n+2, n+3)
	}
	return b.String()
}

// queryStatement builds the KNN SELECT. $1 is the query vector; filter
// pairs follow in key order.
func queryStatement(table string, m vector.Metric, filter vector.Filter, k int) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT page_content, metadata::text, embedding::text, embedding %s $1::vector AS score FROM %s",
		distanceOperator(m), table)

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	args := make([]any, 0, 1+2*len(keys))
	args = append(args, nil)
	for i, key := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "metadata->>$%d = $%d", len(args)+1, len(args)+2)
		args = append(args, key, filter[key])
	}

	fmt.Fprintf(&b, " ORDER BY score, id LIMIT %d", k)
	return b.String(), args
}

// formatVector renders v as a pgvector text literal.
func formatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses a pgvector text literal.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// scoreFromDistance converts an operator result to the metric's score.
func scoreFromDistance(m vector.Metric, distance float64) float32 {
	switch m {
	case vector.MetricInnerProduct:
		return float32(-distance)
	case vector.MetricCosine:
		return float32(1 - distance)
	default:
		return float32(distance * distance)
	}
}
