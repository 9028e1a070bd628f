package redisearch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/papercomputeco/simstore/pkg/vector"
)

// tagSeparator splits tag values in the index. Filters on values holding it
// are evaluated by the driver.
const tagSeparator = "\x1f"

// distanceMetric maps a metric to its DISTANCE_METRIC name.
func distanceMetric(m vector.Metric) string {
	switch m {
	case vector.MetricInnerProduct:
		return "IP"
	case vector.MetricCosine:
		return "COSINE"
	default:
		return "L2"
	}
}

// createIndexArgs builds the FT.CREATE command for a hash index with a FLAT
// vector field and one TAG field per tag key. Tags are case-sensitive and
// split on the unit separator so that whole metadata values compare exactly.
func createIndexArgs(index, prefix string, dim uint32, m vector.Metric, tags []string) []any {
	args := []any{
		"FT.CREATE", index,
		"ON", "HASH",
		"PREFIX", 1, prefix,
		"SCHEMA",
		fieldContent, "TEXT",
		fieldMetadata, "TEXT",
		fieldEmbedding, "VECTOR", "FLAT", 6,
		"TYPE", "FLOAT32",
		"DIM", dim,
		"DISTANCE_METRIC", distanceMetric(m),
	}
	for _, tag := range tags {
		args = append(args, tagPrefix+tag, "TAG", "SEPARATOR", tagSeparator, "CASESENSITIVE")
	}
	return args
}

// searchArgs builds the FT.SEARCH KNN command. The query vector is bound as
// the $vec parameter.
func searchArgs(index string, filter vector.Filter, knn int, blob []byte) []any {
	query := fmt.Sprintf("%s=>[KNN %d @%s $vec AS %s]", prefilter(filter), knn, fieldEmbedding, fieldScore)
	return []any{
		"FT.SEARCH", index, query,
		"PARAMS", 2, "vec", blob,
		"SORTBY", fieldScore, "ASC",
		"RETURN", 4, fieldContent, fieldMetadata, fieldEmbedding, fieldScore,
		"LIMIT", 0, knn,
		"DIALECT", 2,
	}
}

// prefilter renders filter as a conjunction of tag predicates, or "*".
func prefilter(filter vector.Filter) string {
	if len(filter) == 0 {
		return "*"
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("@%s%s:{%s}", tagPrefix, k, escapeTag(filter[k]))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// escapeTag backslash-escapes the characters the query parser treats as
// separators inside a tag value.
func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		if strings.ContainsRune(",.<>{}[]\"':;!@#$%^&*()-+=~|/\\ ", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
