package redisearch

import (
	"fmt"
	"strconv"
)

// hit is one document from an FT.SEARCH reply.
type hit struct {
	key    string
	fields map[string]string
}

// parseSearchReply decodes the RESP2 FT.SEARCH reply
//
//	[total, key1, [field, value, ...], key2, [...], ...]
//
// strictly by position. Anything else is an error.
func parseSearchReply(reply any) ([]hit, error) {
	items, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array reply, got %T", reply)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty reply")
	}
	if _, ok := items[0].(int64); !ok {
		return nil, fmt.Errorf("expected integer total, got %T", items[0])
	}

	rest := items[1:]
	if len(rest)%2 != 0 {
		return nil, fmt.Errorf("odd number of elements after total: %d", len(rest))
	}

	hits := make([]hit, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		key, ok := rest[i].(string)
		if !ok {
			return nil, fmt.Errorf("element %d: expected string key, got %T", i+1, rest[i])
		}
		pairs, ok := rest[i+1].([]any)
		if !ok {
			return nil, fmt.Errorf("element %d: expected field array, got %T", i+2, rest[i+1])
		}
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("element %d: odd field array length %d", i+2, len(pairs))
		}

		fields := make(map[string]string, len(pairs)/2)
		for j := 0; j < len(pairs); j += 2 {
			name, ok := pairs[j].(string)
			if !ok {
				return nil, fmt.Errorf("document %s: field name %T is not a string", key, pairs[j])
			}
			value, ok := pairs[j+1].(string)
			if !ok {
				return nil, fmt.Errorf("document %s: field %s value %T is not a string", key, name, pairs[j+1])
			}
			fields[name] = value
		}
		hits = append(hits, hit{key: key, fields: fields})
	}
	return hits, nil
}

// parseScore parses the __score field.
func parseScore(s string) (float32, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s field", fieldScore)
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", fieldScore, err)
	}
	return float32(f), nil
}
