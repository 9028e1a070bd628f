package vector

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// documentJSON is the wire form of a Document. A null or missing embedding
// marks an absent embedding.
type documentJSON struct {
	PageContent string            `json:"page_content"`
	Embedding   []float32         `json:"embedding"`
	Metadata    map[string]string `json:"metadata"`
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	md := d.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return json.Marshal(documentJSON{
		PageContent: d.PageContent,
		Embedding:   d.Embedding,
		Metadata:    md,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A record without metadata
// decodes to an empty map.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.PageContent = raw.PageContent
	d.Embedding = raw.Embedding
	d.Metadata = raw.Metadata
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	return nil
}

// EncodeDocument renders doc in its textual JSON form.
func EncodeDocument(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// DecodeDocument parses a document from its textual JSON form.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// EncodeDocuments writes docs as JSON Lines, one document per line.
func EncodeDocuments(w io.Writer, docs []Document) error {
	enc := json.NewEncoder(w)
	for i, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding document %d: %w", i, err)
		}
	}
	return nil
}

// DecodeDocuments reads JSON Lines documents until EOF. Blank lines are skipped.
func DecodeDocuments(r io.Reader) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		doc, err := DecodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}
