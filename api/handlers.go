package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/simstore/pkg/retrieval"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/concurrent"
	"github.com/papercomputeco/simstore/pkg/vector/instrumented"
)

// defaultK is used when a query omits k.
const defaultK = 5

// InsertResponse reports how many documents were stored.
type InsertResponse struct {
	Inserted int `json:"inserted"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Embedding []float32     `json:"embedding"`
	K         *int          `json:"k,omitempty"`
	Filter    vector.Filter `json:"filter,omitempty"`
}

// BatchQueryRequest is the body of POST /v1/query/batch.
type BatchQueryRequest struct {
	Embeddings   [][]float32   `json:"embeddings"`
	K            *int          `json:"k,omitempty"`
	Filter       vector.Filter `json:"filter,omitempty"`
	RaiseOnError bool          `json:"raise_on_error"`
}

// Result is one scored document.
type Result struct {
	Document vector.Document `json:"document"`
	Score    float32         `json:"score"`
}

// QueryResponse holds ranked results, best first.
type QueryResponse struct {
	Results        []Result `json:"results"`
	Count          int      `json:"count"`
	HigherIsBetter bool     `json:"higher_is_better"`
}

// BatchQueryResponse holds one result list per query embedding.
type BatchQueryResponse struct {
	Results        [][]Result `json:"results"`
	HigherIsBetter bool       `json:"higher_is_better"`
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query     string            `json:"query"`
	Embedding []float32         `json:"embedding"`
	Corpus    []vector.Document `json:"corpus"`
	Threshold float32           `json:"threshold"`

	// Render selects a retrieved row to render as a digest.
	Render *int `json:"render,omitempty"`
}

// RetrieveResponse holds the retained rows and an optional digest.
type RetrieveResponse struct {
	Results []Result `json:"results"`
	Count   int      `json:"count"`
	Digest  string   `json:"digest,omitempty"`
}

// StatsResponse holds per-method call statistics.
type StatsResponse struct {
	Backend string          `json:"backend"`
	Methods json.RawMessage `json:"methods"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAddDocuments handles POST /v1/documents with a JSON array body.
func (s *Server) handleAddDocuments(c *fiber.Ctx) error {
	var docs []vector.Document
	if err := c.BodyParser(&docs); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}

	if err := s.driver.Add(c.UserContext(), docs); err != nil {
		s.logger.Debug("add documents failed", "count", len(docs), "error", err)
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(InsertResponse{Inserted: len(docs)})
}

// handleQuery handles POST /v1/query.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	k, err := topK(req.K)
	if err != nil {
		return err
	}

	results, err := s.driver.Query(c.UserContext(), req.Embedding, k, req.Filter)
	if err != nil {
		return err
	}

	out := toResults(results)
	return c.JSON(QueryResponse{
		Results:        out,
		Count:          len(out),
		HigherIsBetter: s.config.Metric.HigherIsBetter(),
	})
}

// handleQueryBatch handles POST /v1/query/batch. Queries fan out over the
// concurrent wrapper when the driver has one, and run in order otherwise.
func (s *Server) handleQueryBatch(c *fiber.Ctx) error {
	var req BatchQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	k, err := topK(req.K)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	var batches [][]vector.QueryResult
	if cd, ok := vector.Find[*concurrent.Driver](s.driver); ok {
		batches, err = cd.QueryMany(ctx, req.Embeddings, k, req.Filter, req.RaiseOnError)
		if err != nil {
			return err
		}
	} else {
		batches = make([][]vector.QueryResult, len(req.Embeddings))
		for i, e := range req.Embeddings {
			res, err := s.driver.Query(ctx, e, k, req.Filter)
			if err != nil {
				if req.RaiseOnError {
					return err
				}
				res = []vector.QueryResult{}
			}
			batches[i] = res
		}
	}

	out := make([][]Result, len(batches))
	for i, b := range batches {
		out[i] = toResults(b)
	}
	return c.JSON(BatchQueryResponse{
		Results:        out,
		HigherIsBetter: s.config.Metric.HigherIsBetter(),
	})
}

// handleRetrieve handles POST /v1/retrieve. Each request runs its own
// session over the supplied corpus.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	var req RetrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}

	ctx := c.UserContext()
	session := retrieval.NewSession(req.Query, req.Embedding, retrieval.WithLogger(s.logger))
	defer session.Close()

	if err := session.BindCorpus(ctx, req.Corpus); err != nil {
		return err
	}
	results, err := session.Retrieve(ctx, req.Threshold)
	if err != nil {
		return err
	}

	resp := RetrieveResponse{
		Results: toResults(results),
		Count:   len(results),
	}
	if req.Render != nil {
		digest, err := session.Render(*req.Render)
		if err != nil {
			return err
		}
		resp.Digest = digest
	}

	return c.JSON(resp)
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(c *fiber.Ctx) error {
	inst, ok := vector.Find[*instrumented.Driver](s.driver)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "driver is not instrumented")
	}

	methods, err := inst.SnapshotJSON()
	if err != nil {
		return err
	}
	return c.JSON(StatsResponse{Backend: s.config.Backend, Methods: methods})
}

// topK resolves an optional k, defaulting to defaultK.
func topK(k *int) (int, error) {
	if k == nil {
		return defaultK, nil
	}
	if *k < 0 {
		return 0, badRequest("k must not be negative")
	}
	return *k, nil
}

func toResults(results []vector.QueryResult) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{Document: r.Document, Score: r.Score}
	}
	return out
}
