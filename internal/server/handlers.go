package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	result, err := s.pipeline.Answer(r.Context(), &req)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// respondPipelineError maps pipeline failures to HTTP statuses. The stage, if
// known, is included so clients can tell where the query died.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	s.logger.Error("query failed", zap.Error(err))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, models.ErrEmbeddingUnavailable),
		errors.Is(err, models.ErrRetrievalUnavailable),
		errors.Is(err, models.ErrCompletionUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, models.ErrCompletionRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrParseFailure):
		status = http.StatusBadGateway
	case errors.Is(err, models.ErrConfiguration):
		status = http.StatusInternalServerError
	default:
		// Anything not a stage failure is a bad request (e.g. empty query).
		var stageErr *models.StageError
		if !errors.As(err, &stageErr) {
			status = http.StatusBadRequest
		}
	}

	body := map[string]string{"error": err.Error()}
	var stageErr *models.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
	}
	s.respondJSON(w, status, body)
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("ingest document request", zap.String("id", input.ID), zap.String("title", input.Title))
	chunks, err := s.ingestor.IngestDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     input.ID,
		"chunks": chunks,
		"status": "ingested",
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.storage.CountDocuments(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

// handleGetChunk resolves a chunk ID from a query's evidence back to the
// stored chunk with its exact offsets.
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunk, err := s.storage.GetChunk(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "chunk not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingestor.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("reprocess document request", zap.String("id", id))
	chunks, err := s.ingestor.ReprocessDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("reprocess failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"chunks": chunks,
		"status": "reprocessed",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	vectorCount, err := s.index.Count(ctx)
	if err != nil {
		s.logger.Error("status: vector count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
		"vectors":   vectorCount,
		"config": map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"completion_provider":  s.config.Completion.Provider,
			"vector_index_type":    s.config.Retrieval.IndexType,
			"max_chunk_chars":      s.config.Chunking.MaxChunkChars,
			"overlap_chars":        s.config.Chunking.OverlapChars,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"storage": "ok",
		"index":   "ok",
	}
	status := "ok"
	if _, err := s.storage.CountDocuments(r.Context()); err != nil {
		services["storage"] = "unavailable"
		status = "degraded"
	}
	if _, err := s.index.Count(r.Context()); err != nil {
		services["index"] = "unavailable"
		status = "degraded"
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
