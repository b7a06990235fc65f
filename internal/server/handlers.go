package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/go-chi/chi/v5"
)

const defaultListLimit = 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.backend != nil {
		resp["backend"] = s.backend.Provider()
		resp["backend_ready"] = s.backend.Ready()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleClassify accepts a multipart "file" upload or a JSON body of rows
// and returns the enriched batch.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	table, err := s.readTable(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.pipeline.Run(r.Context(), table)
	if err != nil {
		var schemaErr *model.SchemaError
		switch {
		case errors.As(err, &schemaErr):
			respondError(w, http.StatusBadRequest, schemaErr.Error())
		case errors.Is(err, model.ErrBatchTooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusServiceUnavailable, "classification did not finish: "+err.Error())
		default:
			s.logger.Error("Classification failed", "error", err)
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if s.store != nil {
		if err := s.store.SaveBatch(r.Context(), batch); err != nil {
			s.logger.Warn("Failed to save batch", "batch_id", batch.ID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, batch)
}

func (s *Server) readTable(r *http.Request) (*ingest.Table, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		table, err := ingest.ReadJSON(r.Body)
		if err != nil {
			return nil, err
		}
		table.Name = "request.json"
		return table, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return ingest.Read(header.Filename, file)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "batch history is disabled")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	batches, err := s.store.ListBatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list batches", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batches == nil {
		batches = []model.BatchSummary{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "batch history is disabled")
		return
	}

	id := chi.URLParam(r, "batchID")
	summary, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	expenses, err := s.store.GetBatchExpenses(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	diagnostics, err := s.store.GetBatchErrors(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"batch":    summary,
		"expenses": expenses,
		"errors":   diagnostics,
	})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, common.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("Batch store failed", "error", err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

// handleUpload relays a multipart "file" to the remote prediction service.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.relay == nil {
		respondError(w, http.StatusServiceUnavailable, "relay endpoint not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	result, err := s.relay.Forward(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, common.ErrEmptyUpload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Relay failed", "filename", header.Filename, "error", err)
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}
