package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/storage"
)

// multipartOverhead is allowed on top of the file size limit for form boundaries and headers.
const multipartOverhead = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.Records.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	byStatus := make(map[string]int64, len(counts))
	var total int64
	for st, n := range counts {
		byStatus[string(st)] = n
		total += n
	}
	resp := map[string]interface{}{
		"resumes":   total,
		"by_status": byStatus,
	}
	if n, err := s.VectorIndex.Count(ctx); err == nil {
		resp["vectors"] = n
	} else {
		s.logger.Warn("status: count vectors failed", zap.Error(err))
	}

	configInfo := map[string]interface{}{
		"vector_index_type": s.VectorIndex.Type(),
		"top_k":             s.Engine.TopK(),
	}
	if s.config != nil {
		profile, _ := s.config.Chunking.Active()
		configInfo["embedding_provider"] = s.config.Embedding.Provider
		configInfo["chunk_profile"] = s.config.Chunking.Profile
		configInfo["chunk_max_length"] = profile.MaxLength
		configInfo["chunk_overlap"] = profile.Overlap
		if diskBytes, err := storage.DiskUsageBytes(
			s.config.Storage.DatabasePath,
			s.config.Storage.BlobDir,
			s.config.Storage.VectorIndexPath,
		); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.Watch != nil {
		configInfo["watch_directories"] = s.Watch.Directories()
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) maxUpload() int64 {
	if s.config != nil && s.config.Indexing.MaxFileSize > 0 {
		return s.config.Indexing.MaxFileSize
	}
	return 10 << 20
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}
	file, header, err := r.FormFile("resume")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	owner := userID(r)
	s.logger.Debug("upload request", zap.String("owner_id", owner), zap.String("name", header.Filename), zap.Int("bytes", len(data)))
	rec, err := s.Resumes.Upload(r.Context(), owner, header.Filename, data)
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if rec.Status == models.StatusFailed {
		s.respondJSON(w, http.StatusUnprocessableEntity, rec)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	list, err := s.Resumes.List(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("list resumes failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"resumes": list})
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Resumes.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete resume request", zap.String("id", id))
	if err := s.Resumes.Delete(r.Context(), userID(r), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Resumes.Reindex(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if rec.Status == models.StatusFailed {
		s.respondJSON(w, http.StatusUnprocessableEntity, rec)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := s.Analyzer.Summarize(r.Context(), userID(r), id)
	if err != nil {
		s.logger.Error("summarize failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "summary": summary})
}

type analyzeRequest struct {
	JobDescription string `json:"job_description"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	result, err := s.Analyzer.Analyze(r.Context(), userID(r), id, req.JobDescription)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type interviewSummaryRequest struct {
	Transcript     []models.InterviewTurn `json:"transcript"`
	JobDescription string                 `json:"job_description"`
}

func (s *Server) handleInterviewSummary(w http.ResponseWriter, r *http.Request) {
	var req interviewSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.Analyzer.SummarizeInterview(r.Context(), req.Transcript, req.JobDescription)
	if err != nil {
		s.logger.Error("interview summary failed", zap.String("user_id", userID(r)), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// askRequest decodes an ask or search body and scopes it to the caller, resolving an
// optional resume id to its source key. It writes the error response and returns nil on
// failure.
func (s *Server) askRequest(w http.ResponseWriter, r *http.Request) *models.AskRequest {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil
	}
	req.OwnerID = userID(r)
	if req.ResumeID != "" {
		rec, err := s.Resumes.Get(r.Context(), req.OwnerID, req.ResumeID)
		if err != nil {
			s.respondError(w, statusFor(err), err.Error())
			return nil
		}
		req.SourceKey = rec.SourceKey
	}
	return &req
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req := s.askRequest(w, r)
	if req == nil {
		return
	}
	s.logger.Debug("ask request", zap.String("owner_id", req.OwnerID), zap.Int("top_k", req.TopK))
	answer, err := s.Engine.Ask(r.Context(), req)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := s.askRequest(w, r)
	if req == nil {
		return
	}
	result, err := s.Engine.Search(r.Context(), req)
	if err != nil {
		s.logger.Error("search failed", zap.String("owner_id", req.OwnerID), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrIndexingInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
