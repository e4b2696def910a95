package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	"github.com/Sternrassler/ashby-resumes/pkg/progress"
	"github.com/Sternrassler/ashby-resumes/pkg/recruiting"
	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "redis": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.config.Version})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.ListJobs(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Listing jobs failed")
		writeError(w, http.StatusBadRequest, recruiting.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.svc.ListStages(r.Context(), r.PathValue("jobID"))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Listing stages failed")
		writeError(w, http.StatusBadRequest, recruiting.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, stages)
}

// handleCandidates streams the candidate listing as server-sent events.
// The listing runs to completion even if the subscriber disconnects.
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	stageID := r.URL.Query().Get("stageId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, recruiting.Message(recruiting.ErrMissingJobID))
		return
	}

	sse := progress.NewSSEWriter(w)
	if _, err := s.svc.ListCandidates(context.WithoutCancel(r.Context()), jobID, stageID, sse); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("job_id", jobID).Msg("Candidate listing failed")
	}
}

func (s *Server) handleDownloadResume(w http.ResponseWriter, r *http.Request) {
	file, err := s.svc.DownloadFile(r.Context(), r.PathValue("handle"))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Resume download failed")
		writeError(w, http.StatusBadRequest, recruiting.Message(err))
		return
	}
	writeAttachment(w, file.ContentType, file.Name, file.Data)
}

type bulkRequest struct {
	FileHandles    []string `json:"fileHandles"`
	CandidateNames []string `json:"candidateNames"`
}

func (s *Server) handleDownloadBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var buf bytes.Buffer
	result, err := s.svc.BulkDownload(r.Context(), &buf, req.FileHandles, req.CandidateNames)
	if err != nil {
		if recruiting.IsInputError(err) {
			writeError(w, http.StatusBadRequest, recruiting.Message(err))
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Bulk download failed")
		writeError(w, http.StatusInternalServerError, "Error creating archive")
		return
	}

	zerolog.Ctx(r.Context()).Debug().
		Int("entries", len(result.Entries)).
		Int("skipped", result.Skipped).
		Msg("Bulk archive ready")
	writeAttachment(w, "application/zip", "candidate_resumes.zip", buf.Bytes())
}

func (s *Server) handleCombinePDFs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No ZIP file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	batchSize := pdfbatch.DefaultBatchSize
	if raw := r.FormValue("pdfsPerFile"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "PDFs per file must be a whole number")
			return
		}
		batchSize = n
	}
	if batchSize < 1 {
		writeError(w, http.StatusBadRequest, mustMessage(pdfbatch.ErrInvalidBatchSize))
		return
	}

	upload, _, err := r.FormFile("zipfile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No ZIP file provided")
		return
	}
	defer upload.Close()

	data, err := io.ReadAll(upload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read upload")
		return
	}

	out, _, err := s.assembler.CombineArchive(data, batchSize)
	if err != nil {
		if msg, ok := pdfbatch.Message(err); ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("PDF combination failed")
		writeError(w, http.StatusInternalServerError, "Error processing files: "+err.Error())
		return
	}
	writeAttachment(w, "application/zip", "combined_pdfs.zip", out)
}

func mustMessage(err error) string {
	msg, _ := pdfbatch.Message(err)
	return msg
}
