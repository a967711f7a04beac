package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/tabula/ai/provider"
	"github.com/teranos/tabula/errors"
	"github.com/teranos/tabula/pipeline"
	"github.com/teranos/tabula/processing"
	"github.com/teranos/tabula/table"
	"github.com/teranos/tabula/version"
)

const (
	// formOverhead is allowed on top of the upload limit for the other
	// multipart fields.
	formOverhead = 1 << 20

	multipartMemory = 32 << 20

	defaultRunsLimit = 20
	defaultUsageSpan = 24 * time.Hour
)

type upload struct {
	name string
	data []byte
}

// readUpload reads the multipart "file" field, enforcing the size limit
// and the .csv extension.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.Wrapf(ErrFileTooLarge, "limit is %d MB", s.cfg.Server.MaxUploadMB)
		}
		return nil, errors.Wrap(errors.Mark(err, ErrInvalidRequest), "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, "no file provided")
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return nil, errors.Wrapf(ErrUnsupportedFile, "%q", header.Filename)
	}
	if limit > 0 && header.Size > limit {
		return nil, errors.Wrapf(ErrFileTooLarge, "limit is %d MB", s.cfg.Server.MaxUploadMB)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	return &upload{name: header.Filename, data: data}, nil
}

// handleProcess runs the pipeline on an uploaded CSV. A run that fails
// inside the pipeline still answers 200 with success false; only request
// problems are HTTP errors.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, "", err)
		return
	}

	raw := r.FormValue("config_json")
	if strings.TrimSpace(raw) == "" {
		s.respondError(w, r, "", ErrMissingConfig)
		return
	}
	spec, err := processing.Decode([]byte(raw), processing.FormatJSON)
	if err != nil {
		s.respondError(w, r, "Config validation failed", err)
		return
	}

	text, _, err := table.Decode(up.data)
	if err != nil {
		s.respondError(w, r, "", err)
		return
	}

	result := s.pipeline.Run(r.Context(), pipeline.Source{Name: up.name, Text: text}, *spec)
	_ = writeJSON(w, http.StatusOK, result)
}

// handlePreview samples the first n rows of an uploaded CSV.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.Limits.PreviewRows
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			s.respondError(w, r, "", errors.Wrapf(ErrInvalidRequest, "n must be a non-negative integer, got %q", q))
			return
		}
		n = v
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, "", err)
		return
	}

	preview, err := pipeline.Preview(up.data, n)
	if err != nil {
		s.respondError(w, r, "Failed to load file", err)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Preview ready",
		"data":    preview,
	})
}

// handleDownload streams an artifact as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, ref, err := s.artifacts.Open(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, "", classify(err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ref.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+ref.DownloadName()+`"`)
	http.ServeContent(w, r, ref.DownloadName(), ref.CreatedAt, f)
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.artifacts.Remove(id); err != nil {
		s.respondError(w, r, "", classify(err))
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Artifact removed", "id": id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.respondError(w, r, "", errors.Wrap(ErrUnavailable, "run ledger is disabled"))
		return
	}
	limit := defaultRunsLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			s.respondError(w, r, "", errors.Wrapf(ErrInvalidRequest, "limit must be a positive integer, got %q", q))
			return
		}
		limit = v
	}

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []pipeline.RunRecord{}
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.respondError(w, r, "", errors.Wrap(ErrUnavailable, "run ledger is disabled"))
		return
	}
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, "", classify(err))
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "run": run})
}

// handleUsage reports generation-call statistics over ?since= (default 24h).
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.calls == nil {
		s.respondError(w, r, "", errors.Wrap(ErrUnavailable, "call ledger is disabled"))
		return
	}
	span := defaultUsageSpan
	if q := r.URL.Query().Get("since"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 {
			s.respondError(w, r, "", errors.Wrapf(ErrInvalidRequest, "since must be a positive duration, got %q", q))
			return
		}
		span = d
	}
	since := time.Now().Add(-span)

	stats, err := s.calls.StatsSince(r.Context(), since)
	if err != nil {
		s.respondError(w, r, "Failed to read usage", err)
		return
	}
	models, err := s.calls.Breakdown(r.Context(), since)
	if err != nil {
		s.respondError(w, r, "Failed to read usage", err)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"since":   span.String(),
		"stats":   stats,
		"models":  models,
	})
}

// handleValidateConfig checks a spec without running it.
func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, formOverhead))
	if err != nil {
		s.respondError(w, r, "", errors.Wrap(errors.Mark(err, ErrInvalidRequest), "failed to read body"))
		return
	}
	spec, err := processing.Decode(body, processing.FormatJSON)
	if err != nil {
		s.respondError(w, r, "Config validation failed", err)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Config is valid",
		"config":  spec.Redacted(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{"providers": provider.Catalog()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        version.Get().Version,
		"progress_peers": s.hub.ClientCount(),
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "tabula: LLM processing for tabular data",
		"version": version.Get().Version,
		"api":     apiPrefix,
		"status":  "running",
	})
}
