package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/service"
)

// MediaService is the part of service.MediaService the handler needs.
type MediaService interface {
	Resolve(ctx context.Context, sourceID, profile string) (*service.Resolution, error)
	Redeem(ctx context.Context, token string) (*domain.LocalMediaFile, error)
	Open(name string) (*os.File, os.FileInfo, error)
	Discard(ctx context.Context, name string) error
}

// MediaHandler handles resolve, redeem and file delivery.
type MediaHandler struct {
	svc    MediaService
	logger *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(svc MediaService, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{svc: svc, logger: logger}
}

// ResolveRequest is the JSON body of POST /api/v1/resolve.
type ResolveRequest struct {
	SourceID string `json:"source_id"`
	Profile  string `json:"profile,omitempty"`
}

// RedeemRequest is the JSON body of POST /api/v1/redeem.
type RedeemRequest struct {
	Token string `json:"token"`
}

// RedeemResponse describes the delivered file.
type RedeemResponse struct {
	*domain.LocalMediaFile
	DownloadURL string `json:"download_url"`
}

// Resolve handles POST /api/v1/resolve
func (h *MediaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalid, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SourceID) == "" {
		writeError(w, http.StatusBadRequest, kindInvalid, "source_id is required")
		return
	}

	res, err := h.svc.Resolve(r.Context(), req.SourceID, req.Profile)
	if err != nil {
		h.logFailure(r, "resolve failed", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Redeem handles POST /api/v1/redeem. It blocks until the file is ready.
func (h *MediaHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalid, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, kindInvalid, "token is required")
		return
	}

	file, err := h.svc.Redeem(r.Context(), req.Token)
	if err != nil {
		h.logFailure(r, "redeem failed", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RedeemResponse{
		LocalMediaFile: file,
		DownloadURL:    "/api/v1/files/" + url.PathEscape(file.Name),
	})
}

// ServeFile handles GET /api/v1/files/{name}
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, info, err := h.svc.Open(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	if ct := contentTypeFor(info.Name()); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(info.Name(), `"`, "")+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// DeleteFile handles DELETE /api/v1/files/{name}
func (h *MediaHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Discard(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// contentTypeFor covers the containers acquisitions produce; the platform
// MIME table is not guaranteed to know them.
func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return ""
	}
}

func (h *MediaHandler) logFailure(r *http.Request, msg string, err error) {
	status, kind := classify(err)
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, "status", status, "kind", kind, "error", err)
}
