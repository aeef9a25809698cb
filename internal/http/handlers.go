package http

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"gagyebu/internal/export"
	"gagyebu/internal/services"
)

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	upload, err := ReadUpload(w, r, s.opts.MaxUploadBytes)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	result, err := s.imports.Preview(r.Context(), upload.Data, upload.Filename)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(result).Write(w)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	upload, err := ReadUpload(w, r, s.opts.MaxUploadBytes)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	mapping, err := ParseMapping(r.FormValue("mapping"))
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	result, err := s.imports.Commit(r.Context(), services.CommitRequest{
		Data:        upload.Data,
		Filename:    upload.Filename,
		Mapping:     mapping,
		UserID:      UserID(r, s.opts.DefaultUserID),
		AccountName: sanitizeInput(r.FormValue("accountName")),
	})
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(result).Write(w)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	files, err := s.imports.ListImports(r.Context(), UserID(r, s.opts.DefaultUserID))
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(files).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	doc, err := s.imports.ExportImport(r.Context(), UserID(r, s.opts.DefaultUserID), r.PathValue("id"), format)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			ErrorResponse(http.StatusServiceUnavailable, "database unavailable").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
