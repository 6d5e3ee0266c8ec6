package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/services"
)

// parseMultipart bounds and parses the request body, returning an invalid
// input error the caller can hand straight to writeError.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.Wrap(services.ErrInvalidInput, "", "upload",
				fmt.Sprintf("upload exceeds %d MiB limit", s.cfg.Limits.MaxUploadMiB), nil)
		}
		return services.Wrap(services.ErrInvalidInput, "", "upload", "malformed multipart request", err)
	}
	return nil
}

func requirePDF(header *multipart.FileHeader) error {
	format, err := formats.Parse(filepath.Ext(header.Filename))
	if err != nil {
		return err
	}
	if format != formats.PDF {
		return services.Wrap(services.ErrInvalidInput, "", "upload",
			fmt.Sprintf("%s is not a PDF", header.Filename), nil)
	}
	return nil
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	logger := logging.WithContext(ctx, s.logger)

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, logger, err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, logger, services.Wrap(services.ErrInvalidInput, "", "upload", "missing file field", err))
		return
	}
	defer file.Close()
	if err := requirePDF(header); err != nil {
		s.writeError(w, logger, err)
		return
	}

	pageRange := strings.TrimSpace(r.FormValue("pages"))
	if pageRange == "" {
		s.writeError(w, logger, services.Wrap(services.ErrInvalidInput, "", "split",
			"pages field is required (e.g. 1-3,5)", nil))
		return
	}

	scope, err := artifacts.NewScope(s.cfg.Paths.WorkDir)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}
	defer scope.Close()

	input, err := scope.Put(file, header.Filename, formats.PDF)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	result, err := s.converter.SplitPDF(ctx, input, pageRange, scope)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("split canceled by client")
			return
		}
		s.writeError(w, logger, err)
		return
	}
	s.streamResult(w, logger, "split", formats.PDF, result)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	logger := logging.WithContext(ctx, s.logger)

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, logger, err)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) < 2 {
		s.writeError(w, logger, services.Wrap(services.ErrInvalidInput, "", "merge",
			"at least two files parts are required", nil))
		return
	}

	scope, err := artifacts.NewScope(s.cfg.Paths.WorkDir)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}
	defer scope.Close()

	inputs := make([]*artifacts.Artifact, 0, len(headers))
	for _, header := range headers {
		if err := requirePDF(header); err != nil {
			s.writeError(w, logger, err)
			return
		}
		file, err := header.Open()
		if err != nil {
			s.writeError(w, logger, services.Wrap(services.ErrInvalidInput, "", "upload", header.Filename, err))
			return
		}
		input, err := scope.Put(file, header.Filename, formats.PDF)
		file.Close()
		if err != nil {
			s.writeError(w, logger, err)
			return
		}
		inputs = append(inputs, input)
	}

	result, err := s.converter.MergePDFs(ctx, inputs, scope)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("merge canceled by client")
			return
		}
		s.writeError(w, logger, err)
		return
	}
	s.streamResult(w, logger, "merged", formats.PDF, result)
}
