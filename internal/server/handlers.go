package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"zepdf/internal/artifacts"
	"zepdf/internal/deps"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/pipeline"
	"zepdf/internal/services"
)

const multipartMemoryLimit = 32 << 20

type healthPayload struct {
	Status       string             `json:"status"`
	Dependencies []dependencyStatus `json:"dependencies"`
}

type dependencyStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Optional  bool   `json:"optional"`
	Detail    string `json:"detail,omitempty"`
}

type conversionPair struct {
	Input      string `json:"input"`
	InputName  string `json:"input_name"`
	Output     string `json:"output"`
	OutputName string `json:"output_name"`
	Stages     int    `json:"stages"`
	MediaType  string `json:"output_media_type"`
}

type errorPayload struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Stage   *stageFailure `json:"stage,omitempty"`
}

type stageFailure struct {
	Index      int    `json:"index"`
	Engine     string `json:"engine"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := deps.CheckBinaries(deps.FromConfig(s.cfg))
	payload := healthPayload{Status: "ok"}
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			payload.Status = "degraded"
		}
		payload.Dependencies = append(payload.Dependencies, dependencyStatus{
			Name:      st.Name,
			Available: st.Available,
			Optional:  st.Optional,
			Detail:    st.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	pairs := s.resolver.Supported()
	payload := make([]conversionPair, 0, len(pairs))
	for _, pair := range pairs {
		plan, err := s.resolver.Resolve(pair[0], pair[1])
		if err != nil {
			continue
		}
		payload = append(payload, conversionPair{
			Input:      string(pair[0]),
			InputName:  pair[0].DisplayName(),
			Output:     string(pair[1]),
			OutputName: pair[1].DisplayName(),
			Stages:     len(plan.Stages),
			MediaType:  pair[1].MediaType(),
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
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

	inputFormat, err := formats.Parse(filepath.Ext(header.Filename))
	if err != nil {
		s.writeError(w, logger, err)
		return
	}
	outputFormat, err := formats.Parse(r.FormValue("output_format"))
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	opts := pipeline.Options{}
	if raw := strings.TrimSpace(r.FormValue("image_dpi")); raw != "" {
		dpi, err := strconv.Atoi(raw)
		if err != nil || dpi < 36 || dpi > 1200 {
			s.writeError(w, logger, services.Wrap(services.ErrInvalidInput, "", "options",
				fmt.Sprintf("image_dpi %q out of range", raw), nil))
			return
		}
		opts.ImageDPI = dpi
	}

	plan, err := s.resolver.Resolve(inputFormat, outputFormat)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	scope, err := artifacts.NewScope(s.cfg.Paths.WorkDir)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}
	defer scope.Close()

	input, err := scope.Put(file, header.Filename, inputFormat)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	logger.Info("conversion requested",
		logging.String("input_format", string(inputFormat)),
		logging.String("output_format", string(outputFormat)),
		logging.Int64("input_bytes", input.Size),
		logging.Int("plan_stages", len(plan.Stages)),
	)

	result, err := s.converter.Execute(ctx, plan, input, opts, scope)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("conversion canceled by client")
			return
		}
		s.writeError(w, logger, err)
		return
	}

	s.streamResult(w, logger, "converted", outputFormat, result)
}

func (s *Server) streamResult(w http.ResponseWriter, logger *slog.Logger, stem string, outputFormat formats.Format, result *pipeline.Result) {
	name := stem + "." + outputFormat.Ext()
	contentType := outputFormat.MediaType()
	if result.Zipped {
		name = stem + "-pages.zip"
		contentType = "application/zip"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.FormatInt(result.Artifact.Size, 10))
	if pages := max(result.Pages, result.PageFiles); pages > 0 {
		w.Header().Set("X-Page-Count", strconv.Itoa(pages))
	}

	reader, err := result.Artifact.Open()
	if err != nil {
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		logger.Warn("response streaming interrupted", logging.Error(err))
		return
	}
	logger.Info("conversion served",
		logging.String("artifact", name),
		logging.Int64("bytes", result.Artifact.Size),
		logging.Duration("elapsed", result.Duration),
	)
}

func (s *Server) writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	payload := errorPayload{
		Error:   services.Kind(err),
		Message: services.Details(err).Message,
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		payload.Stage = &stageFailure{
			Index:      stageErr.Stage,
			Engine:     string(stageErr.Engine),
			ExitCode:   stageErr.ExitCode,
			TimedOut:   stageErr.TimedOut,
			Diagnostic: stageErr.Diagnostic,
		}
	}
	status := services.HTTPStatus(err)
	logger.Warn("conversion failed",
		logging.String("error_kind", payload.Error),
		logging.Int("status", status),
		logging.Error(err),
	)
	s.writeJSON(w, status, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}
