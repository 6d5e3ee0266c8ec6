package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/pipeline"
	"zepdf/internal/server"
	"zepdf/internal/testsupport"
)

type stubConverter struct {
	lastPlan   formats.Plan
	lastOpts   pipeline.Options
	lastRange  string
	lastInputs int
	result     func(dest *artifacts.Scope) (*pipeline.Result, error)
}

func (s *stubConverter) Execute(ctx context.Context, plan formats.Plan, input *artifacts.Artifact, opts pipeline.Options, dest *artifacts.Scope) (*pipeline.Result, error) {
	s.lastPlan = plan
	s.lastOpts = opts
	return s.result(dest)
}

func (s *stubConverter) SplitPDF(ctx context.Context, input *artifacts.Artifact, pageRange string, dest *artifacts.Scope) (*pipeline.Result, error) {
	s.lastRange = pageRange
	return s.result(dest)
}

func (s *stubConverter) MergePDFs(ctx context.Context, inputs []*artifacts.Artifact, dest *artifacts.Scope) (*pipeline.Result, error) {
	s.lastInputs = len(inputs)
	return s.result(dest)
}

func newTestServer(t *testing.T, converter server.Converter) http.Handler {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	resolver := formats.NewResolver(formats.EngineSoffice)
	return server.New(cfg, nil, resolver, converter).Handler()
}

func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestConvertStreamsTerminalArtifact(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 fake")
	converter := &stubConverter{
		result: func(dest *artifacts.Scope) (*pipeline.Result, error) {
			artifact, err := dest.Put(bytes.NewReader(pdfBytes), "converted.pdf", formats.PDF)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{Artifact: artifact, Stages: 1, Pages: 3}, nil
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "report.docx", []byte("document bytes"), map[string]string{
		"output_format": "pdf",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "converted.pdf") {
		t.Errorf("content disposition = %q", got)
	}
	if got := rec.Header().Get("X-Page-Count"); got != "3" {
		t.Errorf("page count header = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfBytes) {
		t.Error("response body does not match terminal artifact")
	}
	if converter.lastPlan.Input != formats.DOCX || converter.lastPlan.Output != formats.PDF {
		t.Errorf("plan = %s to %s", converter.lastPlan.Input, converter.lastPlan.Output)
	}
}

func TestConvertZippedPagesResponse(t *testing.T) {
	zipBytes := []byte("PK fake archive")
	converter := &stubConverter{
		result: func(dest *artifacts.Scope) (*pipeline.Result, error) {
			artifact, err := dest.Put(bytes.NewReader(zipBytes), "pages.zip", formats.PNG)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{Artifact: artifact, Stages: 2, Zipped: true, PageFiles: 4}, nil
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "slides.pptx", []byte("deck"), map[string]string{
		"output_format": "png",
		"image_dpi":     "200",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "converted-pages.zip") {
		t.Errorf("content disposition = %q", got)
	}
	if got := rec.Header().Get("X-Page-Count"); got != "4" {
		t.Errorf("page count header = %q", got)
	}
	if converter.lastOpts.ImageDPI != 200 {
		t.Errorf("ImageDPI = %d", converter.lastOpts.ImageDPI)
	}
}

func TestConvertUnsupportedPair(t *testing.T) {
	converter := &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run for unsupported pairs")
			return nil, nil
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "report.pdf", []byte("pdf"), map[string]string{
		"output_format": "mobi",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload["error"] != "unsupported_conversion" {
		t.Errorf("error kind = %v", payload["error"])
	}
}

func TestConvertRejectsMissingFile(t *testing.T) {
	handler := newTestServer(t, &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run without an upload")
			return nil, nil
		},
	})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("output_format", "pdf"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestConvertRejectsBadDPI(t *testing.T) {
	handler := newTestServer(t, &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run with invalid options")
			return nil, nil
		},
	})

	body, contentType := multipartUpload(t, "report.pdf", []byte("pdf"), map[string]string{
		"output_format": "png",
		"image_dpi":     "9000",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestConvertReportsStageFailure(t *testing.T) {
	converter := &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			return nil, &pipeline.StageError{
				Stage:      0,
				Engine:     formats.EngineSoffice,
				ExitCode:   77,
				Diagnostic: "Error: source file could not be loaded",
			}
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "broken.odt", []byte("odt"), map[string]string{
		"output_format": "pdf",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Error string `json:"error"`
		Stage *struct {
			Engine     string `json:"engine"`
			ExitCode   int    `json:"exit_code"`
			Diagnostic string `json:"diagnostic"`
		} `json:"stage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error != "engine_failure" {
		t.Errorf("error kind = %q", payload.Error)
	}
	if payload.Stage == nil {
		t.Fatal("expected stage detail in error payload")
	}
	if payload.Stage.ExitCode != 77 || payload.Stage.Engine != "soffice" {
		t.Errorf("stage detail = %+v", payload.Stage)
	}
	if !strings.Contains(payload.Stage.Diagnostic, "could not be loaded") {
		t.Errorf("diagnostic = %q", payload.Stage.Diagnostic)
	}
}

func TestConvertTimeoutMapsToGatewayTimeout(t *testing.T) {
	converter := &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			return nil, &pipeline.StageError{Stage: 0, Engine: formats.EngineSoffice, ExitCode: -1, TimedOut: true}
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "slow.docx", []byte("doc"), map[string]string{
		"output_format": "pdf",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSplitStreamsExtractedPDF(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 extracted")
	converter := &stubConverter{
		result: func(dest *artifacts.Scope) (*pipeline.Result, error) {
			artifact, err := dest.Put(bytes.NewReader(pdfBytes), "split.pdf", formats.PDF)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{Artifact: artifact, Stages: 2, Pages: 3}, nil
		},
	}
	handler := newTestServer(t, converter)

	body, contentType := multipartUpload(t, "book.pdf", []byte("%PDF input"), map[string]string{
		"pages": "1-3",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/split", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if converter.lastRange != "1-3" {
		t.Errorf("page range = %q", converter.lastRange)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "split.pdf") {
		t.Errorf("content disposition = %q", got)
	}
	if got := rec.Header().Get("X-Page-Count"); got != "3" {
		t.Errorf("page count header = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfBytes) {
		t.Error("response body does not match extracted artifact")
	}
}

func TestSplitRequiresPagesField(t *testing.T) {
	handler := newTestServer(t, &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run without a page selection")
			return nil, nil
		},
	})

	body, contentType := multipartUpload(t, "book.pdf", []byte("%PDF input"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/split", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSplitRejectsNonPDFUpload(t *testing.T) {
	handler := newTestServer(t, &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run for a non-PDF upload")
			return nil, nil
		},
	})

	body, contentType := multipartUpload(t, "report.docx", []byte("doc"), map[string]string{
		"pages": "1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/split", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMergeStreamsCombinedPDF(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 combined")
	converter := &stubConverter{
		result: func(dest *artifacts.Scope) (*pipeline.Result, error) {
			artifact, err := dest.Put(bytes.NewReader(pdfBytes), "merged.pdf", formats.PDF)
			if err != nil {
				return nil, err
			}
			return &pipeline.Result{Artifact: artifact, Stages: 1, Pages: 5}, nil
		},
	}
	handler := newTestServer(t, converter)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("%PDF " + name)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if converter.lastInputs != 2 {
		t.Errorf("inputs passed to merge = %d", converter.lastInputs)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "merged.pdf") {
		t.Errorf("content disposition = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfBytes) {
		t.Error("response body does not match merged artifact")
	}
}

func TestMergeRequiresTwoFiles(t *testing.T) {
	handler := newTestServer(t, &stubConverter{
		result: func(*artifacts.Scope) (*pipeline.Result, error) {
			t.Fatal("converter should not run with a single file")
			return nil, nil
		},
	})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "only.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF only")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/merge", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFormatsEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubConverter{})

	req := httptest.NewRequest(http.MethodGet, "/api/formats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var pairs []struct {
		Input  string `json:"input"`
		Output string `json:"output"`
		Stages int    `json:"stages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pairs); err != nil {
		t.Fatalf("decode formats payload: %v", err)
	}
	if len(pairs) == 0 {
		t.Fatal("expected at least one supported pair")
	}
	seen := map[string]int{}
	for _, pair := range pairs {
		if pair.Input == pair.Output {
			t.Errorf("identity pair listed: %s", pair.Input)
		}
		if pair.Stages < 1 || pair.Stages > 2 {
			t.Errorf("pair %s to %s has %d stages", pair.Input, pair.Output, pair.Stages)
		}
		seen[pair.Input+">"+pair.Output]++
	}
	if seen["docx>pdf"] != 1 {
		t.Error("docx to pdf missing from supported pairs")
	}
	if seen["pdf>mobi"] != 0 {
		t.Error("pdf to mobi should not be listed")
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubConverter{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Status       string `json:"status"`
		Dependencies []struct {
			Name string `json:"name"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload.Status != "ok" && payload.Status != "degraded" {
		t.Errorf("status = %q", payload.Status)
	}
	if len(payload.Dependencies) != 6 {
		t.Errorf("expected 6 dependency entries, got %d", len(payload.Dependencies))
	}
}
