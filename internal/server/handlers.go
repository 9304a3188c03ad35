package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vilakkam/vilakkam/internal/explain"
	"github.com/vilakkam/vilakkam/internal/observe"
	"github.com/vilakkam/vilakkam/internal/pipeline"
)

// Transport-level messages. Pipeline failures carry their own.
const (
	msgBadJSON       = "Invalid request body."
	msgMissingText   = "Field 'text' is required."
	msgBadLanguage   = "language_preference must be one of: tamil, tanglish, english, all."
	msgNotMultipart  = "Expected a multipart/form-data upload."
	msgMissingAudio  = "Field 'audio' is required."
	msgMissingFile   = "Field 'file' is required."
	msgUploadTooBig  = "Upload romba perusa irukku. Chinna file anuppunga."
	msgInternalError = "Something went wrong. Konjam neram kalichu try pannunga."
)

type explainMessageRequest struct {
	Text               *string `json:"text"`
	LanguagePreference string  `json:"language_preference"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) handleExplainMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)

	var req explainMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooBig)
			return
		}
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, msgMissingText)
		return
	}
	lang, err := explain.ParseLanguage(req.LanguagePreference)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgBadLanguage)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	exp, err := s.explainer.ExplainText(ctx, observe.ClientIP(r), *req.Text, lang)
	s.respond(w, r, exp, err)
}

func (s *Server) handleVoiceInput(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	data, header, err := readFormFile(form, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, msgMissingAudio)
		return
	}

	in := pipeline.AudioInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Language:    formLanguage(form),
		Context:     formValue(form, "context_text"),
		History:     formValue(form, "history"),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	exp, err := s.explainer.ExplainAudio(ctx, observe.ClientIP(r), in)
	s.respond(w, r, exp, err)
}

func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseMultipart(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	data, header, err := readFormFile(form, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, msgMissingFile)
		return
	}

	in := pipeline.FileInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Language:    formLanguage(form),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	exp, err := s.explainer.ExplainFile(ctx, observe.ClientIP(r), in)
	s.respond(w, r, exp, err)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

// parseMultipart reads the form under the upload cap. On failure it writes
// the error response and returns false.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, msgNotMultipart)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, msgNotMultipart)
		return nil, false
	}
	form, err := mr.ReadForm(s.maxUpload)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooBig)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, msgNotMultipart)
		return nil, false
	}
	return form, true
}

func readFormFile(form *multipart.Form, field string) ([]byte, *multipart.FileHeader, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("server: missing form file %q", field)
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("server: open form file %q: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("server: read form file %q: %w", field, err)
	}
	return data, fh, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// formLanguage falls back to the default language for unknown values, as
// browser forms cannot be corrected by the user.
func formLanguage(form *multipart.Form) explain.Language {
	lang, err := explain.ParseLanguage(formValue(form, "language_preference"))
	if err != nil {
		return explain.DefaultLanguage
	}
	return lang
}

// respond writes the explanation or maps err to a status and message.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, exp explain.Explanation, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, exp)
		return
	}
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		writeError(w, statusFor(pe.Kind), pe.Message)
		return
	}
	observe.Logger(r.Context()).ErrorContext(r.Context(), "server: unclassified error", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, msgInternalError)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Detail: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}
