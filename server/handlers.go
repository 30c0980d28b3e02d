package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/images"
	"github.com/pkg/errors"
)

// imageField is the multipart field carrying the upload.
const imageField = "image"

var (
	errMissingImage = errors.New("no image uploaded")
	errBadParameter = errors.New("invalid parameter")
)

// apiReport is the JSON shape of a diagnosis.
type apiReport struct {
	*diagnosis.Report
	RequestID string `json:"request_id"`
	// ImageURI is the annotated (or original) image as a PNG data URI.
	ImageURI string `json:"image,omitempty"`
}

type apiError struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ClassesResponse lists the class names each side knows about.
type ClassesResponse struct {
	Knowledge []string `json:"knowledge"`
	Detector  []string `json:"detector"`
	// Unknown are detector classes with no knowledge entry.
	Unknown []string `json:"unknown"`
}

func (s *Server) page() ViewData {
	return ViewData{
		Title:    pageTitle,
		Subtitle: pageSubtitle,
		About:    aboutText,
		Accept:   acceptAttr(),
		Options:  s.defaults,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Render(w, http.StatusOK, indexTemplate, s.page()); err != nil {
		s.logger.Error("render failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) handleDiagnosePage(w http.ResponseWriter, r *http.Request) {
	data := s.page()

	report, opts, err := s.diagnose(w, r)
	data.Options = opts
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		data.Error = userMessage(err, status)
		s.logRequestError(r, status, err)
	} else {
		data.Report = report
		data.Headline, data.Detail = report.Message()
		if data.ImageURI, err = images.DataURI(report.Image); err != nil {
			s.logger.Error("encode image failed", "error", err, "request_id", RequestID(r.Context()))
		}
	}

	if err := s.templates.Render(w, status, indexTemplate, data); err != nil {
		s.logger.Error("render failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) handleDiagnoseAPI(w http.ResponseWriter, r *http.Request) {
	report, _, err := s.diagnose(w, r)
	if err != nil {
		status := statusFor(err)
		s.logRequestError(r, status, err)
		s.writeJSON(w, status, apiError{Error: userMessage(err, status), RequestID: RequestID(r.Context())})
		return
	}

	out := apiReport{Report: report, RequestID: RequestID(r.Context())}
	if r.URL.Query().Get("image") != "false" {
		uri, err := images.DataURI(report.Image)
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, apiError{Error: "could not encode image", RequestID: out.RequestID})
			return
		}
		out.ImageURI = uri
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	resp := ClassesResponse{
		Knowledge: s.knowledge.Names(),
		Detector:  s.service.Classes().Sorted(),
		Unknown:   []string{},
	}
	if resp.Knowledge == nil {
		resp.Knowledge = []string{}
	}
	for _, name := range resp.Detector {
		if _, ok := s.knowledge.Lookup(name); !ok {
			resp.Unknown = append(resp.Unknown, name)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Profiler().GetCurrentStats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// diagnose reads the upload and options from a multipart request and runs
// the diagnosis. The returned options reflect what the user asked for, so a
// re-rendered form keeps their choices.
func (s *Server) diagnose(w http.ResponseWriter, r *http.Request) (*diagnosis.Report, diagnosis.Options, error) {
	opts := s.defaults

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
			return nil, opts, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes()}
		}
		return nil, opts, errors.Wrapf(errBadParameter, "parse upload: %v", err)
	}

	if v := strings.TrimSpace(r.FormValue("confidence")); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, opts, errors.Wrapf(errBadParameter, "confidence %q", v)
		}
		opts.Threshold = float32(f)
	}
	if !diagnosis.ValidThreshold(opts.Threshold) {
		return nil, opts, errors.Wrapf(diagnosis.ErrInvalidThreshold, "got %v", opts.Threshold)
	}
	// The form sends a hidden "false" ahead of the checkbox; the last value wins.
	if values := r.MultipartForm.Value["boxes"]; len(values) > 0 {
		b, err := strconv.ParseBool(values[len(values)-1])
		if err != nil {
			return nil, opts, errors.Wrapf(errBadParameter, "boxes %q", values[len(values)-1])
		}
		opts.DrawBoxes = b
	}

	file, _, err := r.FormFile(imageField)
	if err != nil {
		return nil, opts, errMissingImage
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, opts, errors.Wrap(err, "read upload")
	}
	if len(data) == 0 {
		return nil, opts, errMissingImage
	}

	report, err := s.service.Diagnose(r.Context(), data, opts)
	return report, opts, err
}

// statusFor maps a diagnosis error to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var decodeErr *diagnosis.DecodeError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errMissingImage),
		errors.Is(err, errBadParameter),
		errors.Is(err, diagnosis.ErrInvalidThreshold):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage hides internal detail for server errors.
func userMessage(err error, status int) string {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return "The uploaded file is too large."
	case http.StatusUnprocessableEntity:
		if errors.Is(err, images.ErrTooLarge) {
			return "The image dimensions are too large to analyze."
		}
		return "The upload is not a readable JPEG, PNG or WebP image."
	case http.StatusInternalServerError:
		return "The image could not be analyzed. Please try again."
	default:
		return err.Error()
	}
}

func (s *Server) logRequestError(r *http.Request, status int, err error) {
	level := s.logger.Warn
	if status >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("diagnosis failed", "status", status, "error", err, "request_id", RequestID(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}
