package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/pkg/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutTemplate = "layout"
	indexTemplate  = "index.html"

	pageTitle    = "Plant Disease Detection"
	pageSubtitle = "Upload a photo of your plant leaves — instant diagnosis & treatment tips"
	aboutText    = "This app detects leaf diseases and gives cause & cure suggestions. Healthy leaves will show “No treatment required.”"
)

// ViewData contains the data passed to page templates during rendering.
type ViewData struct {
	Title    string
	Subtitle string
	About    string
	Accept   string
	Options  diagnosis.Options

	// Report is set once an image has been diagnosed.
	Report   *diagnosis.Report
	ImageURI string
	Headline string
	Detail   string

	// Error is shown instead of a report when the upload failed.
	Error string
}

// TemplateSet holds pre-parsed templates. Templates are parsed once at
// startup.
type TemplateSet struct {
	views map[string]*template.Template
}

// NewTemplateSet parses the layout and clones it for each view.
func NewTemplateSet(views ...string) (*TemplateSet, error) {
	layouts, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse layout")
	}

	parsed := make(map[string]*template.Template, len(views))
	for _, v := range views {
		t, err := layouts.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "clone layouts for %s", v)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+v); err != nil {
			return nil, errors.Wrapf(err, "parse template %s", v)
		}
		parsed[v] = t
	}
	return &TemplateSet{views: parsed}, nil
}

// Render executes the layout for the given view. Nothing is written to w if
// execution fails.
func (ts *TemplateSet) Render(w http.ResponseWriter, status int, view string, data ViewData) error {
	t, ok := ts.views[view]
	if !ok {
		return errors.Errorf("template not found: %s", view)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		return errors.Wrapf(err, "render %s", view)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
