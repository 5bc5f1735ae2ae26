// Package landing renders the marketing page and the reporting modal on top
// of it.
package landing

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/flow"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the stylesheet and images served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Page is the per-visitor page chrome: whether the reporting modal and the
// mobile navigation menu are open.
type Page struct {
	ReportOpen bool
	MenuOpen   bool
}

func (p *Page) ToggleReport() { p.ReportOpen = !p.ReportOpen }
func (p *Page) ToggleMenu()   { p.MenuOpen = !p.MenuOpen }

type Feature struct {
	Title       string
	Description string
}

var (
	features = []Feature{
		{"AI-Powered Detection", "Advanced algorithms validate and process violation reports accurately"},
		{"Secure Login", "Phone-based one-time codes ensure reliable user verification"},
		{"Credit Rewards", "Earn rewards for contributing to road safety"},
		{"ML Validation", "Machine learning ensures report accuracy and authenticity"},
	}
	steps = []Feature{
		{"Capture", "Record traffic violation footage"},
		{"Submit", "Report via CiviLens platform"},
		{"Process", "AI validates the report"},
		{"Reward", "Earn credits for valid reports"},
	}
	sections = []string{"home", "about", "features", "how-it-works", "contact"}
)

// Data is everything the page template needs.
type Data struct {
	Page       Page
	Flow       flow.View
	Alert      string
	Violations []civilens.ViolationType
	Features   []Feature
	Steps      []Feature
	Sections   []string
	Year       int
}

func NewData(p Page, v flow.View, alert string) Data {
	return Data{
		Page:       p,
		Flow:       v,
		Alert:      alert,
		Violations: []civilens.ViolationType{civilens.ViolationNoHelmet, civilens.ViolationNoParking},
		Features:   features,
		Steps:      steps,
		Sections:   sections,
		Year:       time.Now().Year(),
	}
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"credits":  func(n int) string { return humanize.Comma(int64(n)) },
		"title":    sectionTitle,
		"imageURL": imageURL,
		"inc":      func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Render(w io.Writer, d Data) error {
	return r.tmpl.ExecuteTemplate(w, "index.html", d)
}

func sectionTitle(id string) string {
	switch id {
	case "home":
		return "Home"
	case "about":
		return "About"
	case "features":
		return "Features"
	case "how-it-works":
		return "How It Works"
	case "contact":
		return "Contact"
	}
	return id
}

// imageURL lets the detector's annotated image through the template's URL
// filter, but only for inline images and plain web URLs.
func imageURL(s string) template.URL {
	for _, prefix := range []string{"data:image/", "https://", "http://"} {
		if strings.HasPrefix(s, prefix) {
			return template.URL(s)
		}
	}
	return ""
}
