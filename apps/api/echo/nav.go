package echoapi

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	navIcon  = "←"
	navLabel = "Back to dashboard"
	navHref  = "/"

	navClassDark  = "nav-btn--dark"
	navClassLight = "nav-btn--light"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// NavButton is the stateless "back to dashboard" control shown on report pages.
type NavButton struct {
	IsDark bool
}

func (NavButton) Icon() string  { return navIcon }
func (NavButton) Label() string { return navLabel }
func (NavButton) Href() string  { return navHref }

func (b NavButton) Class() string {
	if b.IsDark {
		return navClassDark
	}
	return navClassLight
}

type templateRenderer struct {
	tmpl *template.Template
}

var _ echo.Renderer = (*templateRenderer)(nil) // interface compliance check

func newTemplateRenderer() *templateRenderer {
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"count": func(n *int) string {
			if n == nil {
				return "n/a"
			}
			return fmt.Sprint(*n)
		},
	}).ParseFS(templateFS, "templates/*.gohtml"))
	return &templateRenderer{tmpl: tmpl}
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return errors.Wrapf(r.tmpl.ExecuteTemplate(w, name, data), "rendering %s", name)
}
