package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/cengoxius/ecommerce01/internal/domain"
	"github.com/cengoxius/ecommerce01/internal/header"
	"github.com/cengoxius/ecommerce01/internal/page"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names understood by renderer.render.
const (
	pageHome    = "home"
	pageProduct = "product"
	pageSearch  = "search"
)

// homePage is the render model of the landing page.
type homePage struct {
	Header header.View `json:"header"`
}

// productPage is the render model of the product detail page. Notice
// carries the message of a rejected cart action.
type productPage struct {
	Header header.View `json:"header"`
	Page   page.View   `json:"page"`
	Notice string      `json:"notice,omitempty"`
}

// searchPage is the render model of the search results page.
type searchPage struct {
	Header  header.View `json:"header"`
	Query   string      `json:"query"`
	Results []searchHit `json:"results"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
	PrevURL string      `json:"prev_url,omitempty"`
	NextURL string      `json:"next_url,omitempty"`
	Notice  string      `json:"notice,omitempty"`
}

// searchHit is one product card in the results.
type searchHit struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Price string `json:"price"`
	Path  string `json:"path"`
}

// renderer holds one parsed template set per page, each sharing the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	funcs := template.FuncMap{
		"productPath": func(id string) string { return domain.ProductRoute(id).String() },
	}

	r := &renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageHome, pageProduct, pageSearch} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes the named page into a buffer first so a template error
// never leaves a half-written response behind.
func (r *renderer) render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}
