package layout

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yosssi/gohtml"

	"github.com/andesco/shopfront/pkg/gtm"
	"github.com/andesco/shopfront/pkg/partytown"
)

// Link is a <link> element in the document head.
type Link struct {
	Rel  string
	Href string
	Type string
}

// Options are the fixed, per-deployment parts of the document.
type Options struct {
	GTM        gtm.Container
	Partytown  partytown.Config
	Stylesheet string
	Favicon    string
	// Pretty formats the rendered document. Meant for debugging.
	Pretty bool
}

// Document renders the HTML shell. It is safe for concurrent use.
type Document struct {
	tmpl   *template.Template
	links  []Link
	head   template.HTML
	body   template.HTML
	gtm    gtm.Container
	pretty bool
}

const documentTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width,initial-scale=1">
    {{- range .Links}}
    <link rel="{{.Rel}}" href="{{.Href}}"{{if .Type}} type="{{.Type}}"{{end}}>
    {{- end}}
  </head>
  <body>
    <noscript><iframe src="{{.NoscriptURL}}" height="0" width="0" style="display:none;visibility:hidden"></iframe></noscript>
    {{.Head}}
    <h1>Hello, {{.Shop.Name}}</h1>
    {{.Outlet}}
    {{.Body}}
  </body>
</html>
`

type documentView struct {
	Links       []Link
	NoscriptURL string
	Head        template.HTML
	Body        template.HTML
	Shop        ShopInfo
	Outlet      template.HTML
}

// NewDocument prepares the template and the inline scripts. The scripts only
// depend on opts, so they are built once.
func NewDocument(opts Options) (*Document, error) {
	if opts.GTM.ID() == "" {
		return nil, fmt.Errorf("document needs a GTM container")
	}

	tmpl, err := template.New("document").Parse(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing document template: %w", err)
	}

	config, err := opts.Partytown.Snippet()
	if err != nil {
		return nil, err
	}

	var head strings.Builder
	head.WriteString(scriptTag("", config))
	head.WriteString("\n    ")
	fmt.Fprintf(&head, `<script src="%s"></script>`, template.HTMLEscapeString(opts.Partytown.LoaderSrc()))

	var body strings.Builder
	body.WriteString(scriptTag("", opts.GTM.InitScript()))
	body.WriteString("\n    ")
	body.WriteString(scriptTag("text/partytown", opts.GTM.LoaderScript()))

	return &Document{
		tmpl:   tmpl,
		links:  links(opts),
		head:   template.HTML(head.String()),
		body:   template.HTML(body.String()),
		gtm:    opts.GTM,
		pretty: opts.Pretty,
	}, nil
}

func links(opts Options) []Link {
	var l []Link
	if opts.Stylesheet != "" {
		l = append(l, Link{Rel: "stylesheet", Href: opts.Stylesheet})
	}
	l = append(l,
		Link{Rel: "preconnect", Href: "https://cdn.shopify.com"},
		Link{Rel: "preconnect", Href: "https://shop.app"},
	)
	if opts.Favicon != "" {
		l = append(l, Link{Rel: "icon", Type: "image/svg+xml", Href: opts.Favicon})
	}
	return l
}

// scriptTag wraps fixed script content. content must not come from a request.
func scriptTag(typ, content string) string {
	if typ == "" {
		return "<script>" + content + "</script>"
	}
	return `<script type="` + typ + `">` + content + "</script>"
}

// Render writes the document for data to w. outlet is the page content placed
// under the heading.
func (d *Document) Render(w io.Writer, data Data, outlet template.HTML) error {
	view := documentView{
		Links:       d.links,
		NoscriptURL: d.gtm.NoscriptURL(),
		Head:        d.head,
		Body:        d.body,
		Shop:        data.Shop,
		Outlet:      outlet,
	}

	if !d.pretty {
		if err := d.tmpl.Execute(w, view); err != nil {
			return fmt.Errorf("rendering document: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, view); err != nil {
		return fmt.Errorf("rendering document: %w", err)
	}
	if _, err := w.Write(gohtml.FormatBytes(buf.Bytes())); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}
