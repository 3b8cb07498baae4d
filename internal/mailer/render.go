package mailer

import (
	"bytes"
	"html/template"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var anchorOpen = regexp.MustCompile(`<a href=`)

var pageTmpl = template.Must(template.New("page").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
.prompt { background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
.response { margin-bottom: 20px; }
.sources { border-top: 1px solid #ddd; padding-top: 15px; margin-top: 20px; }
a { color: #0066cc; text-decoration: none; }
a:hover { text-decoration: underline; }
code { background-color: #f8f8f8; padding: 2px 4px; border-radius: 3px; font-family: monospace; }
pre { background-color: #f8f8f8; padding: 15px; border-radius: 5px; overflow-x: auto; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))

// Renderer turns a markdown body into the HTML alternative part.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)}
}

// Fragment renders markdown to HTML. Links open in a new tab.
func (r *Renderer) Fragment(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return nil, err
	}
	return anchorOpen.ReplaceAll(buf.Bytes(), []byte(`<a target="_blank" href=`)), nil
}

// Page wraps the rendered fragment in the styled document.
func (r *Renderer) Page(markdown string) ([]byte, error) {
	frag, err := r.Fragment(markdown)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, template.HTML(frag)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
