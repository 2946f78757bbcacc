package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html"))

type TemplateData struct {
	Title    string
	Subtitle string
	Sections []TemplateSection
}

type TemplateSection struct {
	Heading string
	Blocks  []TemplateBlock
}

// TemplateBlock is a paragraph ("p"), a sub-heading ("h3") or a bullet
// list ("ul").
type TemplateBlock struct {
	Kind  string
	Items []string
}

func templateData(doc Document) TemplateData {
	data := TemplateData{Title: doc.Title, Subtitle: doc.Subtitle}
	for _, section := range doc.Sections {
		data.Sections = append(data.Sections, TemplateSection{Heading: section.Heading, Blocks: bodyBlocks(section.Body)})
	}
	return data
}

// bodyBlocks splits a section body into lines; consecutive "- " lines form
// one list.
func bodyBlocks(body string) []TemplateBlock {
	var blocks []TemplateBlock
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, " \t\r")
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, "- "):
			item := strings.TrimPrefix(line, "- ")
			if n := len(blocks); n > 0 && blocks[n-1].Kind == "ul" {
				blocks[n-1].Items = append(blocks[n-1].Items, item)
				continue
			}
			blocks = append(blocks, TemplateBlock{Kind: "ul", Items: []string{item}})
		case strings.HasPrefix(line, "### "):
			blocks = append(blocks, TemplateBlock{Kind: "h3", Items: []string{strings.TrimPrefix(line, "### ")}})
		default:
			blocks = append(blocks, TemplateBlock{Kind: "p", Items: []string{line}})
		}
	}
	return blocks
}

// RenderDocumentHTML renders the report template. All text is escaped.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
