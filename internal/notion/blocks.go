package notion

// MaxTextLen is the longest paragraph chunk sent in one block. Notion caps a
// rich text item at 2000 characters.
const MaxTextLen = 1800

type text struct {
	Content string `json:"content"`
}

type richText struct {
	Type string `json:"type"`
	Text text   `json:"text"`
}

func newRichText(content string) richText {
	return richText{Type: "text", Text: text{Content: content}}
}

type textBody struct {
	RichText []richText `json:"rich_text"`
}

type Block struct {
	Object    string    `json:"object"`
	Type      string    `json:"type"`
	Heading1  *textBody `json:"heading_1,omitempty"`
	Heading2  *textBody `json:"heading_2,omitempty"`
	Paragraph *textBody `json:"paragraph,omitempty"`
	Divider   *struct{} `json:"divider,omitempty"`
}

// Text returns the plain content of a text block, or "" for a divider.
func (b Block) Text() string {
	var body *textBody
	switch {
	case b.Heading1 != nil:
		body = b.Heading1
	case b.Heading2 != nil:
		body = b.Heading2
	case b.Paragraph != nil:
		body = b.Paragraph
	default:
		return ""
	}
	var out string
	for _, rt := range body.RichText {
		out += rt.Text.Content
	}
	return out
}

func heading1(content string) Block {
	return Block{Object: "block", Type: "heading_1", Heading1: &textBody{RichText: []richText{newRichText(content)}}}
}

func heading2(content string) Block {
	return Block{Object: "block", Type: "heading_2", Heading2: &textBody{RichText: []richText{newRichText(content)}}}
}

func paragraph(content string) Block {
	return Block{Object: "block", Type: "paragraph", Paragraph: &textBody{RichText: []richText{newRichText(content)}}}
}

func divider() Block {
	return Block{Object: "block", Type: "divider", Divider: &struct{}{}}
}

type Section struct {
	Heading string
	Body    string
}

// Document is a report ready to be written to Notion.
type Document struct {
	// Title names the database row when the target is a database.
	Title string
	// Heading opens the appended content.
	Heading     string
	Sections    []Section
	Placeholder string
}

// BuildBlocks lays out a heading, then one heading_2 and its paragraphs per
// section in the given order, then a divider.
func BuildBlocks(doc Document) []Block {
	placeholder := doc.Placeholder
	if placeholder == "" {
		placeholder = "无"
	}
	blocks := []Block{heading1(doc.Heading)}
	for _, section := range doc.Sections {
		blocks = append(blocks, heading2(section.Heading))
		for _, chunk := range SplitText(section.Body, MaxTextLen, placeholder) {
			blocks = append(blocks, paragraph(chunk))
		}
	}
	return append(blocks, divider())
}

// SplitText cuts body into chunks of at most limit runes. Concatenating the
// chunks yields body again; an empty body yields the placeholder alone.
func SplitText(body string, limit int, placeholder string) []string {
	if body == "" {
		return []string{placeholder}
	}
	runes := []rune(body)
	if limit <= 0 || len(runes) <= limit {
		return []string{body}
	}
	chunks := make([]string, 0, len(runes)/limit+1)
	for len(runes) > 0 {
		n := min(limit, len(runes))
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
