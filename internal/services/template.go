package services

import (
	"bytes"
	_ "embed"
	"html/template"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

//go:embed templates/email.html
var emailTemplateSource string

var emailTemplate = template.Must(template.New("email").Parse(emailTemplateSource))

// Branding is the company identity printed around every generated email.
type Branding struct {
	Company string
	Website string
}

type emailView struct {
	Subject      string
	Company      string
	Website      string
	WebsiteLabel string
	SenderName   string
	Body         template.HTML
	Year         int
}

// RenderEmail wraps generated HTML in the branded template. The body is
// trusted model output and is inserted unescaped; everything else is escaped.
func RenderEmail(b Branding, subject, body, senderName string) string {
	if b.Company == "" {
		b.Company = "Sinx Solutions"
	}
	if strings.TrimSpace(senderName) == "" {
		senderName = b.Company
	}
	label := strings.TrimPrefix(strings.TrimPrefix(b.Website, "https://"), "http://")
	label = strings.TrimSuffix(label, "/")

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailView{
		Subject:      subject,
		Company:      b.Company,
		Website:      b.Website,
		WebsiteLabel: label,
		SenderName:   senderName,
		Body:         template.HTML(body),
		Year:         time.Now().Year(),
	})
	if err != nil {
		// The template is static; fall back to the bare body rather than send nothing.
		log.Errorf("Failed to render email template: %v", err)
		return body
	}
	return buf.String()
}

// blockElements get a line break around their text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "ul": true, "ol": true, "table": true,
}

// HTMLToText renders the readable text of an HTML document: script, style and
// head content are dropped, block elements become line breaks and runs of
// whitespace collapse.
func HTMLToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head", "title":
				return
			}
		}
		isBlock := n.Type == html.ElementNode && blockElements[n.Data]
		if isBlock {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			b.WriteString("\n")
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
