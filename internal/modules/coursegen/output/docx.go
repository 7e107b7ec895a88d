package output

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	docxFont     = "Calibri"
	docxFontSize = 11
)

var (
	mdHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdBullet  = regexp.MustCompile(`^[\-\*]\s+(.+)$`)
)

// CourseDocx renders course Markdown as a Word document.
func CourseDocx(title, markdown string) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, err
	}
	if t := strings.TrimSpace(title); t != "" {
		styledRun(doc.AddParagraph(""), t, true, 18)
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "---" || strings.HasPrefix(trimmed, "```") {
			continue
		}
		if m := mdHeading.FindStringSubmatch(trimmed); m != nil {
			styledRun(doc.AddParagraph(""), m[2], true, headingSize(len(m[1])))
			continue
		}
		if m := mdBullet.FindStringSubmatch(trimmed); m != nil {
			richText(doc.AddParagraph(""), "• "+m[1])
			continue
		}
		richText(doc.AddParagraph(""), trimmed)
	}

	tmp, err := os.CreateTemp("", "omya-*.docx")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := doc.SaveTo(tmpPath); err != nil {
		return nil, fmt.Errorf("save docx: %w", err)
	}
	return os.ReadFile(tmpPath)
}

func headingSize(level int) uint64 {
	switch level {
	case 1:
		return 18
	case 2:
		return 15
	case 3:
		return 13
	default:
		return docxFontSize
	}
}

func styledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(stripInline(text)).Font(docxFont).Size(size)
	if bold {
		run.Bold(true)
	}
}

// richText keeps **bold** spans bold and drops other inline markers.
func richText(p *docx.Paragraph, text string) {
	parts := mdBold.Split(text, -1)
	matches := mdBold.FindAllStringSubmatch(text, -1)
	for i, part := range parts {
		if part != "" {
			p.AddText(stripInline(part)).Font(docxFont).Size(docxFontSize)
		}
		if i < len(matches) {
			p.AddText(stripInline(matches[i][1])).Font(docxFont).Size(docxFontSize).Bold(true)
		}
	}
}

func stripInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")
	return s
}
