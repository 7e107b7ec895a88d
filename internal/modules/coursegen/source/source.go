// Package source loads text material from disk for the text pipeline.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/yungbote/omya-backend/internal/modules/coursegen/pathnorm"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

type Loader struct {
	log *logger.Logger
	md  *converter.Converter
}

func NewLoader(log *logger.Logger) *Loader {
	return &Loader{
		log: log.With("service", "TextSourceLoader"),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// LoadFile reads a UTF-8 text file. HTML files are converted to Markdown.
func (l *Loader) LoadFile(path string) (string, error) {
	path = pathnorm.Normalize(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apierr.NotFound(path)
		}
		return "", fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", apierr.Validation(fmt.Sprintf("text file is not valid UTF-8: %s", path))
	}
	text := string(raw)
	if IsHTML(path) {
		return l.HTMLToMarkdown(text)
	}
	return text, nil
}

func (l *Loader) HTMLToMarkdown(html string) (string, error) {
	md, err := l.md.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	l.log.Debug("converted html", "html_bytes", len(html), "markdown_bytes", len(md))
	return md, nil
}

func IsHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}
