// Package assets holds the embedded templates used to render documents.
package assets

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const sheetTemplateName = "character-sheet.md.go.tmpl"

//go:embed templates/character-sheet.md.go.tmpl
var fallbackSheetTemplate string

// ParseSheetTemplate parses the template at templatePath, or the embedded
// character sheet template when templatePath is empty, missing or broken.
func ParseSheetTemplate(templatePath string) (*template.Template, error) {
	return parseTemplateWithFallback(templatePath, sheetTemplateName, fallbackSheetTemplate)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"title": title,
		"signed": func(n int) string {
			if n >= 0 {
				return fmt.Sprintf("+%d", n)
			}
			return fmt.Sprintf("%d", n)
		},
	}
}

// title upper-cases the first letter of every word and splits camelCase.
func title(s string) string {
	var b strings.Builder
	upperNext := true
	for i, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune(' ')
			upperNext = true
			continue
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteRune(' ')
		}
		if upperNext && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upperNext = false
		b.WriteRune(r)
	}
	return b.String()
}

func parseTemplateWithFallback(templatePath, fallbackName, fallbackTemplate string) (*template.Template, error) {
	if templatePath != "" {
		if _, err := os.Stat(templatePath); err == nil {
			fileName := filepath.Base(templatePath)
			tmpl, err := template.New(fileName).
				Funcs(funcMap()).
				ParseFiles(templatePath)
			if err == nil {
				return tmpl, nil
			}
			slog.Default().Warn("failed to parse a templatePath",
				slog.String("templatePath", templatePath),
				slog.Any("error", err),
			)
		}
	}

	tmpl, err := template.New(fallbackName).
		Funcs(funcMap()).
		Parse(fallbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded template: %w", err)
	}
	return tmpl, nil
}
