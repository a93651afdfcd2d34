package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{
			name:    "converts a markdown file",
			file:    "sheet.md",
			content: "# Aragorn\n\n| Ability | Score |\n|---|---|\n| Strength | 16 |\n",
		},
		{
			name:    "rejects other extensions",
			file:    "sheet.txt",
			content: "# Aragorn\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			markdownPath := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(markdownPath, []byte(tt.content), 0644))

			got, err := ConvertMarkdownToPDF(markdownPath)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "sheet.pdf"), got)

			data, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, "%PDF", string(data[:4]))
		})
	}
}

func TestConvertMarkdownToPDF_MissingFile(t *testing.T) {
	_, err := ConvertMarkdownToPDF(filepath.Join(t.TempDir(), "missing.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
