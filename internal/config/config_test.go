package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(dataDir string) *Config {
	return &Config{
		Reference: ReferenceConfig{
			BaseURL:      "https://api.open5e.com",
			RequestDelay: 100 * time.Millisecond,
			Timeout:      15 * time.Second,
			PageLimit:    100,
		},
		Cache:   CacheConfig{Path: filepath.Join(dataDir, "cache.bbolt")},
		Records: RecordsConfig{DatabasePath: filepath.Join(dataDir, "characters.db")},
		Import: ImportConfig{
			DefaultResolution: "skip",
			MergeStrategy:     "preferImported",
		},
		Outputs: OutputsConfig{SheetDirectory: filepath.Join("outputs", "sheets")},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name              string
		configContent     string
		useExplicitPath   bool
		env               map[string]string
		wantErr           bool
		want              func(dataDir string) *Config
		wantErrorContains []string
	}{
		{
			name: "valid config file with custom values",
			configContent: `reference:
  base_url: http://localhost:8080
  request_delay: 250ms
  timeout: 3s
  retry_attempts: 2
  page_limit: 50
cache:
  path: custom/cache.bbolt
records:
  database_path: custom/characters.db
import:
  auto_resolve: true
  default_resolution: merge
  merge_strategy: newest
templates:
  sheet_template: custom/sheet.md.go.tmpl
outputs:
  sheet_directory: custom/sheets
`,
			want: func(string) *Config {
				return &Config{
					Reference: ReferenceConfig{
						BaseURL:       "http://localhost:8080",
						RequestDelay:  250 * time.Millisecond,
						Timeout:       3 * time.Second,
						RetryAttempts: 2,
						PageLimit:     50,
					},
					Cache:     CacheConfig{Path: "custom/cache.bbolt"},
					Records:   RecordsConfig{DatabasePath: "custom/characters.db"},
					Import:    ImportConfig{AutoResolve: true, DefaultResolution: "merge", MergeStrategy: "newest"},
					Templates: TemplatesConfig{SheetTemplate: "custom/sheet.md.go.tmpl"},
					Outputs:   OutputsConfig{SheetDirectory: "custom/sheets"},
				}
			},
		},
		{
			name: "invalid YAML format",
			configContent: `reference:
  base_url: http://localhost
  invalid yaml format here [[[
`,
			wantErr: true,
			wantErrorContains: []string{
				"configuration file found but could not be read",
				"Please check the file format and permissions",
			},
		},
		{
			name: "unknown keys use defaults",
			configContent: `wrong_key:
  some_value: test
`,
			want: defaultConfig,
		},
		{
			name: "environment overrides the base url and data directory",
			configContent: `import:
  default_resolution: replace
`,
			env: map[string]string{
				"DNDCB_API_BASE_URL": "http://127.0.0.1:9000",
				"DNDCB_DATA_DIR":     "/srv/dndcb",
			},
			want: func(string) *Config {
				cfg := defaultConfig("/srv/dndcb")
				cfg.Reference.BaseURL = "http://127.0.0.1:9000"
				cfg.Import.DefaultResolution = "replace"
				return cfg
			},
		},
		{
			name: "explicit config file path",
			configContent: `outputs:
  sheet_directory: explicit/sheets
`,
			useExplicitPath: true,
			want: func(dataDir string) *Config {
				cfg := defaultConfig(dataDir)
				cfg.Outputs.SheetDirectory = "explicit/sheets"
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			dataDir := filepath.Join(tempDir, "data")
			t.Setenv("DNDCB_DATA_DIR", dataDir)
			t.Setenv("DNDCB_API_BASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var configPath string
			if tt.useExplicitPath {
				configPath = filepath.Join(tempDir, "config.yml")
				require.NoError(t, os.WriteFile(configPath, []byte(tt.configContent), 0644))
			} else {
				require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(tt.configContent), 0644))
				t.Chdir(tempDir)
			}

			got, err := Load(configPath)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				for _, wantMsg := range tt.wantErrorContains {
					assert.Contains(t, err.Error(), wantMsg)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want(dataDir), got)
		})
	}
}

func TestValidate(t *testing.T) {
	templatePath := filepath.Join(t.TempDir(), "sheet.md.go.tmpl")
	require.NoError(t, os.WriteFile(templatePath, []byte("# {{ .Name }}"), 0644))

	tests := []struct {
		name              string
		modify            func(cfg *Config)
		wantErrorContains []string
	}{
		{
			name:   "defaults are valid",
			modify: func(cfg *Config) {},
		},
		{
			name: "readable sheet template",
			modify: func(cfg *Config) {
				cfg.Templates.SheetTemplate = templatePath
			},
		},
		{
			name: "missing sheet template",
			modify: func(cfg *Config) {
				cfg.Templates.SheetTemplate = filepath.Join(t.TempDir(), "missing.tmpl")
			},
			wantErrorContains: []string{"templates.sheet_template must be an existing and readable file"},
		},
		{
			name: "sheet template below a regular file",
			modify: func(cfg *Config) {
				cfg.Templates.SheetTemplate = filepath.Join(templatePath, "sheet.tmpl")
			},
			wantErrorContains: []string{"templates.sheet_template must be an existing and readable file"},
		},
		{
			name: "sheet template is a directory",
			modify: func(cfg *Config) {
				cfg.Templates.SheetTemplate = t.TempDir()
			},
			wantErrorContains: []string{"templates.sheet_template must be an existing and readable file"},
		},
		{
			name: "unknown resolution and strategy",
			modify: func(cfg *Config) {
				cfg.Import.DefaultResolution = "overwrite"
				cfg.Import.MergeStrategy = "oldest"
			},
			wantErrorContains: []string{
				"import.default_resolution: default_resolution must be one of [replace duplicate skip merge]",
				"import.merge_strategy: merge_strategy must be one of [preferImported preferExisting newest]",
			},
		},
		{
			name: "bad reference settings",
			modify: func(cfg *Config) {
				cfg.Reference.BaseURL = "not a url"
				cfg.Reference.Timeout = 0
				cfg.Reference.PageLimit = 0
			},
			wantErrorContains: []string{
				"reference.base_url",
				"reference.timeout",
				"reference.page_limit",
			},
		},
		{
			name: "empty storage paths",
			modify: func(cfg *Config) {
				cfg.Cache.Path = ""
				cfg.Records.DatabasePath = ""
			},
			wantErrorContains: []string{
				"cache.path: path is a required field",
				"records.database_path: database_path is a required field",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t.TempDir())
			tt.modify(cfg)

			var err error
			require.NotPanics(t, func() {
				err = Validate(cfg)
			})
			if len(tt.wantErrorContains) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErrorContains {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
