// Package transfer reads character records from files and URLs and writes
// export files.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"resty.dev/v3"

	"github.com/TheTechChild/dnd-character-builder/internal/character"
)

// ExportVersion is written into every export envelope.
const ExportVersion = 1

const defaultTimeout = 30 * time.Second

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")

	_ pflag.Value = (*Format)(nil)
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(p string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(p), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, p)
	}
	return ParseFormat(ext)
}

func (f Format) String() string {
	return string(f)
}

func (f *Format) Set(s string) error {
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f *Format) Type() string {
	return "format"
}

// Envelope is the export file layout. It is accepted on import too.
type Envelope struct {
	Version    int                   `json:"version" yaml:"version"`
	ExportedAt time.Time             `json:"exportedAt" yaml:"exportedAt"`
	Characters []character.Character `json:"characters" yaml:"characters"`
}

// InvalidInputError lists every problem found in an input. Each message is
// meant to be shown to the user as is.
type InvalidInputError struct {
	Errors []character.ValidationError
}

func (e *InvalidInputError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		messages = append(messages, ve.Message)
	}
	return "invalid input: " + strings.Join(messages, "; ")
}

func invalid(format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Errors: []character.ValidationError{{Message: fmt.Sprintf(format, args...)}}}
}

type Loader struct {
	httpClient *resty.Client
	now        func() time.Time
	newID      func() string
}

type Option func(*Loader)

func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		l.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Loader) {
		l.newID = newID
	}
}

func NewLoader(opts ...Option) *Loader {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetHeader("Accept", "application/json, application/yaml")

	l := &Loader{
		httpClient: client,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Close() error {
	return l.httpClient.Close()
}

// LoadFile reads a JSON or YAML file holding one record, an array of records
// or an export envelope.
func (l *Loader) LoadFile(p string) ([]character.Character, error) {
	format, err := FormatFromPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s) > %w", p, err)
	}
	return l.Parse(data, format)
}

// LoadURL downloads records. The body is read as JSON unless the URL path
// ends in .yaml or .yml.
func (l *Loader) LoadURL(ctx context.Context, rawURL string) ([]character.Character, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, invalid("%q is not a valid http(s) URL", rawURL)
	}

	response, err := l.httpClient.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("httpClient.Get(%s) > %w", rawURL, err)
	}
	if response.IsError() {
		return nil, fmt.Errorf("response error %d from %s", response.StatusCode(), rawURL)
	}

	format := JSON
	if f, err := FormatFromPath(path.Base(parsed.Path)); err == nil {
		format = f
	}
	return l.Parse([]byte(response.String()), format)
}

// Parse decodes and validates records. Missing ids and timestamps are filled
// in before validation.
func (l *Loader) Parse(data []byte, format Format) ([]character.Character, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalid("the input is empty")
	}
	records, err := decodeRecords(data, format)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, invalid("no characters found in the input")
	}

	var problems []character.ValidationError
	for i := range records {
		l.normalize(&records[i])
		for _, ve := range character.Validate(records[i]) {
			problems = append(problems, character.ValidationError{
				Message: fmt.Sprintf("character %d (%s): %s", i+1, displayName(records[i]), ve.Message),
			})
		}
	}
	if len(problems) > 0 {
		return nil, &InvalidInputError{Errors: problems}
	}
	return records, nil
}

func displayName(c character.Character) string {
	if c.Name == "" {
		return "unnamed"
	}
	return c.Name
}

func (l *Loader) normalize(c *character.Character) {
	c.Name = strings.TrimSpace(c.Name)
	if strings.TrimSpace(c.ID) == "" {
		c.ID = l.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = l.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}

type shape int

const (
	shapeSingle shape = iota
	shapeArray
	shapeEnvelope
)

func decodeRecords(data []byte, format Format) ([]character.Character, error) {
	unmarshal, err := unmarshaler(format)
	if err != nil {
		return nil, err
	}

	var probe any
	if err := unmarshal(data, &probe); err != nil {
		return nil, invalid("the input is not valid %s: %v", format, err)
	}

	switch detectShape(probe) {
	case shapeArray:
		var records []character.Character
		if err := unmarshal(data, &records); err != nil {
			return nil, invalid("the input does not hold character records: %v", err)
		}
		return records, nil
	case shapeEnvelope:
		var envelope Envelope
		if err := unmarshal(data, &envelope); err != nil {
			return nil, invalid("the export file is malformed: %v", err)
		}
		if envelope.Version > ExportVersion {
			return nil, invalid("export version %d is newer than the supported version %d", envelope.Version, ExportVersion)
		}
		return envelope.Characters, nil
	default:
		var record character.Character
		if err := unmarshal(data, &record); err != nil {
			return nil, invalid("the input does not hold a character record: %v", err)
		}
		return []character.Character{record}, nil
	}
}

func detectShape(probe any) shape {
	switch v := probe.(type) {
	case []any:
		return shapeArray
	case map[string]any:
		if _, ok := v["characters"]; ok {
			return shapeEnvelope
		}
	}
	return shapeSingle
}

func unmarshaler(format Format) (func([]byte, any) error, error) {
	switch format {
	case JSON:
		return json.Unmarshal, nil
	case YAML:
		return yaml.Unmarshal, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Export writes records as an envelope.
func Export(w io.Writer, records []character.Character, format Format, exportedAt time.Time) error {
	if records == nil {
		records = []character.Character{}
	}
	envelope := Envelope{
		Version:    ExportVersion,
		ExportedAt: exportedAt.UTC(),
		Characters: records,
	}

	switch format {
	case JSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(envelope); err != nil {
			return fmt.Errorf("encoder.Encode() > %w", err)
		}
	case YAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(envelope); err != nil {
			return fmt.Errorf("encoder.Encode() > %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("encoder.Close() > %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}
