// Package loader provides dataset loading adapters.
// Clean Architecture: Adapter implementing ports.DatasetLoader.
package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	httpPkg "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// Ingest limits.
const (
	DefaultMaxBytes        = 20 << 20
	DefaultMaxRows         = 200000
	DefaultDownloadTimeout = 30 * time.Second
)

// nullTokens are cell values read as missing.
var nullTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true, "-": true,
}

// CSVLoader reads CSV from local paths, http(s) URLs and in-memory uploads.
type CSVLoader struct {
	maxBytes int64
	maxRows  int
	client   *httpPkg.Client
}

// Option configures a CSVLoader.
type Option func(*CSVLoader)

// WithMaxBytes caps the accepted input size.
func WithMaxBytes(n int64) Option {
	return func(l *CSVLoader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithMaxRows caps the number of data rows kept; later rows are dropped.
func WithMaxRows(n int) Option {
	return func(l *CSVLoader) {
		if n > 0 {
			l.maxRows = n
		}
	}
}

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *httpPkg.Client) Option {
	return func(l *CSVLoader) { l.client = c }
}

// NewCSVLoader creates a CSV loader.
func NewCSVLoader(opts ...Option) *CSVLoader {
	l := &CSVLoader{
		maxBytes: DefaultMaxBytes,
		maxRows:  DefaultMaxRows,
		client:   &httpPkg.Client{Timeout: DefaultDownloadTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads source, which is either a local path or an http(s) URL.
func (l *CSVLoader) Load(ctx context.Context, source string) (*entities.Dataset, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err := l.download(ctx, source)
		if err != nil {
			return nil, err
		}
		return l.Parse(ctx, source, data)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := l.readLimited(file)
	if err != nil {
		return nil, err
	}
	return l.Parse(ctx, filepath.Base(source), data)
}

func (l *CSVLoader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := httpPkg.NewRequestWithContext(ctx, httpPkg.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &entities.UpstreamError{Reason: "downloading csv", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &entities.UpstreamError{Reason: fmt.Sprintf("downloading csv: status %d", resp.StatusCode)}
	}
	if resp.ContentLength > l.maxBytes {
		return nil, &entities.DatasetTooLargeError{MaxBytes: l.maxBytes}
	}
	return l.readLimited(resp.Body)
}

func (l *CSVLoader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &entities.DatasetTooLargeError{MaxBytes: l.maxBytes}
	}
	return data, nil
}

// Parse builds a dataset from CSV bytes. name is used in error messages only.
func (l *CSVLoader) Parse(ctx context.Context, name string, data []byte) (*entities.Dataset, error) {
	if int64(len(data)) > l.maxBytes {
		return nil, &entities.DatasetTooLargeError{MaxBytes: l.maxBytes}
	}

	// 1. Decode: UTF-8, falling back to Latin-1
	text, err := decode(data)
	if err != nil {
		return nil, &entities.InvalidDatasetError{Reason: err.Error()}
	}

	// 2. Read records
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &entities.InvalidDatasetError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, &entities.InvalidDatasetError{Reason: err.Error()}
	}
	names := dedupeHeaders(header)

	cells := make([][]string, len(names))
	rows := 0
	for rows < l.maxRows {
		if rows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &entities.InvalidDatasetError{Reason: err.Error()}
		}
		if len(record) > len(names) {
			line, _ := r.FieldPos(0)
			return nil, &entities.InvalidDatasetError{
				Reason: fmt.Sprintf("line %d: expected %d fields, saw %d", line, len(names), len(record)),
			}
		}
		for i := range names {
			v := ""
			if i < len(record) {
				v = record[i]
			}
			cells[i] = append(cells[i], v)
		}
		rows++
	}

	// 3. Infer column types
	columns := make([]*entities.Column, len(names))
	for i, n := range names {
		columns[i] = inferColumn(n, cells[i], rows)
	}
	ds, err := entities.NewDataset(columns)
	if err != nil {
		return nil, fmt.Errorf("building dataset from %s: %w", name, err)
	}
	return ds, nil
}

func decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("could not decode CSV with utf-8 or latin-1 encoding: %w", err)
	}
	return string(out), nil
}

// dedupeHeaders names empty headers "Unnamed: i" and suffixes repeats with ".n".
func dedupeHeaders(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	repeats := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for used[name] {
			repeats[h]++
			name = fmt.Sprintf("%s.%d", h, repeats[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func inferColumn(name string, raw []string, rows int) *entities.Column {
	null := make([]bool, rows)
	nonNull := 0
	for i, v := range raw {
		if nullTokens[strings.TrimSpace(v)] {
			null[i] = true
			continue
		}
		nonNull++
	}

	if nonNull == 0 {
		return &entities.Column{Name: name, DType: entities.DTypeFloat64, Floats: make([]float64, rows), Null: null}
	}
	if floats, ok := parseInts(raw, null); ok {
		dtype := entities.DTypeInt64
		if nonNull < rows {
			dtype = entities.DTypeFloat64
		}
		return &entities.Column{Name: name, DType: dtype, Floats: floats, Null: null}
	}
	if floats, ok := parseFloats(raw, null); ok {
		return &entities.Column{Name: name, DType: entities.DTypeFloat64, Floats: floats, Null: null}
	}
	if bools, ok := parseBools(raw, null); ok {
		return &entities.Column{Name: name, DType: entities.DTypeBool, Bools: bools, Null: null}
	}
	if times, ok := parseTimes(raw, null); ok {
		return &entities.Column{Name: name, DType: entities.DTypeDatetime, Times: times, Null: null}
	}
	return &entities.Column{Name: name, DType: entities.DTypeObject, Strings: raw, Null: null}
}

func parseInts(raw []string, null []bool) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, v := range raw {
		if null[i] {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = float64(n)
	}
	return out, true
}

func parseFloats(raw []string, null []bool) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, v := range raw {
		if null[i] {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func parseBools(raw []string, null []bool) ([]bool, bool) {
	out := make([]bool, len(raw))
	for i, v := range raw {
		if null[i] {
			continue
		}
		switch strings.TrimSpace(v) {
		case "True", "true", "TRUE":
			out[i] = true
		case "False", "false", "FALSE":
		default:
			return nil, false
		}
	}
	return out, true
}

func parseTimes(raw []string, null []bool) ([]time.Time, bool) {
	out := make([]time.Time, len(raw))
	for i, v := range raw {
		if null[i] {
			continue
		}
		t, ok := entities.ParseTime(v)
		if !ok {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}
