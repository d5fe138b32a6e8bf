// Package loader fetches and validates test payloads from files or HTTP.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/validator"
)

var (
	// ErrFetch means the source could not be read at all.
	ErrFetch = errors.New("fetch failed")
	// ErrBadStatus means an HTTP source answered with a non-2xx status.
	ErrBadStatus = errors.New("unexpected status")
	// ErrMalformedPayload aliases the exam package sentinel so callers need one import.
	ErrMalformedPayload = exam.ErrMalformedPayload
	// ErrInvalidConfig means the payload config failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// LoadError names the source that failed to load. A session is never built
// from a source that produced one.
type LoadError struct {
	Source string
	Err    error
	// Fields holds per-field validation messages, when validation failed.
	Fields map[string]string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Paper is a loaded, validated test.
type Paper struct {
	Source    string
	Config    exam.Config
	Questions []exam.Question
	Warnings  []exam.IntegrityWarning
}

// Loader reads payload sources. A source is either an http(s) URL or a path
// relative to the data directory.
type Loader struct {
	dataDir string
	client  *resty.Client
	log     zerolog.Logger
}

// New creates a Loader. Each fetch is a single attempt bounded by timeout.
func New(dataDir string, timeout time.Duration, log zerolog.Logger) *Loader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Loader{
		dataDir: dataDir,
		client:  client,
		log:     log.With().Str("component", "loader").Logger(),
	}
}

// Load fetches and parses source.
func (l *Loader) Load(ctx context.Context, source string) (*Paper, error) {
	data, err := l.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return Parse(source, data)
}

// Fetch returns the raw payload bytes for source.
func (l *Loader) Fetch(ctx context.Context, source string) ([]byte, error) {
	if isRemote(source) {
		return l.fetchRemote(ctx, source)
	}
	return l.fetchFile(source)
}

func (l *Loader) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	resp, err := l.client.R().SetContext(ctx).Get(url)
	if err != nil {
		l.log.Warn().Err(err).Str("source", url).Msg("Payload fetch failed")
		return nil, &LoadError{Source: url, Err: fmt.Errorf("%w: %v", ErrFetch, err)}
	}
	if !resp.IsSuccess() {
		l.log.Warn().Int("status", resp.StatusCode()).Str("source", url).Msg("Payload fetch returned non-success status")
		return nil, &LoadError{Source: url, Err: fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode())}
	}
	return resp.Body(), nil
}

func (l *Loader) fetchFile(source string) ([]byte, error) {
	// Clean against a rooted path so ".." cannot leave the data directory.
	path := filepath.Join(l.dataDir, filepath.Clean("/"+source))
	data, err := os.ReadFile(path)
	if err != nil {
		l.log.Warn().Err(err).Str("source", source).Msg("Payload read failed")
		return nil, &LoadError{Source: source, Err: fmt.Errorf("%w: %v", ErrFetch, err)}
	}
	return data, nil
}

// Parse decodes and validates raw payload bytes.
func Parse(source string, data []byte) (*Paper, error) {
	p, err := exam.DecodePayload(data)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if len(p.Questions) == 0 {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("%w: no questions", ErrMalformedPayload)}
	}

	if fields := validator.Struct(p); fields != nil {
		return nil, &LoadError{Source: source, Err: classify(fields), Fields: fields}
	}

	return &Paper{
		Source:    source,
		Config:    p.EffectiveConfig(),
		Questions: p.Questions,
		Warnings:  exam.CheckIntegrity(p.Questions),
	}, nil
}

// classify maps validation failures to a sentinel: question-level problems
// are malformed payloads, anything else is bad config.
func classify(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.HasPrefix(k, "questions") {
			return fmt.Errorf("%w: %s: %s", ErrMalformedPayload, k, fields[k])
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, keys[0], fields[keys[0]])
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
