// Package carvekit provides a high-level API for extracting structured
// fields from binary files using YAML schema documents.
//
// It wraps the carve engine with schema loading, compilation caching and
// configuration, so common cases are one call:
//
//	fields, err := carvekit.ParseFile("save.dat", "schemas/save.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := carvekit.DumpJSON("save.dat", "schemas/save.yaml")
package carvekit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkarren/carve/pkg/binsrc"
	"github.com/mkarren/carve/pkg/carve"
)

// Parser loads, compiles and caches schemas, and applies them to binary
// inputs.
type Parser struct {
	schemaCache map[string]*cacheEntry
	cacheMutex  sync.RWMutex
	options     options
}

type cacheEntry struct {
	schema   *carve.Schema
	fields   []carve.Field
	order    binary.ByteOrder
	loadedAt time.Time
}

// options holds configuration for the parser.
type options struct {
	logger        *slog.Logger
	registry      *carve.Registry
	fillGaps      bool
	enableCaching bool
	cacheTimeout  time.Duration
}

// Option is a function that configures parser options.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry sets the transform registry schemas are compiled against.
func WithRegistry(registry *carve.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithGapFill controls materialization of unspecified byte ranges as
// unknown fields.
func WithGapFill(enabled bool) Option {
	return func(o *options) {
		o.fillGaps = enabled
	}
}

// WithCaching enables schema caching with the specified timeout.
func WithCaching(timeout time.Duration) Option {
	return func(o *options) {
		o.enableCaching = true
		o.cacheTimeout = timeout
	}
}

// WithoutCaching disables schema caching; every parse reloads and
// recompiles the schema file.
func WithoutCaching() Option {
	return func(o *options) {
		o.enableCaching = false
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		registry:      carve.NewRegistry(),
		enableCaching: true,
		cacheTimeout:  5 * time.Minute,
	}
}

// Global parser instance for the package-level convenience functions.
var (
	globalParser     *Parser
	globalParserOnce sync.Once
)

func getGlobalParser() *Parser {
	globalParserOnce.Do(func() {
		globalParser = NewParser()
	})
	return globalParser
}

// NewParser creates a new parser instance with the given options.
func NewParser(opts ...Option) *Parser {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Parser{
		schemaCache: make(map[string]*cacheEntry),
		options:     options,
	}
}

// ParseFile applies the schema at schemaPath to the file at binPath.
func ParseFile(binPath, schemaPath string, opts ...Option) ([]carve.FieldData, error) {
	return getGlobalParser().ParseFile(binPath, schemaPath, opts...)
}

// ParseBytes applies the schema at schemaPath to in-memory data.
func ParseBytes(data []byte, schemaPath string, opts ...Option) ([]carve.FieldData, error) {
	return getGlobalParser().ParseBytes(data, schemaPath, opts...)
}

// DumpJSON parses a binary file and renders the result tree as indented
// JSON.
func DumpJSON(binPath, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalParser().DumpJSON(binPath, schemaPath, opts...)
}

// ParseFile applies the schema at schemaPath to the file at binPath.
func (p *Parser) ParseFile(binPath, schemaPath string, opts ...Option) ([]carve.FieldData, error) {
	options := p.mergeOptions(opts)

	entry, err := p.loadSchema(schemaPath, options)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	src, err := binsrc.NewFile(binPath, entry.schema.ID, entry.order)
	if err != nil {
		return nil, fmt.Errorf("opening binary: %w", err)
	}
	options.logger.Debug("parsing file", "path", src.Path(), "comment", src.Comment(), "size", src.Size())

	return p.read(entry, src, options)
}

// ParseBytes applies the schema at schemaPath to in-memory data.
func (p *Parser) ParseBytes(data []byte, schemaPath string, opts ...Option) ([]carve.FieldData, error) {
	options := p.mergeOptions(opts)

	entry, err := p.loadSchema(schemaPath, options)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	return p.read(entry, binsrc.NewBuffer(data, entry.order), options)
}

// DumpJSON parses a binary file and renders the result tree as indented
// JSON.
func (p *Parser) DumpJSON(binPath, schemaPath string, opts ...Option) ([]byte, error) {
	fields, err := p.ParseFile(binPath, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering result tree: %w", err)
	}
	return out, nil
}

func (p *Parser) mergeOptions(opts []Option) options {
	options := p.options
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (p *Parser) read(entry *cacheEntry, src binsrc.Source, options options) ([]carve.FieldData, error) {
	reader := carve.NewReader(entry.fields,
		carve.WithGapFill(options.fillGaps),
		carve.WithLogger(options.logger),
	)
	fields, err := reader.Read(src)
	if err != nil {
		return nil, fmt.Errorf("reading binary with schema %q: %w", entry.schema.ID, err)
	}
	return fields, nil
}

// loadSchema returns a compiled schema, from cache when it is fresh
// enough. Compiled descriptors are immutable, so sharing one entry across
// concurrent reads is safe.
func (p *Parser) loadSchema(schemaPath string, options options) (*cacheEntry, error) {
	if options.enableCaching {
		p.cacheMutex.RLock()
		entry, ok := p.schemaCache[schemaPath]
		p.cacheMutex.RUnlock()
		if ok && time.Since(entry.loadedAt) < options.cacheTimeout {
			options.logger.Debug("schema cache hit", "path", schemaPath)
			return entry, nil
		}
	}

	schema, err := carve.LoadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	order, err := schema.Order()
	if err != nil {
		return nil, err
	}
	fields, err := schema.Compile(options.registry)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", schemaPath, err)
	}

	entry := &cacheEntry{schema: schema, fields: fields, order: order, loadedAt: time.Now()}
	if options.enableCaching {
		p.cacheMutex.Lock()
		p.schemaCache[schemaPath] = entry
		p.cacheMutex.Unlock()
	}
	return entry, nil
}
