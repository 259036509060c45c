// Package risk classifies SQL text by the risk of executing it.
//
// A script is parsed with the grammar of its database engine and every
// statement in it, including statements nested in CTE bodies, EXPLAIN
// targets and routine bodies, is labelled by its kind. Labels map to a Tier
// through a fixed table where anything unknown is Dangerous, and the script
// as a whole gets the highest tier of its labels.
//
// Scripts the parser rejects are never an error: each statement is labelled
// by its first keyword instead and the result is marked SourceFallback.
package risk

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/types"
)

// DefaultMaxParseLength is the longest input handed to a grammar parser.
const DefaultMaxParseLength = 1 << 20

// DefaultEngine is the engine of the package-level predicates.
const DefaultEngine = types.Engine_SQLITE

// Classification is the outcome of classifying one SQL text.
type Classification struct {
	Engine types.Engine `json:"engine" yaml:"engine"`
	Tier   Tier         `json:"tier" yaml:"tier"`

	Readonly  bool `json:"readonly" yaml:"readonly"`
	Modify    bool `json:"modify" yaml:"modify"`
	Dangerous bool `json:"dangerous" yaml:"dangerous"`

	Extraction Extraction `json:"-" yaml:"-"`
}

// IsEmpty reports whether the text held no statements.
func (c Classification) IsEmpty() bool {
	return c.Extraction.Source == SourceEmpty
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithStrictFallback makes every fallback extraction Dangerous, whatever its
// first keywords are.
func WithStrictFallback(strict bool) Option {
	return func(c *Classifier) {
		c.strictFallback = strict
	}
}

// WithMaxParseLength sets the longest input handed to the parser. Longer
// input is labelled by the fallback. Zero or less disables the limit.
func WithMaxParseLength(n int) Option {
	return func(c *Classifier) {
		c.maxParseLength = n
	}
}

// WithCacheSize enables an LRU cache of the last n classifications.
func WithCacheSize(n int) Option {
	return func(c *Classifier) {
		c.cacheSize = n
	}
}

// WithLogger sets the logger used for parse failures.
func WithLogger(l logger.Interface) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// Classifier classifies SQL text for one database engine. It is immutable
// after New and safe for concurrent use.
type Classifier struct {
	engine         types.Engine
	extract        extractor
	strictFallback bool
	maxParseLength int
	cacheSize      int
	cache          *lru.Cache[string, Classification]
	logger         logger.Interface
}

// New creates a classifier for engine. An unsupported engine falls back to
// DefaultEngine and logs a warning.
func New(engine types.Engine, opts ...Option) *Classifier {
	c := &Classifier{
		engine:         engine,
		maxParseLength: DefaultMaxParseLength,
		logger:         logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	extract, err := extractorFor(engine)
	if err != nil {
		c.logger.Warn("unsupported engine, use default engine instead",
			"engine", engine.String(),
			"default", DefaultEngine.String(),
			logger.Error(err))
		c.engine = DefaultEngine
		extract, _ = extractorFor(DefaultEngine)
	}
	c.extract = extract

	if c.cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		c.cache, _ = lru.New[string, Classification](c.cacheSize)
	}
	return c
}

// Engine returns the engine whose grammar the classifier parses.
func (c *Classifier) Engine() types.Engine {
	return c.engine
}

// Classify classifies statement. Results must not be modified: they may be
// shared through the cache.
func (c *Classifier) Classify(statement string) Classification {
	if c.cache != nil {
		if cached, ok := c.cache.Get(statement); ok {
			return cached
		}
	}

	extraction := c.Extract(statement)
	tier := extraction.Tier()
	if c.strictFallback && extraction.Source == SourceFallback {
		tier = Dangerous
	}

	result := Classification{
		Engine:     c.engine,
		Tier:       tier,
		Readonly:   tier == Readonly,
		Modify:     tier != Readonly,
		Dangerous:  tier == Dangerous,
		Extraction: extraction,
	}
	if c.cache != nil {
		c.cache.Add(statement, result)
	}
	return result
}

// Extract returns the statement-kind labels of statement.
func (c *Classifier) Extract(statement string) Extraction {
	if strings.TrimSpace(statement) == "" {
		return Extraction{Source: SourceEmpty}
	}

	var extraction Extraction
	var err error
	if c.maxParseLength > 0 && len(statement) > c.maxParseLength {
		err = errors.Errorf("statement length %d exceeds the maximum parse length %d", len(statement), c.maxParseLength)
	} else {
		extraction, err = c.parse(statement)
	}

	if err == nil {
		if len(extraction.Statements) == 0 && len(extraction.Nested) == 0 {
			// Comments only.
			return Extraction{Source: SourceEmpty}
		}
		extraction.Source = SourceParser
		return extraction
	}

	labels := fallbackStatementKinds(statement)
	if len(labels) == 0 {
		// Separators and comments only.
		return Extraction{Source: SourceEmpty}
	}

	c.logger.Debug("failed to parse statement, use first keywords instead",
		"engine", c.engine.String(),
		logger.Error(err))
	return Extraction{
		Source:     SourceFallback,
		Statements: labels,
		Err:        err,
	}
}

func (c *Classifier) parse(statement string) (extraction Extraction, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = errors.Errorf("parser PANIC RECOVER, engine: %v, err: %v", c.engine, panicErr)
		}
	}()
	return c.extract(statement)
}

// IsReadonly reports whether every statement of statement is read-only.
func (c *Classifier) IsReadonly(statement string) bool {
	return c.Classify(statement).Readonly
}

// IsModify reports whether statement may change state. It is always the
// negation of IsReadonly.
func (c *Classifier) IsModify(statement string) bool {
	return !c.IsReadonly(statement)
}

// IsDangerous reports whether any statement of statement may alter or
// destroy existing data or schema, or change permissions.
func (c *Classifier) IsDangerous(statement string) bool {
	return c.Classify(statement).Dangerous
}

var defaultClassifier = New(DefaultEngine)

// IsReadonly reports whether statement is read-only for DefaultEngine.
func IsReadonly(statement string) bool {
	return defaultClassifier.IsReadonly(statement)
}

// IsModify is the negation of IsReadonly.
func IsModify(statement string) bool {
	return defaultClassifier.IsModify(statement)
}

// IsDangerous reports whether statement is dangerous for DefaultEngine.
func IsDangerous(statement string) bool {
	return defaultClassifier.IsDangerous(statement)
}
