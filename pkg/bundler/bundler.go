package bundler

import (
	"github.com/libbundler/libbundler/internal/bundle"
	"github.com/libbundler/libbundler/internal/inspect"
	"github.com/libbundler/libbundler/internal/inspect/macho"
	"github.com/libbundler/libbundler/internal/logging"
)

type (
	Bundler     = bundle.Bundler
	Graph       = bundle.Graph
	Node        = bundle.Node
	Edge        = bundle.Edge
	Plan        = bundle.Plan
	Copy        = bundle.Copy
	Rewrite     = bundle.Rewrite
	RPathChange = bundle.RPathChange
	Rules       = bundle.Rules
	Status      = bundle.Status

	// Inspector reads and modifies the load commands of binaries.
	Inspector = inspect.Inspector
	Binary    = inspect.Binary
	Reference = inspect.Reference

	UnresolvableError = bundle.UnresolvableError
	InspectionError   = bundle.InspectionError
	CollisionError    = bundle.CollisionError
	CopyError         = bundle.CopyError
	RewriteError      = bundle.RewriteError
	RPathError        = bundle.RPathError

	// Logger is accepted by Bundler.WithLogger. Build one with NewLogger.
	Logger       = logging.Logger
	LoggerConfig = logging.Config
	LogLevel     = logging.Level
	LogFormat    = logging.Format
)

const (
	DefaultLibDir = bundle.DefaultLibDir

	StatusExcluded = bundle.StatusExcluded
	StatusBundle   = bundle.StatusBundle
	StatusBundled  = bundle.StatusBundled

	LevelDebug = logging.Debug
	LevelInfo  = logging.Info
	LevelWarn  = logging.Warn
	LevelError = logging.Error

	FormatText = logging.Text
	FormatJSON = logging.JSON
)

var (
	ErrUnresolvable        = bundle.ErrUnresolvable
	ErrInspection          = bundle.ErrInspection
	ErrNamingCollision     = bundle.ErrNamingCollision
	ErrCopy                = bundle.ErrCopy
	ErrRewrite             = bundle.ErrRewrite
	ErrDestinationConflict = bundle.ErrDestinationConflict
	ErrToolNotFound        = macho.ErrToolNotFound
)

// New returns a Bundler reading binaries with debug/macho and modifying them
// with install_name_tool. When the tool is missing the Bundler is still
// returned, usable for Discover and Plan, together with an error matching
// ErrToolNotFound.
func New() (*Bundler, error) {
	i, err := macho.New()
	b, cerr := NewWithInspector(i)
	if cerr != nil {
		return nil, cerr
	}
	return b, err
}

// NewWithInspector returns a Bundler using i, with repeated inspections of the
// same file served from memory.
func NewWithInspector(i Inspector) (*Bundler, error) {
	c, err := inspect.NewCache(i, 0)
	if err != nil {
		return nil, err
	}
	return bundle.New().WithInspector(c).WithLogger(logging.NewNop()), nil
}

// NewLogger returns a leveled logger writing text or JSON lines to
// cfg.Output, stderr when unset. Bundlers log nothing unless given one.
func NewLogger(cfg LoggerConfig) *Logger {
	return logging.NewLogger(cfg)
}

// NewRules returns exclusion rules from path prefixes and glob patterns.
func NewRules(prefixes, patterns []string) (*Rules, error) {
	return bundle.NewRules(prefixes, patterns)
}

// DefaultRules excludes the system library prefixes.
func DefaultRules() *Rules {
	return bundle.DefaultRules()
}
