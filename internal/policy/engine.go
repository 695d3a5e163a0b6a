package policy

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/davidahmann/strix/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// RiskCritical is reported when no rule matches.
	RiskCritical = "critical"
	// ApprovalsUnsatisfiable is reported when no rule matches. It is a
	// sentinel, not an approval count.
	ApprovalsUnsatisfiable = 99
	// ReasonNoMatch is the reason attached to every default deny.
	ReasonNoMatch = "No matching policy found for the given artifact type and environment."

	// TimestampLayout formats decision timestamps as UTC ISO-8601 with a Z suffix.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// Origin records where the active table came from.
type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginSource   Origin = "source"
	OriginFallback Origin = "fallback"
)

// Observer receives evaluation and reload outcomes. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveEvaluation(verdict types.Verdict, elapsed time.Duration)
	ObserveReload(version string, err error)
}

type snapshot struct {
	table   Table
	version string
	modTime time.Time
}

// Engine evaluates requests against the active policy table. It is safe for
// concurrent use; the table, its version and the source mod time are swapped
// together as one snapshot.
type Engine struct {
	state atomic.Pointer[snapshot]

	// reloadMu serializes reloads. rejected holds the mod time of the last
	// source revision that failed to load, or nil.
	reloadMu sync.Mutex
	rejected atomic.Pointer[time.Time]

	source   Source
	origin   Origin
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*engineConfig)

type engineConfig struct {
	table         Table
	hasTable      bool
	path          string
	getenv        func(string) string
	defaultPath   string
	source        Source
	requireSource bool
	logger        *zap.Logger
	observer      Observer
	now           func() time.Time
}

// WithTable uses t as the policy table. No source is consulted and the
// engine never reloads.
func WithTable(t Table) Option {
	return func(cfg *engineConfig) {
		cfg.table = t
		cfg.hasTable = true
	}
}

// WithPath sets the explicit policy source path.
func WithPath(path string) Option {
	return func(cfg *engineConfig) { cfg.path = path }
}

// WithGetenv replaces os.Getenv for resolving EnvPolicyPath.
func WithGetenv(getenv func(string) string) Option {
	return func(cfg *engineConfig) { cfg.getenv = getenv }
}

// WithDefaultPath replaces the path next to the executable.
func WithDefaultPath(path string) Option {
	return func(cfg *engineConfig) { cfg.defaultPath = path }
}

// WithSource uses a custom Source instead of resolving a file path.
func WithSource(s Source) Option {
	return func(cfg *engineConfig) { cfg.source = s }
}

// RequireSource disables the built-in table: construction fails with
// ErrConfigurationUnreadable when the source cannot be read.
func RequireSource() Option {
	return func(cfg *engineConfig) { cfg.requireSource = true }
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *engineConfig) { cfg.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(cfg *engineConfig) { cfg.observer = o }
}

// WithClock replaces time.Now for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) { cfg.now = now }
}

// NewEngine loads the initial table. Only a source that exists but fails to
// parse, or an unreadable source combined with RequireSource, is an error;
// otherwise the engine falls back to DefaultTable.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := engineConfig{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.defaultPath == "" {
		cfg.defaultPath = DefaultPath()
	}

	e := &Engine{
		logger:   cfg.logger,
		observer: cfg.observer,
		now:      cfg.now,
	}

	if cfg.hasTable {
		table := cfg.table.Clone()
		version, err := ComputeVersion(table)
		if err != nil {
			return nil, err
		}
		e.origin = OriginExplicit
		e.state.Store(&snapshot{table: table, version: version})
		return e, nil
	}

	source := cfg.source
	if source == nil {
		source = NewFileSource(ResolvePath(cfg.path, cfg.getenv, cfg.defaultPath))
	}

	snap, err := loadSnapshot(source)
	if err == nil {
		e.source = source
		e.origin = OriginSource
		e.state.Store(snap)
		e.logger.Info("policy loaded",
			zap.String("source", source.Location()),
			zap.String("policy_version", snap.version),
		)
		return e, nil
	}
	if errors.Is(err, ErrMalformedPolicySource) {
		return nil, err
	}
	if cfg.requireSource {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigurationUnreadable, source.Location(), err)
	}

	table := DefaultTable()
	version, err := ComputeVersion(table)
	if err != nil {
		return nil, fmt.Errorf("%w: built-in table: %v", ErrConfigurationUnreadable, err)
	}
	e.origin = OriginFallback
	e.state.Store(&snapshot{table: table, version: version})
	e.logger.Warn("policy source unavailable, using built-in table",
		zap.String("source", source.Location()),
		zap.String("policy_version", version),
		zap.Error(err),
	)
	return e, nil
}

// loadSnapshot reads the mod time before the contents so that a write racing
// the load is picked up by the next change check.
func loadSnapshot(source Source) (*snapshot, error) {
	modTime, err := source.ModTime()
	if err != nil {
		return nil, err
	}
	loaded, err := source.Load()
	if err != nil {
		return nil, err
	}
	return &snapshot{table: loaded.Table, version: loaded.Version, modTime: modTime}, nil
}

// Changed reports whether the source mod time differs from the one recorded
// for the active table. It is always false for explicit and fallback tables.
func (e *Engine) Changed() bool {
	if e.source == nil {
		return false
	}
	modTime, err := e.source.ModTime()
	if err != nil {
		return false
	}
	return !modTime.Equal(e.state.Load().modTime)
}

// Refresh reloads the table if the source changed. A failed reload leaves the
// active table in place, and the same source revision is not retried.
func (e *Engine) Refresh() (bool, error) {
	if e.source == nil {
		return false, nil
	}
	modTime, err := e.source.ModTime()
	if err != nil || modTime.Equal(e.state.Load().modTime) || e.isRejected(modTime) {
		return false, nil
	}

	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	// Another caller may have finished the same reload while we waited.
	current := e.state.Load()
	modTime, err = e.source.ModTime()
	if err != nil || modTime.Equal(current.modTime) || e.isRejected(modTime) {
		return false, nil
	}

	snap, err := loadSnapshot(e.source)
	if err != nil {
		e.rejected.Store(&modTime)
		e.logger.Warn("policy reload failed, keeping active table",
			zap.String("source", e.source.Location()),
			zap.String("policy_version", current.version),
			zap.Error(err),
		)
		if e.observer != nil {
			e.observer.ObserveReload(current.version, err)
		}
		return false, err
	}

	e.rejected.Store(nil)
	e.state.Store(snap)
	e.logger.Info("policy reloaded",
		zap.String("source", e.source.Location()),
		zap.String("previous_version", current.version),
		zap.String("policy_version", snap.version),
	)
	if e.observer != nil {
		e.observer.ObserveReload(snap.version, nil)
	}
	return true, nil
}

func (e *Engine) isRejected(modTime time.Time) bool {
	rejected := e.rejected.Load()
	return rejected != nil && rejected.Equal(modTime)
}

// Evaluate refreshes the table if needed and decides req. It never fails.
func (e *Engine) Evaluate(req types.EvaluationRequest) types.Decision {
	start := time.Now()
	_, _ = e.Refresh()

	snap := e.state.Load()
	decision := Evaluate(snap.table, snap.version, req, e.now())

	if e.observer != nil {
		e.observer.ObserveEvaluation(decision.Decision, time.Since(start))
	}
	return decision
}

// Version returns the active policy version.
func (e *Engine) Version() string {
	return e.state.Load().version
}

// Table returns a copy of the active table.
func (e *Engine) Table() Table {
	return e.state.Load().table.Clone()
}

func (e *Engine) Origin() Origin {
	return e.origin
}

// Location returns the backing source location, or "" when there is none.
func (e *Engine) Location() string {
	if e.source == nil {
		return ""
	}
	return e.source.Location()
}

// Evaluate decides req against table. The actions list is not consulted.
func Evaluate(table Table, version string, req types.EvaluationRequest, at time.Time) types.Decision {
	decision := types.Decision{
		Decision:          types.VerdictDeny,
		RiskLevel:         RiskCritical,
		ApprovalsRequired: ApprovalsUnsatisfiable,
		Constraints:       types.Constraints{},
		PolicyVersion:     version,
		Reason:            ReasonNoMatch,
		Timestamp:         at.UTC().Format(TimestampLayout),
	}

	if req.ArtifactType == nil || req.Environment == nil {
		return decision
	}
	rule, ok := table.Lookup(*req.ArtifactType, *req.Environment)
	if !ok {
		return decision
	}

	environment := *req.Environment
	decision.RiskLevel = rule.RiskLevel
	decision.ApprovalsRequired = rule.ApprovalsRequired
	decision.Constraints = rule.Constraints.Clone()

	if rule.ApprovalsRequired == 0 {
		decision.Decision = types.VerdictAllow
		decision.Reason = "Low-risk action in " + environment + " environment. No approval required."
		return decision
	}

	decision.Decision = types.VerdictRequireApproval
	decision.Reason = capitalize(rule.RiskLevel) + "-risk action in " + environment +
		" environment. Requires " + strconv.Itoa(rule.ApprovalsRequired) + " approval(s)."
	return decision
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return cases.Upper(language.Und).String(string(r)) + cases.Lower(language.Und).String(s[size:])
}
