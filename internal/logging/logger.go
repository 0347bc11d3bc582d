// Package logging provides config-driven categorized logging for cogkernel.
// Every kernel module logs through its own category; output goes to a single
// zap core so the host can route, filter and encode it in one place.
// Logging is controlled by debug_mode in the config - when false, nothing is written.
package logging

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot           Category = "boot"           // Construction, config validation
	CategoryKernel         Category = "kernel"         // Tick scheduling, rollback
	CategoryStore          Category = "store"          // Knowledge store, canvas, task queue
	CategoryPerception     Category = "perception"     // Environment deltas -> facts, contradictions
	CategoryPrediction     Category = "prediction"     // Rule firing and chaining
	CategoryRepair         Category = "repair"         // Task consumption, rule invalidation
	CategoryDream          Category = "dream"          // Hypothesis generation
	CategoryPatterns       Category = "patterns"       // Sequence mining and abstraction
	CategoryAgents         Category = "agents"         // Multi-agent coordination
	CategoryCounterfactual Category = "counterfactual" // What-if scenarios
	CategoryAdaptive       Category = "adaptive"       // Granularity switching
	CategoryPolicy         Category = "policy"         // Q-learning
	CategoryBayes          Category = "bayes"          // Causal network
	CategoryPlanner        Category = "planner"        // Scenario tree search
	CategoryLedger         Category = "ledger"         // Persistence
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	Categories map[string]bool
	OutputPath string // "stderr" when empty
}

// Logger writes to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger // nil when the category is disabled
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	base      = zap.NewNop()
	config    Config
	configMu  sync.RWMutex
)

// Configure builds the zap backend from cfg. With DebugMode off every logger
// becomes a no-op.
func Configure(cfg Config) error {
	if !cfg.DebugMode {
		setBase(zap.NewNop(), cfg)
		return nil
	}

	level, err := zapcore.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.Encoding = "console"
	if cfg.JSONFormat {
		zc.Encoding = "json"
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{defaultString(cfg.OutputPath, "stderr")}
	zc.ErrorOutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	setBase(l, cfg)
	Boot("logging initialized: level=%s json=%v categories=%d", level, cfg.JSONFormat, len(cfg.Categories))
	return nil
}

// UseLogger routes every category to l. Intended for hosts that already own a
// zap logger and for tests using zaptest/observer.
func UseLogger(l *zap.Logger, cfg Config) {
	cfg.DebugMode = true
	setBase(l, cfg)
}

func setBase(l *zap.Logger, cfg Config) {
	configMu.Lock()
	base = l
	config = cfg
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// IsDebugMode returns whether logging is enabled at all.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if IsCategoryEnabled(category) {
		configMu.RLock()
		l.sugar = base.With(zap.String("category", string(category))).Sugar()
		configMu.RUnlock()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// StructuredLog writes a message with key-value fields. Keys are emitted in
// sorted order so identical calls produce identical lines.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.sugar == nil {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	switch level {
	case "debug":
		l.sugar.Debugw(msg, kv...)
	case "warn":
		l.sugar.Warnw(msg, kv...)
	case "error":
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// Sync flushes the backend (call at shutdown)
func Sync() {
	configMu.RLock()
	l := base
	configMu.RUnlock()
	_ = l.Sync()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts a timer for a performance measurement
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// KernelDebug logs debug to the kernel category
func KernelDebug(format string, args ...interface{}) { Get(CategoryKernel).Debug(format, args...) }

// KernelWarn logs warning to the kernel category
func KernelWarn(format string, args ...interface{}) { Get(CategoryKernel).Warn(format, args...) }

// KernelError logs error to the kernel category
func KernelError(format string, args ...interface{}) { Get(CategoryKernel).Error(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// Perception logs to the perception category
func Perception(format string, args ...interface{}) { Get(CategoryPerception).Info(format, args...) }

// PerceptionDebug logs debug to the perception category
func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debug(format, args...)
}

// PredictionDebug logs debug to the prediction category
func PredictionDebug(format string, args ...interface{}) {
	Get(CategoryPrediction).Debug(format, args...)
}

// Repair logs to the repair category
func Repair(format string, args ...interface{}) { Get(CategoryRepair).Info(format, args...) }

// RepairDebug logs debug to the repair category
func RepairDebug(format string, args ...interface{}) { Get(CategoryRepair).Debug(format, args...) }

// Dream logs to the dream category
func Dream(format string, args ...interface{}) { Get(CategoryDream).Info(format, args...) }

// DreamDebug logs debug to the dream category
func DreamDebug(format string, args ...interface{}) { Get(CategoryDream).Debug(format, args...) }

// DreamWarn logs warning to the dream category
func DreamWarn(format string, args ...interface{}) { Get(CategoryDream).Warn(format, args...) }

// PatternsDebug logs debug to the patterns category
func PatternsDebug(format string, args ...interface{}) { Get(CategoryPatterns).Debug(format, args...) }

// AgentsDebug logs debug to the agents category
func AgentsDebug(format string, args ...interface{}) { Get(CategoryAgents).Debug(format, args...) }

// CounterfactualDebug logs debug to the counterfactual category
func CounterfactualDebug(format string, args ...interface{}) {
	Get(CategoryCounterfactual).Debug(format, args...)
}

// Adaptive logs to the adaptive category
func Adaptive(format string, args ...interface{}) { Get(CategoryAdaptive).Info(format, args...) }

// PolicyDebug logs debug to the policy category
func PolicyDebug(format string, args ...interface{}) { Get(CategoryPolicy).Debug(format, args...) }

// BayesDebug logs debug to the bayes category
func BayesDebug(format string, args ...interface{}) { Get(CategoryBayes).Debug(format, args...) }

// PlannerDebug logs debug to the planner category
func PlannerDebug(format string, args ...interface{}) { Get(CategoryPlanner).Debug(format, args...) }

// Ledger logs to the ledger category
func Ledger(format string, args ...interface{}) { Get(CategoryLedger).Info(format, args...) }

// LedgerError logs error to the ledger category
func LedgerError(format string, args ...interface{}) { Get(CategoryLedger).Error(format, args...) }
