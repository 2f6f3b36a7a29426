package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type contextKey string

// Context keys understood by WithContext
const (
	RequestIDKey  contextKey = "request_id"
	SessionKey    contextKey = "session_address"
	WorkflowIDKey contextKey = "workflow_id"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// NewDiscard creates a logger that drops every entry, used by tests
func NewDiscard() *Logger {
	l := New("panic")
	l.SetOutput(io.Discard)
	return l
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithContext creates a logger with context-aware fields
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithFields(logrus.Fields{})
	if ctx == nil {
		return entry
	}

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}

	if address := ctx.Value(SessionKey); address != nil {
		entry = entry.WithField("session_address", address)
	}

	if workflowID := ctx.Value(WorkflowIDKey); workflowID != nil {
		entry = entry.WithField("workflow_id", workflowID)
	}

	return entry
}

// Audit logs audit events with structured format
func (l *Logger) Audit(address, action, resource string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"audit":    true,
		"address":  address,
		"action":   action,
		"resource": resource,
		"success":  success,
		"details":  details,
	})

	if success {
		entry.Info("Audit event")
	} else {
		entry.Warn("Audit event failed")
	}
}

// Performance logs performance metrics
func (l *Logger) Performance(operation string, duration int64, details map[string]interface{}) {
	l.Logger.WithFields(logrus.Fields{
		"performance": true,
		"operation":   operation,
		"duration_ms": duration,
		"details":     details,
	}).Debug("Performance metric")
}

// Transaction logs a lifecycle transition of a ledger transaction
func (l *Logger) Transaction(ctx context.Context, txID, function, state, txHash string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"blockchain": true,
		"tx_id":      txID,
		"function":   function,
		"state":      state,
	})
	if txHash != "" {
		entry = entry.WithField("tx_hash", txHash)
	}

	if err != nil {
		entry.WithError(err).Warn("Ledger transaction transition")
		return
	}
	entry.Info("Ledger transaction transition")
}

// LedgerRead logs a view-function query against the contract
func (l *Logger) LedgerRead(ctx context.Context, function string, duration int64, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"blockchain":  true,
		"function":    function,
		"duration_ms": duration,
	})

	if err != nil {
		entry.WithError(err).Warn("Ledger read failed")
		return
	}
	entry.Debug("Ledger read completed")
}

// PartialFailure logs a sub-query that failed inside a batched read
func (l *Logger) PartialFailure(ctx context.Context, query string, err error) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"partial_failure": true,
		"query":           query,
	}).WithError(err).Warn("Batched ledger read degraded to empty result")
}

// Degraded logs a non-fatal downgrade of display fidelity
func (l *Logger) Degraded(ctx context.Context, ref string, kind string, err error) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"degraded": true,
		"ref":      ref,
		"entity":   kind,
	}).WithError(err).Warn("Metadata unavailable, using synthesized record")
}

// HTTPRequest logs HTTP request events
func (l *Logger) HTTPRequest(ctx context.Context, method, path, clientIP string, statusCode int, duration int64) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"http_request": true,
		"method":       method,
		"path":         path,
		"client_ip":    clientIP,
		"status_code":  statusCode,
		"duration_ms":  duration,
	})

	if statusCode >= 400 {
		entry.Warn("HTTP request completed with error")
	} else {
		entry.Info("HTTP request completed")
	}
}
