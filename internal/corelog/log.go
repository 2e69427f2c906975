// Package corelog centralizes structured logging behind one internal seam,
// the way go-ethereum keeps its own `log` package between callers and the
// underlying backend. Here the backend is logrus, the same structured
// logger the Stellar disbursement-platform processor uses via
// stellar/go/support/log (itself a logrus wrapper).
package corelog

import (
	"context"

	"github.com/go-stack/stack"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
	base.AddHook(callerHook{})
}

// callerHook attaches the immediate caller's file:line to warning-and-above
// entries, the same caller-capture go-ethereum's own log package gets from
// github.com/go-stack/stack (there, to decorate Crit/Error frames; here,
// to make a multi-task daemon's interleaved log lines attributable).
type callerHook struct{}

func (callerHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (callerHook) Fire(entry *logrus.Entry) error {
	// Skip this hook's own Fire frame and logrus' internal call chain down
	// to the WithError/WithField/Error call site.
	call := stack.Caller(6)
	entry.Data["caller"] = call.String()
	return nil
}

// Entry is the logging handle tasks carry through a processing iteration.
type Entry = logrus.Entry

// Root returns the base, field-less log entry.
func Root() *Entry {
	return logrus.NewEntry(base)
}

// Ctx returns the logger attached to ctx via Set, or the root logger if
// none was attached.
func Ctx(ctx context.Context) *Entry {
	if e, ok := ctx.Value(ctxKey{}).(*Entry); ok && e != nil {
		return e
	}
	return Root()
}

// Set attaches entry to ctx so downstream Ctx(ctx) calls inherit its fields,
// mirroring the reference transaction_worker.go's log.Set/log.Ctx pattern.
func Set(ctx context.Context, entry *Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// WithTx returns a context logger carrying the standard per-transaction
// fields every task attaches before doing row-scoped work.
func WithTx(ctx context.Context, txID string, fields logrus.Fields) context.Context {
	merged := logrus.Fields{"tx_id": txID}
	for k, v := range fields {
		merged[k] = v
	}
	return Set(ctx, Ctx(ctx).WithFields(merged))
}

// SetLevel adjusts the base logger's verbosity; used by cmd/depositsd to
// wire --verbose.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
