// Package log adapts github.com/sirupsen/logrus to the small Logger/Debugf
// interfaces the matcher, stack, and endpoint packages depend on, the same
// way the teacher's proxy command calls logrus directly at each call site
// (cmd/proxy/proxy.go) rather than inventing its own logging abstraction.
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/cloudbridge/coap/exchange"
)

// Logger is satisfied by *logrus.Entry and *logrus.Logger alike.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// FromLogrus wraps a *logrus.Logger so it satisfies the narrower Logger
// interfaces consumed elsewhere in this module.
func FromLogrus(l *logrus.Logger) Logger {
	return l
}

// Nop discards everything; used by components that received no logger.
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}

// WithExchange attaches exchange identity fields the way the teacher's
// proxy attaches "mid"/"path" fields before logging (cmd/proxy/proxy.go).
func WithExchange(ex *exchange.Exchange) *logrus.Entry {
	if ex == nil || ex.Request == nil {
		return logrus.WithField("exchange", "<nil>")
	}
	return logrus.WithField("mid", ex.Request.ID).WithField("token", ex.Request.Token.String())
}

// WithError mirrors the teacher's logrus.WithError(err) call-site pattern.
func WithError(err error) *logrus.Entry {
	return logrus.WithError(err)
}
