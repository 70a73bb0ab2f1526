package service

import (
	"github.com/Lexcubia/EM-automate/internal/logger"
)

// Notification severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notifier is the narrow interface to the application shell's notification
// sink. The engine never knows how messages are presented to the operator.
type Notifier interface {
	Notify(severity, message string)
}

// LogNotifier is the default sink: notifications go to the structured log.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogNotifier{logger: log}
}

// Notify writes the notification at a level matching its severity.
func (n *LogNotifier) Notify(severity, message string) {
	entry := n.logger.WithField(logger.FieldComponent, "notifier")
	switch severity {
	case SeverityError:
		entry.Error(message)
	case SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}
