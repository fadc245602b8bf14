package engine

import "log/slog"

// Notifier receives the transient user-visible messages the engine emits
// around sync and mutation outcomes. The UI layer renders them as toasts;
// the default implementation just logs.
type Notifier interface {
	Info(title, detail string)
	Success(title, detail string)
	Error(title, detail string)
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that writes to the default slog logger.
func NewLogNotifier() Notifier {
	return &logNotifier{logger: slog.Default()}
}

func (n *logNotifier) Info(title, detail string) {
	n.logger.Info("notification", "title", title, "detail", detail)
}

func (n *logNotifier) Success(title, detail string) {
	n.logger.Info("notification", "title", title, "detail", detail)
}

func (n *logNotifier) Error(title, detail string) {
	n.logger.Warn("notification", "title", title, "detail", detail)
}
