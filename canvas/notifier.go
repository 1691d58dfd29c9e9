package canvas

import (
	"log/slog"
	"time"
)

// Notifier receives persistence failures that need the user's attention.
type Notifier interface {
	// Error reports a failed operation as a toast-style notification.
	Error(op string, err error)

	// TableMissing asks the user to create table before nodeID's data can
	// be expanded.
	TableMissing(nodeID, table string)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Error implements Notifier.
func (n LogNotifier) Error(op string, err error) {
	n.logger().Error("operation failed", slog.String("op", op), slog.String("error", err.Error()))
}

// TableMissing implements Notifier.
func (n LogNotifier) TableMissing(nodeID, table string) {
	n.logger().Warn("data table does not exist; create it first",
		slog.String("node_id", nodeID),
		slog.String("table", table),
	)
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// Banner is a transient error message shown on a node.
type Banner struct {
	NodeID  string
	Message string
	Expires time.Time
}
