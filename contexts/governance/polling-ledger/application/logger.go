package application

import "log/slog"

const LogModule = "governance/polling-ledger"

// ResolveLogger guarantees a non-nil logger for application and worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
