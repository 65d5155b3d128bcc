package daemon

import (
	"errors"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"daemonkit/entry"
	"daemonkit/logging"
	"daemonkit/quit"
)

// executorMain runs a single entry invocation. It resolves the entry,
// installs the termination handler that trips the cancellation token, and
// translates the entry's result into an exit status. It never touches the
// marker file and never retries; both are its supervisor's job.
func executorMain(spec *LaunchSpec, logger *slog.Logger) int {
	fn, err := entry.Resolve(spec.Entry)
	if err != nil {
		if errors.Is(err, entry.ErrNotFound) {
			logger.Error("entry not registered", logging.String(logging.FieldEntry, spec.Entry))
		} else {
			logger.Error("resolve entry", logging.Error(err))
		}
		return exitBadSpec
	}

	tok := quit.NewToken()
	tok.Install(os.Interrupt, unix.SIGTERM)

	logger.Info("entry starting", logging.String(logging.FieldEntry, spec.Entry))
	if err := fn(spec.Args, tok); err != nil {
		logger.Error("entry failed",
			logging.String(logging.FieldEntry, spec.Entry),
			logging.Error(err))
		return exitEntryFailed
	}
	logger.Info("entry succeeded", logging.String(logging.FieldEntry, spec.Entry))
	return exitOK
}
