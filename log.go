package reptree

import "go.uber.org/zap"

// diagnostics wraps a *zap.Logger the way edirooss-zmux-server's
// redis.Client wraps its connection: a single named logger field,
// structured fields on every call instead of fmt.Sprintf, and a safe
// no-op default so embedding RepTree never requires a logger.
type diagnostics struct {
	log *zap.Logger
}

func newDiagnostics(log *zap.Logger) diagnostics {
	if log == nil {
		log = zap.NewNop()
	}
	return diagnostics{log: log.Named("reptree")}
}

// benignRejection logs a once-per-occurrence diagnostic for a cycle-
// inducing move the engine silently refused (spec.md §4.1, §7).
func (d diagnostics) benignRejection(op MoveOp, reason string) {
	d.log.Info("move rejected",
		zap.String("op", op.OpID.String()),
		zap.String("target", op.TargetID),
		zap.String("reason", reason),
	)
}

// corruptionSignal logs the case spec.md §4.1 calls out explicitly: a
// cycle encountered mid-walk during ancestor detection, which the walk
// treats as "not an ancestor" to terminate instead of looping forever.
func (d diagnostics) corruptionSignal(vertexID string) {
	d.log.Warn("cycle encountered during ancestor walk, treating as non-ancestor",
		zap.String("vertex", vertexID),
	)
}

// historyUnavailable logs the async "pruned-history" failure case
// (spec.md §4.3, §7).
func (d diagnostics) historyUnavailable(peerID string, lo, hi uint64) {
	d.log.Error("history unavailable for requested range",
		zap.String("peer", peerID),
		zap.Uint64("lo", lo),
		zap.Uint64("hi", hi),
	)
}
