package trashcan

import (
	"time"

	"trashcan/internal/metrics"
)

// observer returns the completion callback for one dispatch. It runs exactly
// once, on whichever goroutine resolved the deletion.
func (t *Trashcan) observer(path, canonical string, start time.Time) func(error) {
	return func(err error) {
		elapsed := time.Since(start)
		metrics.RecordDeletion(t.strategy.String(), err, elapsed)

		if err != nil {
			t.logger.Error().
				Err(err).
				Str("path", path).
				Msgf("Exception deleting %s", path)
		}

		if t.recorder == nil {
			return
		}
		out := Outcome{
			Path:      path,
			Canonical: canonical,
			Strategy:  t.strategy,
			Err:       err,
			Duration:  elapsed,
		}
		if rerr := t.recorder.Record(out); rerr != nil {
			metrics.RecordHistoryError()
			t.logger.Warn().Err(rerr).Str("path", path).Msg("record deletion outcome")
		}
	}
}
