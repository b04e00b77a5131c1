package participant

import (
	"github.com/pkg/errors"

	"github.com/dreamware/ringkv/internal/wal"
)

// Rebuild replays the transaction log after a restart. Every logged COMMIT
// is applied again. A trailing request with no decision is restored as the
// pending operation and the participant resumes in WAIT with its log intact;
// otherwise the log is truncated and a participant with history is READY.
func (p *Participant) Rebuild() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := p.log.Len()
	var target *operation
	err := p.log.Iterate(func(rec wal.Record) error {
		switch rec.Kind {
		case wal.KindPutReq, wal.KindDelReq:
			key, value := rec.KeyValue()
			target = &operation{kind: rec.Kind, key: key, value: value}
		case wal.KindCommit:
			if target == nil {
				return nil
			}
			if err := p.apply(target); err != nil {
				return errors.Wrapf(err, "replay %s %q", target.kind, target.key)
			}
			target = nil
		case wal.KindAbort:
			target = nil
		default:
			p.logger.WithField("kind", rec.Kind).Warn("skipping unknown log record")
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "rebuild")
	}

	if target != nil {
		p.pending = target
		p.state = Wait
		p.logger.WithField("key", target.key).Info("rebuilt with undecided transaction")
		return nil
	}

	p.pending = nil
	if records == 0 {
		return nil
	}
	if err := p.log.Truncate(); err != nil {
		return errors.Wrap(err, "rebuild")
	}
	p.state = Ready
	p.logger.WithField("records", records).Info("rebuilt from log")
	return nil
}
