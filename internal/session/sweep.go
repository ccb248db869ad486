package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is a Store that can drop expired sessions in bulk.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweep calls DeleteExpired every interval until ctx is done.
func Sweep(ctx context.Context, s Sweeper, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("sweep expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("swept expired sessions")
			}
		}
	}
}
