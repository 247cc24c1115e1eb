package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/app"
)

// Run persists the room table on a fixed interval until ctx is
// cancelled. It is the only blocking I/O in the process and stays off
// the request path in its own goroutine.
func Run(ctx context.Context, store *Store, rooms *app.RoomManager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "snapshot").Msg("runner stopped")
			return
		case <-ticker.C:
			st := Collect(rooms)
			if err := store.Save(st); err != nil {
				log.Error().Err(err).Str("module", "snapshot").Msg("periodic save failed")
				continue
			}
			log.Debug().Str("module", "snapshot").Int("rooms", len(st.Rooms)).Msg("saved")
		}
	}
}
