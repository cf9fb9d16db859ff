package ws

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Stats is a point-in-time view of the relay.
type Stats struct {
	Rooms       int
	Members     int
	Sessions    int
	Connections int
	Dropped     uint64
}

// Stats may be called from any goroutine.
func (h *Hub) Stats() Stats {
	rs := h.registry.Stats()
	return Stats{
		Rooms:       rs.Rooms,
		Members:     rs.Members,
		Sessions:    int(h.inRoom.Load()),
		Connections: int(h.connections.Load()),
		Dropped:     h.dropped.Load(),
	}
}

func (h *Hub) logStats() {
	s := h.Stats()
	h.logger.Info("stats", "rooms", s.Rooms, "members", s.Members, "sessions", s.Sessions,
		"connections", s.Connections, "dropped", s.Dropped)
}

// startStats schedules the periodic stats log line and returns the function stopping it.
func (h *Hub) startStats() func() {
	if h.cfg.StatsCron == "" {
		return func() {}
	}
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := cronRunner.AddFunc(h.cfg.StatsCron, h.logStats); err != nil {
		h.logger.Error("could not schedule stats job", "spec", h.cfg.StatsCron, "error", err)
		return func() {}
	}
	cronRunner.Start()
	return func() {
		<-cronRunner.Stop().Done()
	}
}
