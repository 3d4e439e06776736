package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(s.deps.Probes))
	)
	// every probe runs to completion so each gets its own verdict
	var g errgroup.Group
	for name, probe := range s.deps.Probes {
		g.Go(func() error {
			res := "ok"
			if err := probe(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := healthResponse{Status: "ok", Checks: checks}
	code := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			out.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, out)
}
