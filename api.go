package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrtronium/brick/ledger"
)

const timeFormat = time.RFC3339

func (robo *Robot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	robo.apiRoutes(mux)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// apiRoutes adds the game's API routes to mux.
func (robo *Robot) apiRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ledger/{guild}/{user}", robo.apiLedger)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

type apiRecord struct {
	Guild      string `json:"guild"`
	User       string `json:"user"`
	Bricks     int    `json:"bricks"`
	Max        int    `json:"max"`
	LastSlap   string `json:"last_slap,omitzero"`
	Burning    bool   `json:"burning"`
	ClaimDay   string `json:"claim_day,omitzero"`
	Crafting   bool   `json:"crafting"`
	MutedUntil string `json:"muted_until,omitzero"`
}

func (robo *Robot) apiLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "ledger"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	id := ledger.Identity{User: r.PathValue("user"), Guild: r.PathValue("guild")}
	rec, ok, err := robo.game.Balance(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "couldn't read ledger", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		log.WarnContext(ctx, "no record", slog.String("guild", id.Guild), slog.String("user", id.User))
		jsonerror(w, http.StatusNotFound, "no ledger record")
		return
	}
	u := struct {
		Data   apiRecord `json:"data"`
		Status int       `json:"status"`
	}{
		Data: apiRecord{
			Guild:    id.Guild,
			User:     id.User,
			Bricks:   rec.Bricks,
			Max:      robo.game.Config().Max,
			Burning:  rec.Burning,
			ClaimDay: rec.ClaimDay,
			Crafting: robo.game.Crafting(id),
		},
		Status: http.StatusOK,
	}
	if !rec.LastSlap.IsZero() {
		u.Data.LastSlap = rec.LastSlap.UTC().Format(timeFormat)
	}
	if t, ok := robo.game.MutedUntil(id); ok {
		u.Data.MutedUntil = t.UTC().Format(timeFormat)
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}
