package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", envOr("LYFE_ORCHESTRATOR_ADDR", ":8080"), "http listen address")
		tuningPath = flag.String("tuning", envOr("LYFE_TUNING", "./configs/tuning.yaml"), "tuning.yaml supplying the scene and agents to send")
		taskEvery  = flag.Duration("task_every", 5*time.Second, "interval between random move tasks (0 disables)")
		seed       = flag.Int64("seed", 42, "seed for task choices")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[orchestrator] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	d, err := newDirector(tune, logger, *seed, uuid.NewString)
	if err != nil {
		logger.Fatalf("director: %v", err)
	}

	srv := ws.NewServer(log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	srv.OnConnect = func(p *ws.Peer) {
		b, err := d.gameData()
		if err != nil {
			logger.Printf("encode game data: %v", err)
			return
		}
		if err := p.Send(b); err != nil {
			logger.Printf("send game data to peer %d: %v", p.ID(), err)
		}
	}
	srv.OnMessage = func(_ *ws.Peer, b []byte) { d.observe(b) }

	ctx, cancel := signalContext()
	defer cancel()

	if *taskEvery > 0 {
		go func() {
			t := time.NewTicker(*taskEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if len(srv.Peers()) == 0 {
						continue
					}
					_, b, err := d.nextTask()
					if err != nil {
						logger.Printf("encode task: %v", err)
						continue
					}
					srv.Broadcast(b)
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bridge", srv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	hs := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		st := d.stats()
		logger.Printf("tasks completed=%d failed=%d pending=%d snapshots=%d", st.Completed, st.Failed, st.Pending, st.Snapshots)
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = hs.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
