package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"lyfebridge.ai/internal/bridge"
	"lyfebridge.ai/internal/persistence/indexdb"
	persistlog "lyfebridge.ai/internal/persistence/log"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/world"
	"lyfebridge.ai/internal/transport/ws"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var (
		orchURL    = flag.String("url", envOr("LYFE_ORCHESTRATOR_URL", "ws://127.0.0.1:8080/v1/bridge"), "orchestrator websocket url")
		tuningPath = flag.String("tuning", envOr("LYFE_TUNING", "./configs/tuning.yaml"), "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 1337, "seed for follow stopping distances")
		statusAddr = flag.String("status_addr", "127.0.0.1:8081", "status http listen address (empty to disable)")
		logFile    = flag.String("log_file", "", "also write logs to this file, rotated by size")
		journal    = flag.Bool("journal", false, "record every envelope into <data>/traffic/*.jsonl.zst")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite traffic index")
		devPlayers = flag.Bool("dev_players", false, "expose loopback-only /dev/players endpoints on the status server")
	)
	flag.Parse()

	var out io.Writer = os.Stdout
	if f := strings.TrimSpace(*logFile); f != "" {
		rot := &lumberjack.Logger{Filename: f, MaxSize: 50, MaxBackups: 5, MaxAge: 14, Compress: true}
		defer rot.Close()
		out = io.MultiWriter(os.Stdout, rot)
	}
	newLogger := func(name string) *log.Logger {
		return log.New(out, "["+name+"] ", log.LstdFlags|log.Lmicroseconds)
	}
	logger := newLogger("main")

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
		tune.Normalize()
	}

	var recs multiRecorder
	if *journal {
		j := persistlog.NewTrafficJournal(filepath.Join(*dataDir, "traffic"))
		defer j.Close()
		recs = append(recs, j)
	}
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "traffic.sqlite"))
		if err != nil {
			logger.Fatalf("open traffic index: %v", err)
		}
		defer idx.Close()
		recs = append(recs, idx)
	}

	w := world.New(world.Config{Tuning: tune, Logger: newLogger("world"), Seed: *seed})
	client := ws.NewClient(ws.ClientConfig{URL: *orchURL, Logger: newLogger("ws")})
	bcfg := bridge.Config{Tuning: tune, Logger: newLogger("bridge")}
	if len(recs) > 0 {
		bcfg.Recorder = recs
	}
	b := bridge.New(bcfg, w, client)

	w.SetSink(b.HandleEvent)
	client.OnMessage = b.HandleMessage
	client.OnConnect = b.OnConnected

	ctx, cancel := signalContext()
	defer cancel()

	// The world outlives ctx briefly so its STOPPING/STOPPED states can
	// still reach the orchestrator.
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(context.Background()); err != nil {
			logger.Printf("world stopped: %v", err)
		}
	}()
	linkCtx, stopLink := context.WithCancel(context.Background())
	defer stopLink()
	go func() {
		if err := b.Run(linkCtx); err != nil && err != context.Canceled {
			logger.Printf("bridge stopped: %v", err)
		}
	}()
	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		if err := client.Run(linkCtx); err != nil && err != context.Canceled {
			logger.Printf("client stopped: %v", err)
		}
	}()

	var srv *http.Server
	if addr := strings.TrimSpace(*statusAddr); addr != "" {
		deps := statusDeps{bridge: b, client: client, world: w}
		if idx != nil {
			deps.index = idx
		}
		srv = &http.Server{
			Addr:              addr,
			Handler:           newStatusMux(deps, *devPlayers),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("status listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("status server: %v", err)
			}
		}()
	}

	logger.Printf("bridging to %s", *orchURL)
	<-ctx.Done()
	logger.Printf("shutting down")

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	w.Stop()
	<-worldDone
	// Let the writer flush the final SERVER_STATE envelopes.
	time.Sleep(200 * time.Millisecond)
	stopLink()
	client.Close()
	<-clientDone
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

type multiRecorder []bridge.Recorder

func (m multiRecorder) Record(dir, msgType string, raw []byte) {
	for _, r := range m {
		r.Record(dir, msgType, raw)
	}
}
