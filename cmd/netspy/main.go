package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zerolethanh/netspy/internal/config"
	"github.com/zerolethanh/netspy/internal/logger"
	"github.com/zerolethanh/netspy/internal/metrics"
	"github.com/zerolethanh/netspy/internal/poller"
	"github.com/zerolethanh/netspy/internal/producer"
	"github.com/zerolethanh/netspy/internal/region"
	"github.com/zerolethanh/netspy/internal/ui"
)

// defaultGUILog keeps log lines off the screen while the table is shown.
const defaultGUILog = "netspy.log"

func main() {
	fs := config.Flags("netspy")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netspy: %v\n", err)
		os.Exit(1)
	}

	logPath := cfg.LogFile
	if logPath == "" && cfg.GUI {
		logPath = defaultGUILog
	}
	var paths []string
	if logPath != "" {
		paths = append(paths, logPath)
	}
	log, err := logger.New(cfg.Verbosity, paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netspy: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("netspy stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	collector := metrics.New()
	regions := region.NewRegistry(region.WithObserver(collector))
	reg, err := regions.Attach(cfg.Key, cfg.RegionSize)
	if err != nil {
		return err
	}
	log.Info("attached region",
		zap.String("key", cfg.RawKey),
		zap.Int("size", reg.Size()),
		zap.Int("slots", reg.Slots()),
		zap.Bool("gui", cfg.GUI),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Sample {
		pub, err := producer.Register(reg, fmt.Sprintf("sampler-%d", os.Getpid()), log)
		if err != nil {
			return err
		}
		sampler := producer.NewSampler(pub, cfg.Interval, log.Named("sampler"))
		g.Go(func() error {
			defer pub.Close()
			return sampler.Run(ctx)
		})
	}

	var renderer poller.Renderer
	if cfg.GUI {
		table := ui.NewTableRenderer(tview.NewApplication(), cfg.RawKey)
		renderer = table
		g.Go(func() error {
			defer stop()
			return table.Run()
		})
		g.Go(func() error {
			<-ctx.Done()
			table.Stop()
			return nil
		})
	} else {
		renderer = ui.NewConsoleRenderer(os.Stdout)
	}

	p := poller.New(reg, renderer, cfg.Interval, log.Named("poller"))
	g.Go(func() error {
		return p.Run(ctx)
	})

	return g.Wait()
}
