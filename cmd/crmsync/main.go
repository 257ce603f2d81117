package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "io"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "text/tabwriter"
    "time"

    redis "github.com/redis/go-redis/v9"

    "crmsync/internal/api"
    "crmsync/internal/auth"
    "crmsync/internal/buildinfo"
    "crmsync/internal/config"
    "crmsync/internal/crm"
    "crmsync/internal/dispatch"
    "crmsync/internal/events"
    "crmsync/internal/mapping"
    "crmsync/internal/metrics"
    "crmsync/internal/queue"
    "crmsync/internal/retry"
    "crmsync/internal/store"
    "crmsync/internal/worker"
)

func main() {
    cfgPath := flag.String("config", "", "path to YAML config file (default $CONFIG_FILE)")
    listMethods := flag.Bool("payment-methods", false, "print the CRM payment methods and exit")
    version := flag.Bool("version", false, "print build info and exit")
    flag.Parse()

    if *version {
        fmt.Println(buildinfo.Info())
        return
    }
    cfg, err := config.Load(*cfgPath)
    if err != nil {
        fmt.Fprintln(os.Stderr, "config:", err)
        os.Exit(2)
    }
    log := config.NewLogger(cfg.Log, os.Stderr)
    slog.SetDefault(log)

    client := crm.NewClient(crm.Options{
        BaseURL: cfg.CRM.BaseURL,
        Token:   cfg.CRM.Token,
        Timeout: cfg.CRMTimeout(),
        RPS:     cfg.CRM.RateRPS,
        Burst:   cfg.CRM.RateBurst,
    })
    if *listMethods {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()
        if err := printPaymentMethods(ctx, os.Stdout, client, paymentMethods(cfg)); err != nil {
            log.Error("list payment methods failed", "err", err)
            os.Exit(1)
        }
        return
    }
    if cfg.CRM.Token == "" { log.Warn("KEYCRM_KEY is not set; CRM calls will be rejected") }

    if err := run(cfg, client, log); err != nil {
        log.Error("fatal", "err", err)
        os.Exit(1)
    }
}

type backends struct {
    queue   queue.Store
    links   store.Linkage
    history store.History
    broker  events.Broker
    ready   func(context.Context) error
    closers []io.Closer
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
    b := &backends{}
    if cfg.RedisURL == "" {
        log.Warn("REDIS_URL not set; using in-memory queue, nothing survives a restart")
        b.queue = queue.NewMemory()
        b.links = store.NewMemoryLinkage()
        b.history = store.NewMemoryHistory()
        b.broker = events.NewMemory()
        b.ready = func(context.Context) error { return nil }
    } else {
        rdb, err := queue.NewRedisClient(cfg.RedisURL)
        if err != nil { return nil, err }
        if err := rdb.Ping(ctx).Err(); err != nil {
            _ = rdb.Close()
            return nil, fmt.Errorf("redis: %w", err)
        }
        b.closers = append(b.closers, rdb)
        b.queue = queue.NewRedisStore(rdb)
        b.links = store.NewRedisLinkage(rdb)
        b.history = store.NewRedisHistory(rdb)
        b.broker = events.NewRedisBroker(rdb)
        b.ready = func(ctx context.Context) error { return pingRedis(ctx, rdb) }
    }
    if cfg.DatabaseURL != "" {
        pg, err := store.NewPostgresLinkage(cfg.DatabaseURL)
        if err != nil {
            b.close()
            return nil, fmt.Errorf("postgres: %w", err)
        }
        if err := pg.Migrate(ctx); err != nil {
            _ = pg.Close()
            b.close()
            return nil, fmt.Errorf("postgres migrate: %w", err)
        }
        b.closers = append(b.closers, pg)
        b.links = pg
        queueReady := b.ready
        b.ready = func(ctx context.Context) error {
            if err := queueReady(ctx); err != nil { return err }
            return pg.Ping(ctx)
        }
    }
    return b, nil
}

func pingRedis(ctx context.Context, rdb *redis.Client) error { return rdb.Ping(ctx).Err() }

func (b *backends) close() {
    for i := len(b.closers) - 1; i >= 0; i-- { _ = b.closers[i].Close() }
}

func paymentMethods(cfg config.Config) mapping.PaymentMethods {
    if len(cfg.CRM.PaymentMethods) > 0 { return mapping.PaymentMethods(cfg.CRM.PaymentMethods) }
    return mapping.DefaultPaymentMethods()
}

func run(cfg config.Config, client *crm.Client, log *slog.Logger) error {
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    metrics.RegisterDefault()
    be, err := openBackends(ctx, cfg, log)
    if err != nil { return err }
    defer be.close()

    q := queue.New(be.queue, be.broker, log)
    sched := retry.NewScheduler(be.queue, retry.Policy{
        MaxRetries:     cfg.Retry.MaxRetries,
        InitialBackoff: cfg.Retry.InitialBackoff(),
        MaxBackoff:     cfg.Retry.MaxBackoff(),
        Multiplier:     cfg.Retry.Multiplier,
        Jitter:         time.Second,
    })
    d := dispatch.New(client, be.links, dispatch.Options{
        Mapping:           mapping.Options{SourceID: cfg.CRM.SourceID, PipelineID: cfg.CRM.PipelineID},
        ShippedStatusID:   cfg.CRM.ShippedStatusID,
        DeliveredStatusID: cfg.CRM.DeliveredStatusID,
        PaymentMethods:    paymentMethods(cfg),
        PaymentPolicy:     dispatch.PaymentPolicy(cfg.PaymentFailurePolicy),
    }, log)
    w := worker.NewWorker(be.queue, sched, d, cfg.ProcessingInterval(), log)
    w.History = be.history
    w.Events = be.broker

    srvDeps := api.NewServer(q, be.history, auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.AdminToken, cfg.Auth.HMACSecret), be.broker, log)
    srvDeps.WebhookSecret = cfg.WebhookSecret
    srvDeps.Ready = be.ready
    srvDeps.Settings = cfg.Redacted()
    if srvDeps.Auth.Open() { log.Warn("ADMIN_TOKEN not set; admin routes are open") }

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           logMiddleware(log, srvDeps.Routes()),
        ReadHeaderTimeout: 5 * time.Second,
    }

    w.Start(ctx)
    errc := make(chan error, 1)
    go func() {
        log.Info("API listening", "addr", srv.Addr, "version", buildinfo.Version)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    select {
    case <-ctx.Done():
        log.Info("shutting down")
    case err := <-errc:
        if err != nil {
            w.Stop()
            return fmt.Errorf("server error: %w", err)
        }
    }
    w.Stop()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    return srv.Shutdown(shutdownCtx)
}

// printPaymentMethods lists the CRM's payment methods next to the configured name mapping.
func printPaymentMethods(ctx context.Context, out io.Writer, c *crm.Client, table mapping.PaymentMethods) error {
    list, err := c.ListPaymentMethods(ctx)
    if err != nil { return err }
    mapped := map[int64][]string{}
    for name, id := range table { mapped[id] = append(mapped[id], name) }
    tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
    fmt.Fprintln(tw, "ID\tNAME\tALIAS\tACTIVE\tMAPPED FROM")
    for _, m := range list.Data {
        fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%v\n", m.ID, m.Name, m.Alias, m.IsActive, mapped[m.ID])
    }
    return tw.Flush()
}
