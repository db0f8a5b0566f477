// cmd/appgw/serve.go
// Implements `appgw serve`, the long-running gateway process: loads config
// and the resolution table, wires the authentication authority, the
// in-process common handler, the optional secondary RPC bus, and the
// telemetry aggregator, then serves until an interrupt signal arrives.
package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/redis/go-redis/v9"
    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "github.com/kestrelgw/appgw/internal/commonhandler"
    "github.com/kestrelgw/appgw/internal/commonhandler/deviceplugin"
    "github.com/kestrelgw/appgw/internal/gateway"
    "github.com/kestrelgw/appgw/internal/gateway/subupstream"
    "github.com/kestrelgw/appgw/internal/logging"
    "github.com/kestrelgw/appgw/internal/metrics"
    "github.com/kestrelgw/appgw/internal/rpcbus/grpcbus"
    "github.com/kestrelgw/appgw/internal/telemetry"
    "github.com/kestrelgw/appgw/pkg/auth"
)

func newServeCmd() *cobra.Command {
    var (
        rpcBusAddr  string
        metricsAddr string
    )

    cmd := &cobra.Command{
        Use:   "serve",
        Short: "Run the gateway",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg := gateway.DefaultConfig()
            if err := gateway.LoadConfig(&cfg, cfgFile, "APPGW"); err != nil {
                logging.Sugar().Warnw("config load", "err", err)
            }

            var table *gateway.Table
            if cfg.ResolutionTablePath != "" {
                t, err := gateway.LoadResolutionTable(cfg.ResolutionTablePath)
                if err != nil {
                    return err
                }
                table = t
            } else {
                t, err := gateway.NewTable(nil)
                if err != nil {
                    return err
                }
                table = t
            }

            verifier := auth.NewVerifier([]byte(cfg.JWTSigningKey), "")
            authn := auth.NewJWTAuthenticator(verifier)

            srv := gateway.NewServer(cfg, table, authn)

            if cfg.RedisAddr != "" {
                cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
                srv.SetSharedSubscriptionStore(subupstream.NewRedis(cli, time.Hour))
            }

            deviceplugin.Register("unnamed-device")
            dispatcher := commonhandler.NewDispatcher()
            srv.SetCommonHandler(dispatcher)
            srv.OnDisconnect(dispatcher.Cleanup)

            if rpcBusAddr != "" {
                client, err := grpcbus.Dial(context.Background(), grpcbus.Config{Addr: rpcBusAddr})
                if err != nil {
                    logging.Sugar().Warnw("rpc bus dial", "err", err)
                } else {
                    srv.SetRPCClient(client)
                }
            }

            metrics.Register()
            sinks := telemetry.MultiSink{
                telemetry.NewLogSink(telemetry.ParseFormat(cfg.TelemetryFormat)),
                metrics.NewSink(),
            }
            if cfg.TelemetryWebhookURL != "" {
                sinks = append(sinks, telemetry.NewWebhookSink(cfg.TelemetryWebhookURL, telemetry.ParseFormat(cfg.TelemetryFormat)))
            }
            agg := telemetry.NewAggregator(telemetry.Config{
                FlushInterval:  cfg.TelemetryFlushInterval,
                CacheThreshold: cfg.TelemetryCacheThreshold,
            }, sinks)
            srv.WireTelemetry(agg.SetConnectionCount, agg.RecordFrame, func(success bool) {
                if success {
                    agg.RecordCallEvent("gateway", "dispatch", telemetry.OutcomeSuccess, 0)
                } else {
                    agg.RecordCallEvent("gateway", "dispatch", telemetry.OutcomeError, 0)
                }
            })

            ctx, cancel := context.WithCancel(context.Background())
            go agg.Run(ctx)

            if metricsAddr != "" {
                go func() {
                    mux := http.NewServeMux()
                    mux.Handle("/metrics", promhttp.Handler())
                    _ = http.ListenAndServe(metricsAddr, mux)
                }()
            }

            if err := srv.Start(); err != nil {
                cancel()
                return err
            }

            sigCh := make(chan os.Signal, 1)
            signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
            <-sigCh
            logging.Logger().Info("signal received, shutting down")

            shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
            defer shutdownCancel()
            if err := srv.Shutdown(shutdownCtx); err != nil {
                logging.Logger().Warn("shutdown", zap.Error(err))
            }
            agg.Stop(context.Background())
            cancel()
            return nil
        },
    }

    cmd.Flags().StringVar(&rpcBusAddr, "rpc-bus-addr", "", "Address of the secondary JSON-RPC bus (gRPC)")
    cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on (empty disables)")
    return cmd
}
