package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/config"
	"github.com/xiaoxuxiansheng/olatx/log"
	"github.com/xiaoxuxiansheng/olatx/server"
	"github.com/xiaoxuxiansheng/olatx/store"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "ola",
		Short:         "Ola greeting service taking part in REST-AT transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			log.SetDefaultLogger(log.NewSugarLogger(log.NewOptions(
				log.WithLogLevel(cfg.Log.Level),
				log.WithFileName(cfg.Log.File),
				log.WithStdout(cfg.Log.Stdout),
			)))
			gin.SetMode(gin.ReleaseMode)

			srv, closeStore, err := buildServer(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					log.Errorf("close participant store failed, err: %v", err)
				}
			}()

			return srv.Run(cmd.Context(), cfg.Listen)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().String("listen", ":8080", "address the http server listens on")
	return cmd
}

// buildServer 按配置组装存储、协调者客户端、下游服务以及 http 服务
func buildServer(cfg *config.Config) (*server.Server, func() error, error) {
	participantStore, closeStore, err := store.New(store.Config{
		Kind:             cfg.Store.Kind,
		Retention:        cfg.Store.Memory.Retention,
		StaleAfter:       cfg.Store.Memory.StaleAfter,
		LockWait:         cfg.Store.Redis.LockWait,
		RedisNetwork:     cfg.Store.Redis.Network,
		RedisAddress:     cfg.Store.Redis.Address,
		RedisPassword:    cfg.Store.Redis.Password,
		MySQLDSN:         cfg.Store.MySQL.DSN,
		MySQLAutoMigrate: cfg.Store.MySQL.AutoMigrate,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []olatx.Option{
		olatx.WithRequestTimeout(cfg.Coordinator.Timeout),
		olatx.WithTXTimeout(cfg.Coordinator.TXTimeout),
		olatx.WithStrictOrdering(cfg.Participant.Strict),
		olatx.WithLinkParams(cfg.Participant.LinkParams),
		olatx.WithCoordinatorURL(cfg.Coordinator.URL),
	}
	participant := olatx.NewParticipant(participantStore, opts...)
	orchestrator := olatx.NewOrchestrator(
		cfg.Hostname,
		cfg.Participant.BaseURL,
		olatx.NewTXClient(cfg.Coordinator.URL, opts...),
		participant,
		opts...,
	)

	for _, endpoint := range cfg.PeerEndpoints() {
		peer := olatx.NewHTTPPeer(endpoint.Name, endpoint.URL,
			olatx.WithPeerTimeout(cfg.Peer.Timeout),
			olatx.WithPeerPath(cfg.Peer.Path),
			olatx.WithBreakerMaxFailures(cfg.Peer.Breaker.MaxFailures),
			olatx.WithBreakerTimeout(cfg.Peer.Breaker.OpenTimeout),
		)
		if err = orchestrator.Register(peer); err != nil {
			_ = closeStore()
			return nil, nil, fmt.Errorf("register peer %s: %w", endpoint.Name, err)
		}
		log.Infof("peer %s registered, url: %s", endpoint.Name, endpoint.URL)
	}

	return server.New(orchestrator, participant,
		server.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
	), closeStore, nil
}
