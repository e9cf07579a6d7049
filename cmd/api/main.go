package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"gestoria.cloud/internal/admin"
	"gestoria.cloud/internal/audit"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/cache"
	"gestoria.cloud/internal/casework"
	"gestoria.cloud/internal/config"
	"gestoria.cloud/internal/httpapi"
	"gestoria.cloud/internal/obs"
	"gestoria.cloud/internal/store/memstore"
	"gestoria.cloud/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is satisfied by both the PostgreSQL and the in-memory store.
type backend interface {
	auth.Store
	authz.RoleStore
	authz.AccessStore
	authz.SeedStore
	casework.Store
	admin.TenantStore
	admin.PlatformStore
	audit.Store
	Ping(ctx context.Context) error
}

func main() {
	log := obs.Logger()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init(version, commit)

	store, closeStore := openStore(cfg)
	defer closeStore()

	api, grpcSrv, err := build(cfg, store)
	if err != nil {
		log.WithError(err).Fatal("wire services")
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithFields(logrus.Fields{"version": version, "addr": srv.Addr, "env": cfg.Env}).Info("starting gestoria-api")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		grpcServer = grpcSrv.NewServer()
		log.WithField("addr", cfg.Server.GRPCAddr).Info("starting grpc health")
		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.WithError(err).Error("grpc serve")
			}
		}()
	}
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("stopped")
}

func openStore(cfg *config.Config) (backend, func()) {
	log := obs.Logger()
	if cfg.Database.DSN == "" {
		if !cfg.IsDevelopment() {
			log.Fatal("database dsn is required outside development")
		}
		log.Warn("no database dsn configured, using in-memory store")
		return memstore.New(), func() {}
	}
	db, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	return db, func() { _ = db.Close() }
}

func build(cfg *config.Config, store backend) (*httpapi.API, *httpapi.GRPCServer, error) {
	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, err
		}
		obs.Logger().Warn("no jwt secret configured, using an ephemeral one; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret, auth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return nil, nil, err
	}
	trail := audit.NewTrail(store)
	rbac, err := authz.NewRBAC(store)
	if err != nil {
		return nil, nil, err
	}
	acl, err := authz.NewACL(store)
	if err != nil {
		return nil, nil, err
	}
	tenants := cache.NewTenantDirectory(store, cfg.Tenancy.CacheSize, cfg.Tenancy.CacheTTL)
	resolver, err := authz.NewTenantResolver(rbac, tenants,
		authz.WithClientIDHeader(cfg.Tenancy.AllowClientIDHeader),
		authz.WithAuditor(trail))
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := authz.NewPipeline(tokens, store, resolver, rbac, acl)
	if err != nil {
		return nil, nil, err
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithInviteTTL(cfg.Auth.InviteTTL))
	if err != nil {
		return nil, nil, err
	}
	cases, err := casework.NewService(store, acl, trail)
	if err != nil {
		return nil, nil, err
	}
	tenantAdmin, err := admin.NewTenantAdmin(store, authSvc, rbac, acl, trail)
	if err != nil {
		return nil, nil, err
	}
	platform, err := admin.NewPlatform(store, authSvc, trail, admin.OnTenantChange(tenants.Invalidate))
	if err != nil {
		return nil, nil, err
	}

	readiness := httpapi.PingCheck{Pinger: store}
	api, err := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Pipeline: pipeline,
		Casework: cases,
		Admin:    tenantAdmin,
		Platform: platform,
		Audit:    trail,
		Throttle: loginThrottle(cfg),
		Ready:    readiness,
	},
		httpapi.WithVersion(version),
		httpapi.WithRateLimit(cfg.Server.RateLimitBurst, cfg.Server.RateLimitPerSec),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
	)
	if err != nil {
		return nil, nil, err
	}
	return api, httpapi.NewGRPCServer(readiness, version), nil
}

// loginThrottle shares counters through Redis when configured and keeps a
// per-process limiter as the fallback.
func loginThrottle(cfg *config.Config) cache.Throttle {
	local := cache.NewLocalThrottle(cfg.Auth.LoginRatePerMinute, time.Minute)
	if cfg.Redis.Addr == "" {
		return local
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cache.NewFallbackThrottle(cache.NewRedisThrottle(client, cfg.Auth.LoginRatePerMinute, time.Minute), local)
}
