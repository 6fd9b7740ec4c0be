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

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/astralhq/identity/internal/app"
	"github.com/astralhq/identity/internal/cache"
	"github.com/astralhq/identity/internal/config"
	"github.com/astralhq/identity/internal/email"
	httphandlers "github.com/astralhq/identity/internal/http/handlers"
	jwtx "github.com/astralhq/identity/internal/jwt"
	"github.com/astralhq/identity/internal/oauth"
	"github.com/astralhq/identity/internal/oauth/apple"
	"github.com/astralhq/identity/internal/oauth/facebook"
	"github.com/astralhq/identity/internal/oauth/google"
	"github.com/astralhq/identity/internal/observability/logger"
	"github.com/astralhq/identity/internal/rate"
	"github.com/astralhq/identity/internal/security/password"
	"github.com/astralhq/identity/internal/store"
	pgstore "github.com/astralhq/identity/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "identity",
		Short: "Credential and federated-identity service",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("IDENTITY_CONFIG"), "path to config YAML")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: "info", ServiceName: "identity"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	var repo store.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		repo = pg
	default:
		log.Warn("using in-memory user store; data is lost on restart")
		repo = store.NewMemory()
	}
	defer repo.Close()

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	var mailer email.Sender = email.LogSender{}
	if cfg.SMTP.Host != "" {
		mailer = &email.SMTPSender{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			User:               cfg.SMTP.Username,
			Pass:               cfg.SMTP.Password,
			StartTLS:           cfg.SMTP.StartTLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		}
	}

	container := &app.Container{
		Store:     repo,
		Codec:     jwtx.NewCodec([]byte(cfg.JWT.Secret)),
		Cache:     cacheClient,
		Providers: providers,
		Nonces:    &oauth.Nonces{Cache: cacheClient},
		Mailer:    mailer,
		Hash:      password.Default,
	}
	if cfg.Rate.Enabled {
		container.LoginLimiter, container.ForgotLimiter = buildLimiters(cfg)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httphandlers.NewRouter(cfg, container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildProviders(cfg *config.Config) (oauth.Registry, error) {
	reg := oauth.Registry{}

	if p := cfg.Providers.Google; p.Enabled {
		if p.ClientID == "" || p.ClientSecret == "" {
			return nil, errors.New("google: missing client_id/client_secret")
		}
		g := google.New(p.ClientID, p.ClientSecret)
		reg[g.Name()] = g
	}
	if p := cfg.Providers.Facebook; p.Enabled {
		if p.ClientID == "" || p.ClientSecret == "" {
			return nil, errors.New("facebook: missing client_id/client_secret")
		}
		f := facebook.New(p.ClientID, p.ClientSecret)
		reg[f.Name()] = f
	}
	if p := cfg.Providers.Apple; p.Enabled {
		if p.TeamID == "" || p.ServiceID == "" || p.KeyID == "" || p.PrivateKeyPEM == "" {
			return nil, errors.New("apple: missing team_id/service_id/key_id/private key")
		}
		key, err := apple.ParsePrivateKey([]byte(p.PrivateKeyPEM))
		if err != nil {
			return nil, err
		}
		a := apple.New(apple.NewSecretSigner(p.TeamID, p.ServiceID, p.KeyID, key))
		reg[a.Name()] = a
	}
	return reg, nil
}

func buildLimiters(cfg *config.Config) (login, forgot rate.Limiter) {
	if cfg.Cache.Driver == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		login = rate.NewRedisLimiter(client, "rl:login:", cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
		forgot = rate.NewRedisLimiter(client, "rl:forgot:", cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window)
		return
	}
	login = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.Window)
	forgot = rate.NewMemoryLimiter(cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window)
	return
}
