package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/polkagate/poolkit/pkg/backup"
	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/config"
	"github.com/polkagate/poolkit/pkg/history"
	"github.com/polkagate/poolkit/pkg/kv"
	"github.com/polkagate/poolkit/pkg/observability"
	"github.com/polkagate/poolkit/pkg/proxy"
	"github.com/polkagate/poolkit/pkg/signer"
)

// simulatedMaxUnlockingChunks mirrors the relay chain constant.
const simulatedMaxUnlockingChunks = 32

// gatewayTransport is swapped in tests.
var gatewayTransport http.RoundTripper = http.DefaultTransport

// commonFlags are accepted by every subcommand that touches the chain or
// the stores.
type commonFlags struct {
	configPath string
	simulate   bool
	jsonOut    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (environment overrides it)")
	fs.BoolVar(&c.simulate, "simulate", false, "Use the in-memory chain simulator instead of the gateway")
	fs.BoolVar(&c.jsonOut, "json", false, "Print results as JSON")
}

// services are the wired dependencies of one command run.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	obs     *observability.Provider
	api     chain.API
	sim     *chain.Simulator
	store   kv.Store
	history history.Store
	keys    *signer.Keyring
	policy  *proxy.Policy
	closers []func() error
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func openServices(ctx context.Context, flags commonFlags, stderr io.Writer) (*services, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	s := &services{cfg: cfg, logger: logger}

	if err := s.openTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := s.openChain(ctx, flags.simulate); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openStores(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if s.keys, err = signer.NewKeyring(cfg.KeystoreDir); err != nil {
		s.Close()
		return nil, err
	}
	if s.policy, err = proxy.NewPolicy(cfg.ProxyPolicy); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *services) openTelemetry(ctx context.Context) error {
	oc := observability.DefaultConfig()
	oc.Enabled = s.cfg.Telemetry.Enabled
	oc.OTLPEndpoint = s.cfg.Telemetry.Endpoint
	oc.SampleRate = s.cfg.Telemetry.SampleRate
	oc.Insecure = true
	obs, err := observability.New(ctx, oc)
	if err != nil {
		return err
	}
	s.obs = obs
	s.closers = append(s.closers, func() error { return obs.Shutdown(context.Background()) })
	return nil
}

func (s *services) openChain(ctx context.Context, simulate bool) error {
	if simulate {
		sim := chain.NewSimulator()
		if err := sim.SetQuery(chain.ConstMaxUnlockingChunks, simulatedMaxUnlockingChunks); err != nil {
			return err
		}
		if err := sim.SetQuery(chain.QueryCurrentEra, 1); err != nil {
			return err
		}
		s.api, s.sim = sim, sim
		return nil
	}
	client := chain.NewHTTPClient(chain.HTTPConfig{
		BaseURL:    s.cfg.Gateway.URL,
		Secret:     s.cfg.Gateway.Secret,
		MinVersion: s.cfg.Gateway.MinVersion,
		RPS:        s.cfg.Gateway.RPS,
		Burst:      s.cfg.Gateway.Burst,
		Timeout:    s.cfg.Gateway.Timeout,
		Logger:     s.logger.With("component", "chain"),
	}, gatewayTransport)
	if err := client.CheckVersion(ctx); err != nil {
		return err
	}
	s.api = client
	return nil
}

func (s *services) openStores(ctx context.Context) error {
	switch s.cfg.Store.Kind {
	case "sqlite":
		st, err := kv.OpenSQLite(s.cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	case "redis":
		st := kv.NewRedisStore(s.cfg.Store.RedisAddr, s.cfg.Store.RedisPassword, s.cfg.Store.RedisDB, "poolkit:")
		s.closers = append(s.closers, st.Close)
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		s.store = st
	default:
		s.store = kv.NewMemoryStore()
	}

	if s.cfg.HistoryDSN == "" {
		s.history = history.NewKVStore(s.store)
		return nil
	}
	h, err := history.Open(ctx, s.cfg.HistoryDSN)
	if err != nil {
		return err
	}
	s.history = h
	s.closers = append(s.closers, h.Close)
	return nil
}

func (s *services) backupStore(ctx context.Context) (backup.Store, error) {
	b := s.cfg.Backup
	cfg := backup.Config{
		Kind:    backup.Kind(b.Kind),
		DataDir: b.DataDir,
		S3: backup.S3Config{
			Bucket:   b.S3Bucket,
			Region:   b.S3Region,
			Endpoint: b.S3Endpoint,
			Prefix:   b.S3Prefix,
		},
	}
	cfg.GCS.Bucket = b.GCSBucket
	cfg.GCS.Prefix = b.GCSPrefix
	return backup.Open(ctx, cfg)
}

// Close releases stores and flushes telemetry in reverse order of opening.
func (s *services) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("shutdown", "error", err)
	}
}
