package kv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/captify-io/designer/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg *config.BackendConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = &config.BackendConfig{}
	}

	tlsCfg := tlsFromConfig(cfg)
	kind := cfg.GetType()
	logger.Info("opening persistence backend", slog.String("backend", kind))

	switch kind {
	case "memory":
		return NewMemory(), nil

	case "redis":
		tlsConfig, err := tlsCfg.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		r, err := NewRedis(RedisOptions{
			URL:            cfg.URL,
			Prefix:         cfg.GetNamespace(),
			TLS:            tlsConfig,
			ConnectTimeout: cfg.GetDialTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return r, nil

	case "etcd":
		e, err := NewEtcd(EtcdOptions{
			Endpoints:   cfg.Endpoints,
			Namespace:   cfg.GetNamespace(),
			DialTimeout: cfg.GetDialTimeout(),
			TLS:         tlsCfg,
		})
		if err != nil {
			return nil, err
		}
		return e, nil

	case "neo4j":
		dialCtx, cancel := context.WithTimeout(ctx, cfg.GetDialTimeout())
		defer cancel()
		n, err := NewNeo4j(dialCtx, Neo4jOptions{
			URI:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		})
		if err != nil {
			return nil, err
		}
		return n, nil

	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "designer.db"
		}
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil

	case "grpc":
		if cfg.Address == "" {
			return nil, fmt.Errorf("grpc backend requires an address")
		}
		creds := insecure.NewCredentials()
		if tlsCfg != nil {
			tlsConfig, err := tlsCfg.ClientConfig()
			if err != nil {
				return nil, fmt.Errorf("failed to configure TLS: %w", err)
			}
			creds = credentials.NewTLS(tlsConfig)
		}
		c, err := NewRemoteClient(cfg.Address, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown backend type %q", kind)
	}
}

func tlsFromConfig(cfg *config.BackendConfig) *TLSConfig {
	if cfg == nil || cfg.TLS == nil || !cfg.TLS.Enabled {
		return nil
	}
	return &TLSConfig{
		Enabled:  true,
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		CAFile:   cfg.TLS.CAFile,
	}
}
