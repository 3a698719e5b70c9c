package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/api"
	"kestrel/internal/auth"
	"kestrel/internal/blobstorage"
	"kestrel/internal/conf"
	"kestrel/internal/pipeline"
	"kestrel/internal/server"
	"kestrel/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	logger.Println("Starting Kestrel IMAP server...")

	var cfg *conf.Config
	var err error
	if *configPath != "" {
		cfg, err = conf.LoadConfigFile(*configPath)
	} else {
		cfg, err = conf.LoadConfig()
	}
	if err != nil {
		logger.Printf("Warning: failed to load config: %v, using defaults", err)
		cfg = &conf.Config{
			Listen:  ":1143",
			DataDir: "./data",
			Store:   conf.StoreConfig{Adapter: "sqlite"},
			Auth:    conf.AuthConfig{Adapter: "static"},
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("Failed to create data directory %s: %v", cfg.DataDir, err)
	}

	ctx := context.Background()

	var blobs blobstorage.BlobStorage
	if cfg.BlobStorage.Enabled {
		s3, err := blobstorage.NewS3BlobStorage(ctx, cfg.BlobStorage)
		if err != nil {
			logger.Printf("Warning: failed to initialize blob storage: %v, keeping content inline", err)
		} else {
			logger.Printf("Blob storage initialized (bucket: %s)", cfg.BlobStorage.Bucket)
			blobs = s3
		}
	}

	st := buildStore(cfg, blobs, logger)
	verifier := buildVerifier(cfg, logger)
	pl := buildPipeline(cfg, logger)

	imapServer := server.NewIMAPServer(st, verifier, pl, logger)

	var g errgroup.Group

	g.Go(func() error {
		ln, err := net.Listen("tcp", cfg.Listen) // #nosec G102 -- server binds all interfaces by design
		if err != nil {
			return err
		}
		defer func() { _ = ln.Close() }()
		logger.Printf("IMAP server listening on %s", cfg.Listen)
		return imapServer.Serve(ln)
	})

	if cfg.API.Enabled {
		apiServer, err := api.NewAPIServer(
			filepath.Join(cfg.DataDir, "api_keys.db"),
			[]byte(cfg.API.TokenSecret), st, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize api server: %v", err)
		}
		defer func() { _ = apiServer.Close() }()

		g.Go(func() error {
			logger.Printf("Management API listening on %s", cfg.API.Listen)
			return http.ListenAndServe(cfg.API.Listen, apiServer.Handler()) // #nosec G114
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server exited: %v", err)
	}
}

func buildStore(cfg *conf.Config, blobs blobstorage.BlobStorage, logger *log.Logger) store.MailboxStore {
	switch cfg.Store.Adapter {
	case "filesystem":
		st, err := store.NewFilesystemStore(filepath.Join(cfg.DataDir, "mailboxes"), logger)
		if err != nil {
			logger.Fatalf("Failed to initialize filesystem store: %v", err)
		}
		logger.Printf("Filesystem store initialized at %s", cfg.DataDir)
		return st
	default:
		st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "kestrel.db"), blobs, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize sqlite store: %v", err)
		}
		logger.Printf("SQLite store initialized at %s", cfg.DataDir)
		return st
	}
}

func buildVerifier(cfg *conf.Config, logger *log.Logger) *auth.Verifier {
	verifier := auth.NewVerifier()
	switch cfg.Auth.Adapter {
	case "http":
		verifier.Register("PLAIN", auth.NewHTTPMechanism(cfg.Auth.AuthServerURL, logger))
		logger.Printf("Authenticating against %s", cfg.Auth.AuthServerURL)
	default:
		verifier.Register("PLAIN", auth.NewStaticMechanism(cfg.Auth.Users))
	}
	if cfg.Auth.TokenSecret != "" {
		verifier.Register("TOKEN", auth.NewTokenMechanism([]byte(cfg.Auth.TokenSecret)))
	}
	return verifier
}

func buildPipeline(cfg *conf.Config, logger *log.Logger) *pipeline.Pipeline {
	pl := pipeline.New(logger)
	for _, pc := range cfg.Pipeline {
		proc, err := pipeline.Build(pc.Name, pc.Params)
		if err != nil {
			logger.Printf("Warning: skipping pipeline processor %s: %v", pc.Name, err)
			continue
		}
		pl.Add(proc)
	}
	logger.Printf("Pipeline configured with %d stage(s)", pl.Len())
	return pl
}
