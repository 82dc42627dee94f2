package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/server"
	"example.com/tlmdecom/internal/stream"
)

type config struct {
	Port             int                 `yaml:"port"`
	Schema           string              `yaml:"schema"`
	DefaultContainer string              `yaml:"defaultContainer"`
	Schemas          []server.SchemaPack `yaml:"schemas"`
	DefaultSchema    string              `yaml:"defaultSchema"`
	Framing          string              `yaml:"framing"`
	MaxBodyBytes     int64               `yaml:"maxBodyBytes"`
	Concurrency      int                 `yaml:"concurrency"`
	Lenient          bool                `yaml:"lenient"`
	StorageDir       string              `yaml:"storageDir"`
	Logs             common.LogConfig    `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	if _, err := stream.ParseFraming(cfg.Framing); err != nil {
		return cfg, err
	}
	// a single schema is shorthand for a one entry list
	if cfg.Schema != "" {
		cfg.Schemas = append([]server.SchemaPack{{Path: cfg.Schema, DefaultContainer: cfg.DefaultContainer}}, cfg.Schemas...)
	}
	for i := range cfg.Schemas {
		cfg.Schemas[i].Path = resolvePath(cfg.Schemas[i].Path)
	}
	if len(cfg.Schemas) == 0 {
		return cfg, errors.New("no schemas configured")
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "decomd.log"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "config/decomd.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	closer, err := common.SetupLogging(cfg.Logs)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer closer.Close()
	log := common.Logger()

	framing, _ := stream.ParseFraming(cfg.Framing)
	srv, err := server.NewServer(server.Options{
		Schemas:       cfg.Schemas,
		DefaultSchema: cfg.DefaultSchema,
		Framing:       framing,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Concurrency:   cfg.Concurrency,
		Lenient:       cfg.Lenient,
		Logger:        log,
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	router, err := server.NewRouter(srv)
	if err != nil {
		common.Fatalf("router init: %v", err)
	}
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.WithField("schemas", len(cfg.Schemas)).Infof("decomd listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Fatalf("listen: %v", err)
		}
	}()

	sig := <-shutdown
	common.Logf("received %v, draining requests", sig)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	snap := srv.Metrics().Snapshot()
	log.WithField("packets", snap.Packets).WithField("failed", snap.Failed).Info("decomd stopped")
}
