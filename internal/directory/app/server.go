// Package server wires the directory runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avellar/userdir/internal/directory/api/rest"
	"github.com/avellar/userdir/internal/directory/cache"
	"github.com/avellar/userdir/internal/directory/domain"
	"github.com/avellar/userdir/internal/directory/event"
	directorysqlite "github.com/avellar/userdir/internal/directory/storage/sqlite"
	"github.com/avellar/userdir/internal/platform/bus"
	"github.com/avellar/userdir/internal/platform/config"
	"github.com/avellar/userdir/internal/platform/kv"
	"github.com/avellar/userdir/internal/platform/timeouts"
)

type serverEnv struct {
	DBPath            string        `env:"USERDIR_DB_PATH"`
	CacheTTL          time.Duration `env:"USERDIR_CACHE_TTL" envDefault:"30m"`
	SweepInterval     time.Duration `env:"USERDIR_CACHE_SWEEP_INTERVAL" envDefault:"1m"`
	ProcessedCapacity int           `env:"USERDIR_PROCESSED_CAPACITY" envDefault:"1000"`
	ConsumerGroup     string        `env:"USERDIR_CONSUMER_GROUP" envDefault:"directory"`
	TopicPartitions   int           `env:"USERDIR_TOPIC_PARTITIONS" envDefault:"3"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "userdir.db")
	}
	return cfg
}

// Server hosts the directory HTTP API, the embedded broker, and the storage
// lifecycle.
type Server struct {
	listener      net.Listener
	httpServer    *http.Server
	store         *directorysqlite.Store
	memory        *kv.Memory
	producer      *event.Producer
	consumer      *event.Consumer
	processed     *event.ProcessedLog
	service       *domain.Service
	sweepInterval time.Duration
}

// New creates a configured directory server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured directory server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	store, err := openDirectoryStore(env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	memory := kv.NewMemory()
	cacheClient := cache.NewClient(memory, env.CacheTTL, log.Printf)

	broker := bus.New()
	for _, topic := range []string{event.TopicLifecycle, event.TopicNotifications} {
		if err := broker.EnsureTopic(topic, env.TopicPartitions); err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("provision topic %s: %w", topic, err)
		}
	}

	producer := event.NewProducer(broker, log.Printf)
	processed := event.NewProcessedLog(env.ProcessedCapacity)
	consumer := event.NewConsumer(broker, env.ConsumerGroup, processed, log.Printf)

	service := domain.NewService(newDomainStore(store), cacheClient, producer)
	service.SetLogger(log.Printf)

	handler := rest.NewHandler(service, producer, processed, log.Printf)
	httpServer := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:      listener,
		httpServer:    httpServer,
		store:         store,
		memory:        memory,
		producer:      producer,
		consumer:      consumer,
		processed:     processed,
		service:       service,
		sweepInterval: env.SweepInterval,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Service exposes the wired domain service.
func (s *Server) Service() *domain.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Run creates and serves a directory server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the HTTP server, the event consumers, and the cache sweeper
// until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("directory server listening at %v", s.listener.Addr())
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.consumer.ConsumeLifecycle(groupCtx)
	})
	group.Go(func() error {
		return s.consumer.ConsumeNotifications(groupCtx)
	})
	group.Go(func() error {
		s.memory.StartSweeper(groupCtx, s.sweepInterval)
		return nil
	})
	group.Go(func() error {
		err := s.httpServer.Serve(s.listener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	err := group.Wait()
	s.producer.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases directory server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close directory store: %v", err)
		}
	}
}

func openDirectoryStore(path string) (*directorysqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := directorysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory sqlite store: %w", err)
	}
	return store, nil
}
