package config

import (
	mongoDB "ProductVision/database/mongo"
	"ProductVision/database/postgres"
	detectionHandler "ProductVision/internal/api/detection/handler"
	detectionRepository "ProductVision/internal/api/detection/repository"
	detectionService "ProductVision/internal/api/detection/service"
	"ProductVision/internal/middleware"
	"ProductVision/pkg/detector"
	"ProductVision/pkg/inference"
	"ProductVision/pkg/redis"
	"ProductVision/pkg/s3"
	"ProductVision/pkg/utils"
	websocketPkg "ProductVision/pkg/websocket"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultLuminanceThreshold = 64
	defaultLuminanceMinArea   = 64
)

type ServerOption func(*Server) error

type Server struct {
	engine          *fiber.App
	log             *logrus.Logger
	middleware      middleware.Middleware
	validator       *validator.Validate
	utils           utils.IUtils
	detector        detector.Detector
	repository      detectionRepository.Repository
	predictionCache redis.IRedis
	s3Client        s3.ItfS3
	handlers        []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if server.repository == nil {
		return nil, fmt.Errorf("storage is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

// WithDetector loads the class names and the model selected by DETECTOR_BACKEND.
func WithDetector() ServerOption {
	return func(s *Server) error {
		names, err := detector.LoadLabels(os.Getenv("DETECTOR_LABELS_PATH"))
		if err != nil {
			return err
		}

		backend := os.Getenv("DETECTOR_BACKEND")
		model, err := newModel(backend, names)
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to load %q detector backend: %v", backend, err)
			}
			return fmt.Errorf("failed to create detector: %w", err)
		}

		s.detector = detector.New(model)
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"backend": backendName(backend),
				"classes": len(model.Names()),
			}).Info("Detector ready")
		}
		return nil
	}
}

func newModel(backend string, names []string) (detector.Model, error) {
	switch backend {
	case "", "websocket":
		return websocketPkg.NewAIWebSocketClient(names), nil
	case "http":
		return inference.New(names), nil
	case "gocv":
		modelPath := os.Getenv("MODEL_PATH")
		if modelPath == "" {
			modelPath = "yolov8n.onnx"
		}
		return detector.NewGocvModel(
			modelPath,
			names,
			float32(envFloat("DETECTOR_CONFIDENCE", 0.25)),
			float32(envFloat("DETECTOR_IOU", 0.45)),
		)
	case "luminance":
		return detector.NewLuminanceModel(defaultLuminanceThreshold, defaultLuminanceMinArea), nil
	default:
		return nil, fmt.Errorf("unknown DETECTOR_BACKEND %q", backend)
	}
}

func backendName(backend string) string {
	if backend == "" {
		return "websocket"
	}
	return backend
}

// WithPredictionCache memoizes detections in Redis. It is a no-op unless
// REDIS_ADDRESS is set and PREDICTION_CACHE_TTL is a positive duration.
func WithPredictionCache() ServerOption {
	return func(s *Server) error {
		if s.detector == nil {
			return fmt.Errorf("detector must be initialized before the prediction cache")
		}

		ttl, _ := time.ParseDuration(os.Getenv("PREDICTION_CACHE_TTL"))
		if !redis.Enabled() || ttl <= 0 {
			return nil
		}

		s.predictionCache = redis.New()
		s.detector = detector.NewCached(s.detector, s.predictionCache, ttl, s.log)
		return nil
	}
}

func WithStorage() ServerOption {
	return func(s *Server) error {
		switch driver := os.Getenv("STORAGE_DRIVER"); driver {
		case "", "mongo":
			client, cfg, err := mongoDB.New(s.log)
			if err != nil {
				return fmt.Errorf("failed to create database connection: %w", err)
			}
			s.repository = detectionRepository.NewMongo(client, cfg.Database, cfg.Collection, s.log)
		case "postgres":
			db, err := postgres.New()
			if err != nil {
				if s.log != nil {
					s.log.Errorf("Failed to connect to database: %v", err)
				}
				return fmt.Errorf("failed to create database connection: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			repo, err := detectionRepository.NewPostgres(ctx, db, utils.New(), s.log)
			if err != nil {
				db.Close()
				return fmt.Errorf("failed to prepare products table: %w", err)
			}
			s.repository = repo
		default:
			return fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
		}
		return nil
	}
}

// WithS3Client enables archiving of original uploads when AWS_BUCKET_NAME is set.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if !s3.Enabled() {
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func (s *Server) RegisterHandler() {
	persistAll, _ := strconv.ParseBool(os.Getenv("PERSIST_ALL_DETECTIONS"))

	// Detection
	detectionServices := detectionService.NewDetectionService(s.log, s.detector, s.repository, s.s3Client, persistAll)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils)

	s.handlers = append(s.handlers, detectionHandlers)
}

// Mount installs request-scoped middleware, the health check and every handler.
func (s *Server) Mount() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.setupHealthCheck()
	for _, h := range s.handlers {
		h.Start(s.engine)
	}
}

func (s *Server) Run() error {
	s.Mount()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting requests, then releases the model, the cache and the
// storage connection. Every step runs even if an earlier one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := s.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	if s.predictionCache != nil {
		if err := s.predictionCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("prediction cache: %w", err))
		}
	}
	if err := s.repository.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "YOLOv8 Local Deployment is running!",
		})
	})
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
