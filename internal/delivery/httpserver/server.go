// Package httpserver serves health, metrics and the Telegram webhook.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dispatcher handles one Telegram update pushed to the webhook.
type Dispatcher interface {
	Dispatch(ctx context.Context, update tgbotapi.Update)
}

type RequestObserver interface {
	HTTPRequest(method, route string, status int, d time.Duration)
}

// unmatchedRoute labels requests no route served, keeping label values bounded.
const unmatchedRoute = "unmatched"

// secretHeader carries the secret_token given to setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Options struct {
	Addr          string
	WebhookPath   string
	WebhookSecret string // must match secretHeader on every webhook request
}

type Server struct {
	app     *fiber.App
	opts    Options
	baseCtx context.Context
	logger  *zap.Logger
}

// New builds the fiber app. The webhook route exists only when dispatcher is
// non-nil.
func New(opts Options, gatherer prometheus.Gatherer, observer RequestObserver, dispatcher Dispatcher, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "pricewatch",
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	s := &Server{app: app, opts: opts, baseCtx: context.Background(), logger: logger}

	app.Use(recover.New())
	if observer != nil {
		app.Use(observeRequests(observer))
	}

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if dispatcher != nil {
		app.Post(opts.WebhookPath, s.webhook(dispatcher))
	}
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving on Options.Addr. Updates from the webhook are handled
// under ctx.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
	return s.app.Listen(s.opts.Addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) webhook(dispatcher Dispatcher) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !validSecret(c.Get(secretHeader), s.opts.WebhookSecret) {
			s.logger.Warn("rejected webhook request", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		var update tgbotapi.Update
		if err := json.Unmarshal(c.Body(), &update); err != nil {
			s.logger.Warn("malformed webhook update", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed update"})
		}
		dispatcher.Dispatch(s.baseCtx, update)
		return c.SendStatus(fiber.StatusOK)
	}
}

// validSecret rejects everything when no secret is configured.
func validSecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func observeRequests(observer RequestObserver) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// the error handler sets the status after middleware returns
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := unmatchedRoute
		if r := c.Route(); r != nil && r.Path != "" && status != fiber.StatusNotFound && status != fiber.StatusMethodNotAllowed {
			route = r.Path
		}
		observer.HTTPRequest(c.Method(), route, status, time.Since(start))
		return err
	}
}
