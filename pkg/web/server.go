// Package web is the operator-facing surface: the MJPEG preview, the
// REST API and the websocket command channel.
package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/labelscan/go-labelscan/internal/history"
	"github.com/labelscan/go-labelscan/internal/log"
	"github.com/labelscan/go-labelscan/pkg/camera"
	"github.com/labelscan/go-labelscan/pkg/hub"
	"github.com/labelscan/go-labelscan/pkg/station"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

// Options wires the server to the station internals.
type Options struct {
	Bind       string
	Controller *station.Controller
	Renderer   *camera.Renderer
	Store      *storage.Manager
	History    *history.Store
	Events     *hub.Hub

	// CaptureState reports the orchestrator phase for /api/status.
	CaptureState func() string

	// StaticDir, when set, serves the operator console assets.
	StaticDir string
}

// Server hosts the HTTP and websocket endpoints.
type Server struct {
	app  *fiber.App
	opts Options
}

// NewServer builds the fiber app and its routes.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}

	app := fiber.New(fiber.Config{
		AppName:               "labelscan",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	app.Get("/video_feed", s.handleVideoFeed)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Post("/settings", s.handleSetSettings)
	api.Post("/capture", s.handleCapture)
	api.Post("/focus", s.handleFocus)
	api.Get("/images", s.handleListImages)
	api.Get("/image/:name", s.handleGetImage)
	api.Get("/scans", s.handleScans)
	api.Get("/storage/status", s.handleStorageStatus)
	api.Post("/storage/reset", s.handleStorageReset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleCommandWS))

	s.app = app
	return s
}

// Start runs the event hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.opts.Events.Run()
	log.Info("web server listening", "bind", s.opts.Bind)
	return s.app.Listen(s.opts.Bind)
}

// Shutdown stops the server and the event hub.
func (s *Server) Shutdown() error {
	s.opts.Events.Stop()
	return s.app.Shutdown()
}

// intent is one command-channel message from an operator console.
type intent struct {
	Intent string  `json:"intent"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Mode   string  `json:"mode"`
}

// handleCommandWS attaches a console to the event hub and dispatches its
// intents. Every intent's terminal report reaches the console through
// the controller's reporter, which broadcasts on the same hub.
func (s *Server) handleCommandWS(conn *websocket.Conn) {
	client := hub.NewClient(s.opts.Events, conn, s.dispatchIntent)
	client.Run()
}

func (s *Server) dispatchIntent(data []byte) {
	var in intent
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn("unparseable intent on command channel", "err", err)
		return
	}

	ctrl := s.opts.Controller
	switch in.Intent {
	case "capture":
		// Long-running; the busy check rejects overlap.
		go ctrl.Capture()
	case "focus":
		go ctrl.Focus()
	case "zoom_to":
		ctrl.SetZoomPoint(in.X, in.Y)
	case "reset_zoom":
		ctrl.ResetZoom()
	case "quality_mode":
		ctrl.SetQualityMode(in.Mode)
	case "lighting":
		ctrl.SetLightingMode(in.Mode)
	default:
		log.Warn("unknown intent on command channel", "intent", in.Intent)
	}
}
