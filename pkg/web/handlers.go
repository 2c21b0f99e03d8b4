package web

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/labelscan/go-labelscan/pkg/station"
	"github.com/labelscan/go-labelscan/pkg/storage"
)

// handleVideoFeed streams the preview as multipart MJPEG. The stream
// runs until the client disconnects; a stalled camera degrades to
// placeholder frames rather than closing the stream.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	renderer := s.opts.Renderer
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx := c.Context() // canceled by fasthttp when the client is gone
		for {
			frame, err := renderer.Next(ctx)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	factor, x, y := s.opts.Renderer.Zoom()
	status := fiber.Map{
		"settings": s.opts.Controller.SettingsStore().Get(),
		"storage":  s.opts.Store.Status(),
		"clients":  s.opts.Events.ClientCount(),
		"zoom":     fiber.Map{"factor": factor, "x": x, "y": y},
	}
	if s.opts.CaptureState != nil {
		status["capture_state"] = s.opts.CaptureState()
	}
	return c.JSON(status)
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.opts.Controller.SettingsStore().Get())
}

func (s *Server) handleSetSettings(c *fiber.Ctx) error {
	var settings station.Settings
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.opts.Controller.SettingsStore().Set(settings); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.opts.Events.BroadcastEvent("settings", settings)
	return c.JSON(settings)
}

func (s *Server) handleCapture(c *fiber.Ctx) error {
	rep := s.opts.Controller.Capture()
	if !rep.OK {
		code := fiber.StatusInternalServerError
		if rep.Code == "busy" {
			code = fiber.StatusConflict
		}
		return c.Status(code).JSON(rep)
	}
	return c.JSON(rep)
}

func (s *Server) handleFocus(c *fiber.Ctx) error {
	return c.JSON(s.opts.Controller.Focus())
}

func (s *Server) handleListImages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	entries, err := s.opts.Store.List("*.jpg", limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(entries)
}

func (s *Server) handleGetImage(c *fiber.Ctx) error {
	name := c.Params("name")
	path, err := s.opts.Store.Locate(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no such image"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendFile(path)
}

func (s *Server) handleScans(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.JSON([]any{})
	}
	scans, err := s.opts.History.Recent(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(scans)
}

func (s *Server) handleStorageStatus(c *fiber.Ctx) error {
	return c.JSON(s.opts.Store.Status())
}

func (s *Server) handleStorageReset(c *fiber.Ctx) error {
	s.opts.Store.Reset()
	status := s.opts.Store.Status()
	s.opts.Events.BroadcastEvent("storage", status)
	return c.JSON(status)
}
