package signalling

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/confmesh/sfu/internal/api"
)

// WorkerHealth is what the admin API needs to know about the media worker
// pool.
type WorkerHealth interface {
	AliveWorkers() (alive, total int)
}

func (s *Server) SetWorkerHealth(h WorkerHealth) {
	s.health = h
}

type roomSummary struct {
	RoomID    string    `json:"room_id"`
	Peers     int       `json:"peers"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) setupAdminApi() {
	s.app.Route("/api/admin", func(router fiber.Router) {
		router.Use(basicauth.New(basicauth.Config{
			Realm: "Forbidden",
			Authorizer: func(user, pass string) bool {
				cred := s.cfg.Server.AdminCredential
				return cred == nil || user == "admin" && pass == *cred
			},
		}))

		router.Get("/rooms", func(c *fiber.Ctx) error {
			var summaries []roomSummary
			for _, r := range s.registry.Rooms() {
				summaries = append(summaries, roomSummary{
					RoomID:    r.ID,
					Peers:     len(r.PeerViews()),
					CreatedAt: r.CreatedAt,
				})
			}
			return c.JSON(summaries)
		})

		router.Get("/rooms/:roomId/peers", func(c *fiber.Ctx) error {
			r, err := s.registry.Get(c.Params("roomId"))
			if err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Room not found")
			}
			return c.JSON(r.PeerViews())
		})

		router.Delete("/rooms/:roomId", func(c *fiber.Ctx) error {
			if err := s.registry.DestroyRoom(c.Context(), c.Params("roomId")); err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Room not found")
			}
			return c.SendString("Ok")
		})

		router.Post("/rooms/:roomId/peers/:peerId/eject", func(c *fiber.Ctx) error {
			r, err := s.registry.Get(c.Params("roomId"))
			if err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Room not found")
			}
			err = r.PeerAction(c.Context(), c.Params("peerId"), api.PeerActionRequest{
				PeerID: c.Params("peerId"),
				Action: "eject",
			})
			if err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Peer not found")
			}
			return c.SendString("Ok")
		})

		router.Get("/health", func(c *fiber.Ctx) error {
			alive, total := 0, 0
			if s.health != nil {
				alive, total = s.health.AliveWorkers()
			}
			return c.JSON(fiber.Map{
				"workers_alive": alive,
				"workers_total": total,
				"rooms":         len(s.registry.Rooms()),
			})
		})
	})
}
