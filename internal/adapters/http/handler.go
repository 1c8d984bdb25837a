package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

type SessionHandler struct {
	service ports.SessionService
	log     logrus.FieldLogger
}

func NewSessionHandler(service ports.SessionService, log logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{service: service, log: log.WithField("component", "http")}
}

// Register mounts the session routes on router.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/start-container", h.StartContainer)
	router.Post("/stop-container", h.StopContainer)
	router.Post("/stop-all-containers", h.StopAllContainers)
	router.Get("/stop-all-containers", h.StopAllContainers)
	router.Get("/status", h.Status)
	router.Get("/containers", h.ListContainers)
	router.Get("/container-logs/:resource_group_name", h.GetContainerLogs)
}

type StartContainerRequest struct {
	MazeTitle            string            `json:"maze_title"`
	UserName             string            `json:"user_name"`
	ContainerImage       string            `json:"container_image"`
	EnvironmentVariables map[string]string `json:"environment_variables"`
	OpenPorts            []int             `json:"open_ports"`
}

type StopContainerRequest struct {
	ResourceGroupName string `json:"resource_group_name"`
}

func (h *SessionHandler) StartContainer(c *fiber.Ctx) error {
	var req StartContainerRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, err)
	}

	session, err := h.service.StartSession(c.UserContext(), domain.StartRequest{
		Title: req.MazeTitle,
		User:  req.UserName,
		Image: req.ContainerImage,
		Env:   req.EnvironmentVariables,
		Ports: req.OpenPorts,
	})
	if err != nil {
		return h.fail(c, statusFor(err), err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":             "container started successfully",
		"DNS":                 session.DNS,
		"resource_group_name": session.ResourceGroup,
	})
}

func (h *SessionHandler) StopContainer(c *fiber.Ctx) error {
	var req StopContainerRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, fiber.StatusBadRequest, err)
	}

	// Every stop failure, including a missing group, is reported as a bad request.
	if err := h.service.StopSession(c.UserContext(), req.ResourceGroupName); err != nil {
		return h.fail(c, fiber.StatusBadRequest, err)
	}

	return c.JSON(fiber.Map{
		"message": "container stopped successfully",
	})
}

func (h *SessionHandler) StopAllContainers(c *fiber.Ctx) error {
	resourceGroups, err := h.service.StopAllSessions(c.UserContext())
	if err != nil {
		return h.fail(c, statusFor(err), err)
	}

	return c.JSON(fiber.Map{
		"message":         "all containers stopped successfully",
		"resource_groups": resourceGroups,
	})
}

func (h *SessionHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "UP"})
}

func (h *SessionHandler) ListContainers(c *fiber.Ctx) error {
	sessions, err := h.service.ListSessions(c.UserContext())
	if err != nil {
		return h.fail(c, statusFor(err), err)
	}
	return c.JSON(fiber.Map{"containers": sessions})
}

func (h *SessionHandler) GetContainerLogs(c *fiber.Ctx) error {
	logs, err := h.service.SessionLogs(c.UserContext(), c.Params("resource_group_name"), c.QueryInt("tail", 0))
	if err != nil {
		return h.fail(c, statusFor(err), err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(logs)
}

// parseBody decodes a JSON body. An empty body leaves out untouched so the
// service can report the missing fields.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return domain.NewError(domain.KindBadRequest, "invalid request body", err)
	}
	return nil
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindBadRequest, domain.KindConflict:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *SessionHandler) fail(c *fiber.Ctx, status int, err error) error {
	entry := h.log.WithFields(logrus.Fields{
		"path":   c.Path(),
		"status": status,
	}).WithError(err)
	if domain.KindOf(err) == domain.KindInternal {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}
	return c.Status(status).JSON(fiber.Map{
		"message": domain.MessageOf(err),
	})
}
