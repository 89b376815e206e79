package handlers

import (
	"log/slog"

	"profiles/internal/middleware"
	"profiles/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProfileHandler serves the authenticated user's own account.
type ProfileHandler struct {
	accounts *services.AccountService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// RegisterRoutes registers profile routes. router must be behind AuthRequired.
func (h *ProfileHandler) RegisterRoutes(router fiber.Router) {
	me := router.Group("/users/me")
	me.Get("/", h.HandleGetMe)
	me.Get("/image", h.HandleGetImage)
	me.Post("/image", h.HandleUploadImage)
}

// HandleGetMe returns the current user.
func (h *ProfileHandler) HandleGetMe(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.LocalUserID).(string)
	user, err := h.accounts.GetUser(userID)
	if err != nil {
		return errorResponse(c, "Could not load user", err)
	}
	return c.JSON(user)
}

// HandleGetImage streams the current user's profile image.
func (h *ProfileHandler) HandleGetImage(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.LocalUserID).(string)
	body, contentType, err := h.accounts.ProfileImage(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, "Could not load profile image", err)
	}
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.SendStream(body)
}

// HandleUploadImage stores the multipart "image" field as the profile image.
func (h *ProfileHandler) HandleUploadImage(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.LocalUserID).(string)

	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Multipart field 'image' is required",
			"error":   err.Error(),
		})
	}

	file, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Could not read uploaded file",
			"error":   err.Error(),
		})
	}
	defer file.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	user, err := h.accounts.SetProfileImage(c.UserContext(), userID, fh.Filename, file, contentType)
	if err != nil {
		slog.Warn("profile image upload failed", "user_id", userID, "error", err)
		return errorResponse(c, "Could not update profile image", err)
	}

	return c.JSON(fiber.Map{
		"message":       "Profile image updated",
		"profile_image": user.ProfileImage,
	})
}
