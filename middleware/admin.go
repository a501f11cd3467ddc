package middleware

import (
	"log"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminMiddleware gates admin routes. It runs after AuthMiddleware and
// checks the persisted flag rather than trusting the token claim, so
// revoking admin takes effect immediately.
func AdminMiddleware(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		var user models.User
		if err := db.Select("id", "is_admin").First(&user, "id = ?", userID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		if !user.IsAdmin {
			log.Printf("⚠️ [ADMIN] User %s denied on %s", userID, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}

		c.Locals("is_admin", true)
		return c.Next()
	}
}
