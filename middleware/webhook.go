package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const webhookTimestampWindow = 5 * time.Minute

// WebhookAuthMiddleware verifies payout provider callbacks. The signature is
// HMAC-SHA256 over "<timestamp>.<raw body>" with the shared secret, and the
// timestamp must be within a 5-minute window to limit replay.
func WebhookAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Webhook-Signature")
		timestamp := c.Get("X-Webhook-Timestamp")
		if signature == "" || timestamp == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing webhook signature headers",
			})
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid webhook timestamp",
			})
		}
		drift := time.Since(time.Unix(ts, 0))
		if drift > webhookTimestampWindow || drift < -webhookTimestampWindow {
			log.Printf("❌ [WEBHOOK] Stale timestamp (drift %s) on %s", drift, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "webhook timestamp outside allowed window",
			})
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
		mac.Write(c.Body())
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(signature)) {
			log.Printf("❌ [WEBHOOK] Signature mismatch on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid webhook signature",
			})
		}

		return c.Next()
	}
}
