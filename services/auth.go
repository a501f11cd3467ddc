package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidInitData = errors.New("invalid telegram init data")

// AuthService validates Telegram Mini App init data, bootstraps users on
// first login and issues session JWTs.
type AuthService struct {
	DB        *gorm.DB
	Settings  *SettingsService
	Referrals *ReferralService

	botToken  string
	jwtSecret []byte
}

func NewAuthService(db *gorm.DB, settings *SettingsService, referrals *ReferralService) *AuthService {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Printf("⚠️ [AUTH] TELEGRAM_BOT_TOKEN not set — init data validation will reject all logins")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Printf("⚠️ [AUTH] JWT_SECRET not set — using insecure default, do not run this in production")
		jwtSecret = "dev-secret-change-me"
	}
	return &AuthService{
		DB:        db,
		Settings:  settings,
		Referrals: referrals,
		botToken:  botToken,
		jwtSecret: []byte(jwtSecret),
	}
}

// telegramUser is the `user` field embedded in init data.
type telegramUser struct {
	ID        int64   `json:"id"`
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// ValidateInitData checks the HMAC Telegram attaches to Mini App init data.
// The secret key is HMAC-SHA256("WebAppData", botToken); the signed payload
// is the remaining fields as sorted key=value lines.
func (s *AuthService) ValidateInitData(initData string) (*telegramUser, string, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, "", ErrInvalidInitData
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, "", ErrInvalidInitData
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	dataCheckString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(s.botToken))
	secretKey := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(dataCheckString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(receivedHash)) {
		return nil, "", ErrInvalidInitData
	}

	var tgUser telegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &tgUser); err != nil || tgUser.ID == 0 {
		return nil, "", ErrInvalidInitData
	}

	return &tgUser, values.Get("start_param"), nil
}

// Login validates init data, creates the user on first visit (resolving the
// referral code carried in start_param) and returns a signed session token.
func (s *AuthService) Login(initData string) (*models.User, string, error) {
	tgUser, startParam, err := s.ValidateInitData(initData)
	if err != nil {
		return nil, "", err
	}

	user, err := s.findOrCreateUser(tgUser, startParam)
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) findOrCreateUser(tgUser *telegramUser, startParam string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "telegram_id = ?", tgUser.ID).Error
	if err == nil {
		// Existing user: keep the profile fields fresh.
		s.DB.Model(&user).Updates(map[string]interface{}{
			"username":   tgUser.Username,
			"first_name": tgUser.FirstName,
			"last_name":  tgUser.LastName,
		})
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, classifyStoreError(err)
	}

	cfg, err := s.Settings.CoinSettings()
	if err != nil {
		return nil, err
	}

	var referrer *models.User
	if code := referralCodeFromStartParam(startParam); code != "" {
		referrer, err = s.Referrals.ResolveReferralCode(code)
		if err != nil {
			return nil, err
		}
	}

	user = models.User{
		ID:            uuid.NewString(),
		TelegramID:    tgUser.ID,
		Username:      tgUser.Username,
		FirstName:     tgUser.FirstName,
		LastName:      tgUser.LastName,
		Level:         1,
		TapsRemaining: cfg.MaxTapsPerDay,
		ReferralCode:  generateReferralCode(),
	}
	if referrer != nil && referrer.TelegramID != tgUser.ID {
		user.ReferredBy = &referrer.ID
	}

	if err := s.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent first login for the same Telegram account.
			if err := s.DB.First(&user, "telegram_id = ?", tgUser.ID).Error; err != nil {
				return nil, classifyStoreError(err)
			}
			return &user, nil
		}
		return nil, classifyStoreError(err)
	}
	log.Printf("✅ [AUTH] Created user %s (telegram %d)", user.ID, user.TelegramID)

	if user.ReferredBy != nil {
		if err := s.Referrals.RewardReferrer(*user.ReferredBy, user.ID); err != nil {
			// The signup itself succeeded; the reward can be retried.
			log.Printf("⚠️ [AUTH] Referral reward for %s failed: %v", *user.ReferredBy, err)
		}
	}
	return &user, nil
}

// referralCodeFromStartParam extracts the code from start_param, which the
// bot link encodes either bare ("ABC123") or as "ref=ABC123".
func referralCodeFromStartParam(startParam string) string {
	if startParam == "" {
		return ""
	}
	if strings.Contains(startParam, "=") {
		if values, err := url.ParseQuery(startParam); err == nil {
			if ref := values.Get("ref"); ref != "" {
				return ref
			}
		}
		return ""
	}
	return startParam
}

const referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateReferralCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable anyway; fall back to uuid.
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	for i := range buf {
		buf[i] = referralCodeAlphabet[int(buf[i])%len(referralCodeAlphabet)]
	}
	return string(buf)
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"tg_id": strconv.FormatInt(user.TelegramID, 10),
		"admin": user.IsAdmin,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(7 * 24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ParseToken validates a session JWT and returns the user ID it carries.
func (s *AuthService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}

// --- Fiber handlers ---

// HandleLogin exchanges Telegram init data for a session token.
func (s *AuthService) HandleLogin(c *fiber.Ctx) error {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := c.BodyParser(&req); err != nil || req.InitData == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "initData is required"})
	}

	user, token, err := s.Login(req.InitData)
	if err != nil {
		if errors.Is(err, ErrInvalidInitData) {
			log.Printf("❌ [AUTH] Init data validation failed from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid init data"})
		}
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"token": token, "user": user})
}

// HandleMe returns the authenticated user's profile.
func (s *AuthService) HandleMe(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
