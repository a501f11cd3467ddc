package services

import (
	"errors"
	"fmt"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskService grants a one-time reward per (user, task) pair. The unique
// index on the completion row is the concurrency guard; the completion insert
// and the credit commit or roll back together.
type TaskService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewTaskService(db *gorm.DB, ledger *LedgerService) *TaskService {
	return &TaskService{DB: db, Ledger: ledger}
}

// TaskCompletionResult carries the credited reward and the updated account.
type TaskCompletionResult struct {
	CoinsEarned int64 `json:"coinsEarned"`
	CoinBalance int64 `json:"coinBalance"`
	TotalEarned int64 `json:"totalEarned"`
	Level       int   `json:"level"`
}

// CompleteTask credits the task reward exactly once per user.
func (s *TaskService) CompleteTask(userID, taskID string) (*TaskCompletionResult, error) {
	var result *TaskCompletionResult
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ? AND active = ?", taskID, true).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		completion := models.TaskCompletion{
			ID:     uuid.NewString(),
			UserID: userID,
			TaskID: taskID,
		}
		if err := tx.Create(&completion).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyCompleted
			}
			return err
		}

		// If this fails the whole transaction rolls back: a completion row
		// must never persist without its paired credit.
		user, err := s.Ledger.Credit(tx, userID, task.Reward, models.TxTypeTask, fmt.Sprintf("Completed task: %s", task.Title))
		if err != nil {
			return err
		}

		result = &TaskCompletionResult{
			CoinsEarned: task.Reward,
			CoinBalance: user.CoinBalance,
			TotalEarned: user.TotalEarned,
			Level:       user.Level,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// taskWithStatus decorates a catalog entry with the caller's completion flag.
type taskWithStatus struct {
	models.Task
	Completed bool `json:"completed"`
}

// ListTasks returns active tasks with per-user completion status.
func (s *TaskService) ListTasks(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var tasks []models.Task
	if err := s.DB.Where("active = ?", true).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}

	var completions []models.TaskCompletion
	if err := s.DB.Where("user_id = ?", userID).Find(&completions).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}
	done := make(map[string]bool, len(completions))
	for _, comp := range completions {
		done[comp.TaskID] = true
	}

	out := make([]taskWithStatus, len(tasks))
	for i, task := range tasks {
		out[i] = taskWithStatus{Task: task, Completed: done[task.ID]}
	}
	return c.JSON(out)
}

// HandleCompleteTask is the HTTP surface of CompleteTask.
func (s *TaskService) HandleCompleteTask(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	taskID := c.Params("taskId")

	result, err := s.CompleteTask(userID, taskID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"coinsEarned": result.CoinsEarned,
		"coinBalance": result.CoinBalance,
		"totalEarned": result.TotalEarned,
		"level":       result.Level,
	})
}

// CreateTask adds a catalog entry (Admin only)
func (s *TaskService) CreateTask(c *fiber.Ctx) error {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ActionURL   string `json:"action_url"`
		Reward      int64  `json:"reward"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" || req.Reward <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and a positive reward are required"})
	}

	task := models.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		ActionURL:   req.ActionURL,
		Reward:      req.Reward,
		Active:      true,
	}
	if err := s.DB.Create(&task).Error; err != nil {
		return respondError(c, classifyStoreError(err))
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// DeactivateTask retires a catalog entry without deleting completion history
// (Admin only)
func (s *TaskService) DeactivateTask(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	res := s.DB.Model(&models.Task{}).Where("id = ?", taskID).Update("active", false)
	if res.Error != nil {
		return respondError(c, classifyStoreError(res.Error))
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": "Task not found"})
	}
	return c.JSON(fiber.Map{"message": "Task deactivated"})
}
