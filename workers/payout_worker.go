// workers/payout_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"coin-reward-system/models"
	"coin-reward-system/services"
)

// PayoutClient dispatches approved withdrawals to the external payout
// provider. Settlement results come back asynchronously over the webhook.
type PayoutClient struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	Withdrawals *services.WithdrawalService
}

func NewPayoutClient(withdrawals *services.WithdrawalService) *PayoutClient {
	baseURL := os.Getenv("PAYOUT_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("PAYOUT_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("PAYOUT_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("PAYOUT_SERVICE_TOKEN environment variable is required for payout dispatch")
	}

	return &PayoutClient{
		BaseURL:     baseURL,
		Token:       token,
		Withdrawals: withdrawals,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type payoutRequest struct {
	WithdrawalID string  `json:"withdrawalId"`
	AmountINR    float64 `json:"amountInr"`
	UPIID        string  `json:"upiId"`
}

// Dispatch sends one withdrawal to the provider.
func (c *PayoutClient) Dispatch(ctx context.Context, w models.Withdrawal) error {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/payouts", c.BaseURL))
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	body, err := json.Marshal(payoutRequest{
		WithdrawalID: w.ID,
		AmountINR:    w.AmountINR,
		UPIID:        w.UPIID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payout service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("payout service returned status %d: %s", resp.StatusCode, string(errBody))
	}

	return nil
}

// PollWithdrawals claims approved withdrawals and hands them to the payout
// provider. The claim (approved → processing) happens before the dispatch so
// a second worker instance never sends the same payout twice; a dispatch
// failure flips the row to failed, which refunds the user.
func PollWithdrawals(ctx context.Context, client *PayoutClient, pollInterval time.Duration) {
	log.Println("🏦 Starting withdrawal payout worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Withdrawal payout worker stopped")
			return
		case <-ticker.C:
			batch, err := client.Withdrawals.PendingDispatch(20)
			if err != nil {
				log.Printf("❌ Error listing approved withdrawals: %v", err)
				continue
			}
			if len(batch) == 0 {
				continue
			}
			log.Printf("📥 Dispatching %d approved withdrawal(s)...", len(batch))

			for _, w := range batch {
				if err := client.Withdrawals.MarkProcessing(w.ID); err != nil {
					// Another instance claimed it first.
					log.Printf("⚠️ Skipping withdrawal %s: %v", w.ID, err)
					continue
				}

				if err := client.Dispatch(ctx, w); err != nil {
					log.Printf("❌ Payout dispatch failed for %s: %v", w.ID, err)
					if failErr := client.Withdrawals.Settle(w.ID, models.WithdrawalStatusFailed, ""); failErr != nil {
						log.Printf("❌ Could not mark withdrawal %s failed: %v", w.ID, failErr)
					}
					continue
				}
				log.Printf("✅ Payout dispatched for withdrawal %s (₹%.2f to %s)", w.ID, w.AmountINR, w.UPIID)
			}
		}
	}
}
