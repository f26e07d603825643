package services

import (
	"context"
	"encoding/json"
	"fmt"

	"mtg-tracker/internal/models"
	"mtg-tracker/internal/services/push"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PushSender is the delivery sink used by the alert job.
type PushSender interface {
	SendBatch(ctx context.Context, messages []push.Message) error
}

// AlertService evaluates enabled price alerts against the current price
// snapshot and fires each one at most once per enable cycle.
type AlertService struct {
	db   *gorm.DB
	push PushSender
	log  *zap.SugaredLogger
}

func NewAlertService(db *gorm.DB, sender PushSender, log *zap.SugaredLogger) *AlertService {
	return &AlertService{
		db:   db,
		push: sender,
		log:  log.With("service", "alerts"),
	}
}

// EvaluateAlerts runs one evaluation cycle. Nothing escapes to the caller: a
// failed cycle only delays alerts until the next one, it never duplicates
// them.
func (s *AlertService) EvaluateAlerts(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("alert evaluation panicked", "panic", r)
		}
	}()

	if err := s.evaluate(ctx); err != nil {
		s.log.Errorw("alert evaluation failed", "error", err)
	}
}

func priceKey(scryfallID, market, kind, currency string) string {
	return scryfallID + "|" + market + "|" + kind + "|" + currency
}

func (s *AlertService) evaluate(ctx context.Context) error {
	var alerts []models.PriceAlert
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&alerts).Error; err != nil {
		return fmt.Errorf("loading enabled alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	variantIDs := make([]string, 0, len(alerts))
	seen := make(map[string]bool, len(alerts))
	for _, alert := range alerts {
		if !seen[alert.ScryfallID] {
			seen[alert.ScryfallID] = true
			variantIDs = append(variantIDs, alert.ScryfallID)
		}
	}

	var prices []models.CardPrice
	if err := s.db.WithContext(ctx).Where("scryfall_id IN ?", variantIDs).Find(&prices).Error; err != nil {
		return fmt.Errorf("loading price snapshots: %w", err)
	}
	priceBy := make(map[string]models.CardPrice, len(prices))
	for _, p := range prices {
		priceBy[priceKey(p.ScryfallID, p.Market, p.Kind, p.Currency)] = p
	}

	var cards []models.Card
	if err := s.db.WithContext(ctx).Select("scryfall_id", "name").Where("scryfall_id IN ?", variantIDs).Find(&cards).Error; err != nil {
		return fmt.Errorf("loading card names: %w", err)
	}
	nameBy := make(map[string]string, len(cards))
	for _, c := range cards {
		nameBy[c.ScryfallID] = c.Name
	}

	type firing struct {
		alert models.PriceAlert
		price models.CardPrice
		name  string
	}
	var fired []firing

	for _, alert := range alerts {
		price, ok := priceBy[priceKey(alert.ScryfallID, alert.Market, alert.Kind, alert.Currency)]
		if !ok {
			// No price data yet for this variant; not an error.
			continue
		}
		if !triggered(alert, price.Amount) {
			continue
		}

		name := nameBy[alert.ScryfallID]
		if name == "" {
			name = alert.ScryfallID
		}

		if err := s.fireAlert(ctx, alert, price, name); err != nil {
			s.log.Errorw("failed to fire alert", "alert_id", alert.ID, "error", err)
			continue
		}
		fired = append(fired, firing{alert: alert, price: price, name: name})
	}

	if len(fired) == 0 {
		return nil
	}
	s.log.Infow("alerts triggered", "count", len(fired))

	userIDs := make([]uint, 0, len(fired))
	uniqUsers := make(map[uint]bool, len(fired))
	for _, f := range fired {
		if !uniqUsers[f.alert.UserID] {
			uniqUsers[f.alert.UserID] = true
			userIDs = append(userIDs, f.alert.UserID)
		}
	}

	var tokens []models.DeviceToken
	if err := s.db.WithContext(ctx).Where("user_id IN ? AND active = ?", userIDs, true).Find(&tokens).Error; err != nil {
		return fmt.Errorf("loading device tokens: %w", err)
	}
	tokensBy := make(map[uint][]string)
	for _, t := range tokens {
		tokensBy[t.UserID] = append(tokensBy[t.UserID], t.Token)
	}

	var batch []push.Message
	for _, f := range fired {
		title, body := alertCopy(f.name, f.alert, f.price)
		for _, token := range tokensBy[f.alert.UserID] {
			batch = append(batch, push.Message{
				To:    token,
				Title: title,
				Body:  body,
				Data: map[string]interface{}{
					"type":        "price_alert",
					"scryfall_id": f.alert.ScryfallID,
					"amount":      f.price.Amount,
				},
			})
		}
	}

	if len(batch) > 0 {
		// Best effort; a delivery failure never rolls back notifications.
		if err := s.push.SendBatch(ctx, batch); err != nil {
			s.log.Warnw("push delivery incomplete", "error", err)
		}
	}
	return nil
}

// triggered applies the inclusive threshold comparison.
func triggered(alert models.PriceAlert, amount float64) bool {
	switch alert.Direction {
	case "above":
		return amount >= alert.Threshold
	case "below":
		return amount <= alert.Threshold
	default:
		return false
	}
}

// fireAlert creates the notification and disables the alert in one
// transaction so each threshold fires at most once per enable cycle.
func (s *AlertService) fireAlert(ctx context.Context, alert models.PriceAlert, price models.CardPrice, name string) error {
	title, body := alertCopy(name, alert, price)
	payload, err := json.Marshal(map[string]interface{}{
		"alert_id":    alert.ID,
		"scryfall_id": alert.ScryfallID,
		"market":      alert.Market,
		"kind":        alert.Kind,
		"currency":    alert.Currency,
		"amount":      price.Amount,
		"threshold":   alert.Threshold,
		"direction":   alert.Direction,
	})
	if err != nil {
		return fmt.Errorf("encoding notification payload: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		notification := models.Notification{
			UserID:  alert.UserID,
			Type:    "price_alert",
			Title:   title,
			Body:    body,
			Payload: payload,
		}
		if err := tx.Create(&notification).Error; err != nil {
			return fmt.Errorf("creating notification: %w", err)
		}
		if err := tx.Model(&models.PriceAlert{}).Where("id = ?", alert.ID).Update("enabled", false).Error; err != nil {
			return fmt.Errorf("disabling alert: %w", err)
		}
		return nil
	})
}

func alertCopy(name string, alert models.PriceAlert, price models.CardPrice) (title, body string) {
	title = fmt.Sprintf("Price alert: %s", name)
	body = fmt.Sprintf("%s is now %.2f %s (%s your %.2f %s threshold)",
		name, price.Amount, price.Currency, alert.Direction, alert.Threshold, alert.Currency)
	return title, body
}
