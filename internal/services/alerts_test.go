package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mtg-tracker/internal/models"
	"mtg-tracker/internal/services/push"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturingSender struct {
	batches [][]push.Message
}

func (c *capturingSender) SendBatch(_ context.Context, messages []push.Message) error {
	c.batches = append(c.batches, messages)
	return nil
}

func (c *capturingSender) all() []push.Message {
	var out []push.Message
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func seedVariant(t *testing.T, db *gorm.DB, scryfallID, name string, amount float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.Card{
		ScryfallID: scryfallID,
		PrintingID: scryfallID,
		OracleID:   "oracle-" + scryfallID,
		Name:       name,
		Finish:     "nonfoil",
	}).Error)
	require.NoError(t, db.Create(&models.CardPrice{
		ScryfallID: scryfallID,
		Market:     "tcgplayer",
		Kind:       "normal",
		Currency:   "USD",
		Amount:     amount,
		UpdatedAt:  time.Now().UTC(),
	}).Error)
}

func seedAlert(t *testing.T, db *gorm.DB, userID uint, scryfallID, direction string, threshold float64) models.PriceAlert {
	t.Helper()
	alert := models.PriceAlert{
		UserID:     userID,
		ScryfallID: scryfallID,
		Market:     "tcgplayer",
		Kind:       "normal",
		Currency:   "USD",
		Threshold:  threshold,
		Direction:  direction,
		Enabled:    true,
	}
	require.NoError(t, db.Create(&alert).Error)
	return alert
}

func TestEvaluateThresholdBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		direction string
		threshold float64
		amount    float64
		fires     bool
	}{
		{"below under threshold", "below", 5.00, 4.99, true},
		{"below at threshold", "below", 5.00, 5.00, true},
		{"below over threshold", "below", 5.00, 5.01, false},
		{"above over threshold", "above", 5.00, 5.01, true},
		{"above at threshold", "above", 5.00, 5.00, true},
		{"above under threshold", "above", 5.00, 4.99, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			sender := &capturingSender{}
			svc := NewAlertService(db, sender, testLogger())

			seedVariant(t, db, "card-1", "Lightning Bolt", tc.amount)
			seedAlert(t, db, 1, "card-1", tc.direction, tc.threshold)

			svc.EvaluateAlerts(context.Background())

			var notifications int64
			require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
			if tc.fires {
				assert.EqualValues(t, 1, notifications)
			} else {
				assert.EqualValues(t, 0, notifications)
			}
		})
	}
}

func TestEvaluateDisablesTriggeredAlert(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	created := seedAlert(t, db, 1, "card-1", "below", 5.00)

	svc.EvaluateAlerts(context.Background())

	var alert models.PriceAlert
	require.NoError(t, db.First(&alert, created.ID).Error)
	assert.False(t, alert.Enabled)

	var notification models.Notification
	require.NoError(t, db.First(&notification).Error)
	assert.EqualValues(t, 1, notification.UserID)
	assert.Equal(t, "price_alert", notification.Type)
	assert.Contains(t, notification.Title, "Lightning Bolt")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(notification.Payload, &payload))
	assert.Equal(t, "card-1", payload["scryfall_id"])
	assert.Equal(t, 2.00, payload["amount"])
}

func TestEvaluateFiresAtMostOnce(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	seedAlert(t, db, 1, "card-1", "below", 5.00)

	svc.EvaluateAlerts(context.Background())
	svc.EvaluateAlerts(context.Background())

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.EqualValues(t, 1, notifications, "a disabled alert must stay inert")
}

func TestEvaluateSkipsAlertsWithoutPriceData(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	// Alert references a variant that was never ingested.
	seedAlert(t, db, 1, "card-unknown", "below", 5.00)

	svc.EvaluateAlerts(context.Background())

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.EqualValues(t, 0, notifications)

	var alert models.PriceAlert
	require.NoError(t, db.First(&alert).Error)
	assert.True(t, alert.Enabled, "alerts without price data stay armed")
}

func TestEvaluateIgnoresDisabledAlerts(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	alert := seedAlert(t, db, 1, "card-1", "below", 5.00)
	require.NoError(t, db.Model(&alert).Update("enabled", false).Error)

	svc.EvaluateAlerts(context.Background())

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.EqualValues(t, 0, notifications)
}

func TestAlertCreatedDisabledStaysInert(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	// Inserted with Enabled=false: the flag must persist as written.
	disabled := models.PriceAlert{
		UserID:     1,
		ScryfallID: "card-1",
		Market:     "tcgplayer",
		Kind:       "normal",
		Currency:   "USD",
		Threshold:  5.00,
		Direction:  "below",
		Enabled:    false,
	}
	require.NoError(t, db.Create(&disabled).Error)

	var stored models.PriceAlert
	require.NoError(t, db.First(&stored, disabled.ID).Error)
	require.False(t, stored.Enabled)

	svc.EvaluateAlerts(context.Background())

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.EqualValues(t, 0, notifications)
}

func TestEvaluateDeliversToAllUserDevices(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	seedAlert(t, db, 1, "card-1", "below", 5.00)

	require.NoError(t, db.Create(&models.DeviceToken{UserID: 1, Token: "tok-a", Active: true}).Error)
	require.NoError(t, db.Create(&models.DeviceToken{UserID: 1, Token: "tok-b", Active: true}).Error)
	require.NoError(t, db.Create(&models.DeviceToken{UserID: 1, Token: "tok-c", Active: false}).Error)
	require.NoError(t, db.Create(&models.DeviceToken{UserID: 2, Token: "tok-other", Active: true}).Error)

	// The deactivated token must round-trip as inactive, not be revived by a
	// column default on insert.
	var inactive models.DeviceToken
	require.NoError(t, db.Where("token = ?", "tok-c").First(&inactive).Error)
	require.False(t, inactive.Active)

	svc.EvaluateAlerts(context.Background())

	messages := sender.all()
	require.Len(t, messages, 2)
	tokens := []string{messages[0].To, messages[1].To}
	assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, tokens)
	assert.Contains(t, messages[0].Body, "Lightning Bolt")
	assert.Equal(t, "price_alert", messages[0].Data["type"])
}

func TestEvaluateWithoutDevicesStillNotifies(t *testing.T) {
	db := newTestDB(t)
	sender := &capturingSender{}
	svc := NewAlertService(db, sender, testLogger())

	seedVariant(t, db, "card-1", "Lightning Bolt", 2.00)
	seedAlert(t, db, 1, "card-1", "below", 5.00)

	svc.EvaluateAlerts(context.Background())

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.EqualValues(t, 1, notifications)
	assert.Empty(t, sender.all())
}
