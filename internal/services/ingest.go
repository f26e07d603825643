package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mtg-tracker/internal/models"
	"mtg-tracker/internal/services/scryfall"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogSource is the slice of the scryfall client the pipeline needs.
type CatalogSource interface {
	DefaultBulkData(ctx context.Context) (*scryfall.BulkData, error)
	StreamBulkCards(ctx context.Context, uri string, fn func(scryfall.Card) error) error
}

// IngestResult reports how much one ingestion run committed.
type IngestResult struct {
	ItemsProcessed int `json:"items_processed"`
	PricesUpdated  int `json:"prices_updated"`
}

// Layouts that never represent a priced physical product.
var excludedLayouts = map[string]bool{
	"token":              true,
	"double_faced_token": true,
	"art_series":         true,
	"emblem":             true,
}

// priceFields is the fixed schema of price observations per bulk record.
// Each entry binds one field of the prices sub-object to a market, a price
// kind and the finish variant it belongs to.
var priceFields = []struct {
	get      func(scryfall.Prices) *string
	market   string
	kind     string
	currency string
	finish   string
}{
	{func(p scryfall.Prices) *string { return p.USD }, "tcgplayer", "normal", "USD", "nonfoil"},
	{func(p scryfall.Prices) *string { return p.USDFoil }, "tcgplayer", "foil", "USD", "foil"},
	{func(p scryfall.Prices) *string { return p.USDEtched }, "tcgplayer", "etched", "USD", "etched"},
	{func(p scryfall.Prices) *string { return p.EUR }, "cardmarket", "normal", "EUR", "nonfoil"},
	{func(p scryfall.Prices) *string { return p.EURFoil }, "cardmarket", "foil", "EUR", "foil"},
	{func(p scryfall.Prices) *string { return p.Tix }, "cardhoarder", "normal", "TIX", "nonfoil"},
}

// VariantID is the catalog-unique key for one finish of one printing.
func VariantID(printingID, finish string) string {
	switch finish {
	case "foil":
		return printingID + "_foil"
	case "etched":
		return printingID + "_etched"
	default:
		return printingID
	}
}

// BulkIngestService downloads the full catalog and maintains the card table,
// the current-price snapshot and the daily price history.
type BulkIngestService struct {
	db        *gorm.DB
	source    CatalogSource
	batchSize int
	timeout   time.Duration
	log       *zap.SugaredLogger
}

func NewBulkIngestService(db *gorm.DB, source CatalogSource, batchSize int, timeout time.Duration, log *zap.SugaredLogger) *BulkIngestService {
	if batchSize <= 0 {
		batchSize = 150
	}
	return &BulkIngestService{
		db:        db,
		source:    source,
		batchSize: batchSize,
		timeout:   timeout,
		log:       log.With("service", "ingest"),
	}
}

// Ingest streams the default bulk catalog into the database. maxItems caps
// the number of accepted records when positive. Manifest or download failures
// abort the run; a batch failure aborts its own transaction but committed
// batches stand, and re-ingestion is idempotent.
func (s *BulkIngestService) Ingest(ctx context.Context, maxItems int) (*IngestResult, error) {
	bulk, err := s.source.DefaultBulkData(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Infow("starting bulk ingestion", "uri", bulk.DownloadURI, "size", bulk.Size, "updated_at", bulk.UpdatedAt)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result := &IngestResult{}
	day := time.Now().UTC().Format("2006-01-02")
	batch := make([]scryfall.Card, 0, s.batchSize)
	seen := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		prices, err := s.processBatch(batch, day)
		if err != nil {
			return err
		}
		result.ItemsProcessed += len(batch)
		result.PricesUpdated += prices
		batch = batch[:0]
		return nil
	}

	err = s.source.StreamBulkCards(ctx, bulk.DownloadURI, func(card scryfall.Card) error {
		seen++
		if seen%10000 == 0 {
			s.log.Infow("ingestion progress", "records_seen", seen, "items_processed", result.ItemsProcessed)
		}

		if !keepCard(card) {
			return nil
		}

		batch = append(batch, card)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		if maxItems > 0 && result.ItemsProcessed+len(batch) >= maxItems {
			return scryfall.ErrStopStreaming
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if err := flush(); err != nil {
		return result, err
	}

	s.log.Infow("bulk ingestion finished", "items_processed", result.ItemsProcessed, "prices_updated", result.PricesUpdated)
	return result, nil
}

// keepCard keeps English paper cards with a collectible layout.
func keepCard(card scryfall.Card) bool {
	if card.Lang != "en" {
		return false
	}
	if excludedLayouts[card.Layout] {
		return false
	}
	for _, game := range card.Games {
		if game == "paper" {
			return true
		}
	}
	return false
}

// processBatch writes one batch in a single transaction: card upserts first,
// then the price snapshot and the daily history points that reference them.
// Returns the number of snapshot rows written.
func (s *BulkIngestService) processBatch(batch []scryfall.Card, day string) (int, error) {
	cards := make([]models.Card, 0, len(batch))
	snapshots := make([]models.CardPrice, 0, len(batch))
	history := make([]models.CardPriceHistory, 0, len(batch))
	now := time.Now().UTC()

	for _, record := range batch {
		finishes := make(map[string]bool, len(record.Finishes))
		for _, finish := range record.Finishes {
			finishes[finish] = true
			cards = append(cards, cardModel(record, finish))
		}
		if len(record.Finishes) == 0 {
			finishes["nonfoil"] = true
			cards = append(cards, cardModel(record, "nonfoil"))
		}

		for _, field := range priceFields {
			raw := field.get(record.Prices)
			if raw == nil || !finishes[field.finish] {
				continue
			}
			amount, err := strconv.ParseFloat(*raw, 64)
			if err != nil || amount <= 0 {
				continue
			}
			variant := VariantID(record.ID, field.finish)
			snapshots = append(snapshots, models.CardPrice{
				ScryfallID: variant,
				Market:     field.market,
				Kind:       field.kind,
				Currency:   field.currency,
				Amount:     amount,
				UpdatedAt:  now,
			})
			history = append(history, models.CardPriceHistory{
				ScryfallID: variant,
				Market:     field.market,
				Kind:       field.kind,
				Day:        day,
				Currency:   field.currency,
				Amount:     amount,
				RecordedAt: now,
			})
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scryfall_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"oracle_id", "printing_id", "name", "set_code", "collector_number",
				"finish", "type_line", "oracle_text", "mana_cost", "mana_value",
				"colors", "rarity", "image_url", "updated_at",
			}),
		}).Create(&cards).Error; err != nil {
			return fmt.Errorf("upserting cards: %w", err)
		}

		if len(snapshots) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "scryfall_id"}, {Name: "market"}, {Name: "kind"}, {Name: "currency"}},
				DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
			}).Create(&snapshots).Error; err != nil {
				return fmt.Errorf("upserting price snapshots: %w", err)
			}
		}

		if len(history) > 0 {
			// One history point per variant/market/kind per day: the second
			// insert of the same day is dropped at the unique index.
			if err := tx.Clauses(clause.OnConflict{
				DoNothing: true,
			}).Create(&history).Error; err != nil {
				return fmt.Errorf("inserting price history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(snapshots), nil
}

func cardModel(record scryfall.Card, finish string) models.Card {
	colors := ""
	for _, c := range record.Colors {
		colors += c
	}
	return models.Card{
		ScryfallID:      VariantID(record.ID, finish),
		OracleID:        record.OracleID,
		PrintingID:      record.ID,
		Name:            record.Name,
		SetCode:         record.Set,
		CollectorNumber: record.CollectorNumber,
		Finish:          finish,
		TypeLine:        record.TypeLine,
		OracleText:      record.OracleText,
		ManaCost:        record.ManaCost,
		ManaValue:       record.CMC,
		Colors:          colors,
		Rarity:          record.Rarity,
		ImageURL:        record.ImageURIs["normal"],
	}
}
