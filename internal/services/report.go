package services

import (
	"context"
	"fmt"

	"mtg-tracker/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportService exports price history as a spreadsheet for admin download.
type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// PriceHistoryXLSX builds a workbook with one row per history point for the
// given variant, oldest day first.
func (s *ReportService) PriceHistoryXLSX(ctx context.Context, scryfallID string) (*excelize.File, error) {
	var points []models.CardPriceHistory
	if err := s.db.WithContext(ctx).
		Where("scryfall_id = ?", scryfallID).
		Order("day ASC, market ASC, kind ASC").
		Find(&points).Error; err != nil {
		return nil, fmt.Errorf("loading price history: %w", err)
	}

	f := excelize.NewFile()
	sheet := "Price History"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Day", "Market", "Kind", "Currency", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing report header: %w", err)
		}
	}

	for row, p := range points {
		values := []interface{}{p.Day, p.Market, p.Kind, p.Currency, p.Amount}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("writing report row: %w", err)
			}
		}
	}

	return f, nil
}
