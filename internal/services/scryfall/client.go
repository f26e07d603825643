// Package scryfall wraps the Scryfall catalog API: the bulk-data manifest,
// the streamed bulk card file, and the per-card live lookup.
package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNoDefaultBulk is returned when the manifest has no default_cards entry.
var ErrNoDefaultBulk = errors.New("scryfall: bulk-data manifest has no default_cards entry")

// ErrStopStreaming can be returned by a StreamBulkCards callback to end the
// stream early without an error.
var ErrStopStreaming = errors.New("scryfall: stop streaming")

// BulkData is one downloadable dataset descriptor from the manifest.
type BulkData struct {
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	DownloadURI string    `json:"download_uri"`
	UpdatedAt   time.Time `json:"updated_at"`
	Size        int64     `json:"size"`
}

type bulkDataList struct {
	Data []BulkData `json:"data"`
}

// Prices is the per-market price sub-object. Scryfall encodes amounts as
// decimal strings, null when a market has no listing.
type Prices struct {
	USD       *string `json:"usd"`
	USDFoil   *string `json:"usd_foil"`
	USDEtched *string `json:"usd_etched"`
	EUR       *string `json:"eur"`
	EURFoil   *string `json:"eur_foil"`
	Tix       *string `json:"tix"`
}

// Card is one record of the bulk file (and of the live lookup response).
type Card struct {
	ID              string            `json:"id"`
	OracleID        string            `json:"oracle_id"`
	Name            string            `json:"name"`
	Lang            string            `json:"lang"`
	Layout          string            `json:"layout"`
	Set             string            `json:"set"`
	CollectorNumber string            `json:"collector_number"`
	TypeLine        string            `json:"type_line"`
	OracleText      string            `json:"oracle_text"`
	ManaCost        string            `json:"mana_cost"`
	CMC             float64           `json:"cmc"`
	Colors          []string          `json:"colors"`
	Rarity          string            `json:"rarity"`
	Finishes        []string          `json:"finishes"`
	Games           []string          `json:"games"`
	ImageURIs       map[string]string `json:"image_uris"`
	Prices          Prices            `json:"prices"`
}

type Client struct {
	baseURL string
	api     *resty.Client
	// bulk downloads run for minutes; the caller's context deadline governs
	// them instead of a client-wide timeout.
	bulk *resty.Client
	log  *zap.SugaredLogger
}

func NewClient(baseURL string, log *zap.SugaredLogger) *Client {
	api := resty.New()
	api.SetTimeout(30 * time.Second)

	return &Client{
		baseURL: baseURL,
		api:     api,
		bulk:    resty.New(),
		log:     log,
	}
}

// DefaultBulkData fetches the bulk-data manifest and returns the entry for
// the full default catalog.
func (c *Client) DefaultBulkData(ctx context.Context) (*BulkData, error) {
	var manifest bulkDataList
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&manifest).
		Get(c.baseURL + "/bulk-data")
	if err != nil {
		return nil, fmt.Errorf("fetching bulk-data manifest: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("bulk-data manifest returned status %d", resp.StatusCode())
	}

	for i := range manifest.Data {
		if manifest.Data[i].Type == "default_cards" {
			return &manifest.Data[i], nil
		}
	}
	return nil, ErrNoDefaultBulk
}

// StreamBulkCards downloads the bulk file at uri and invokes fn once per
// record, decoding incrementally so the payload is never buffered whole.
// Records that fail to decode individually are skipped. fn may return
// ErrStopStreaming to end the stream cleanly; any other error aborts it.
func (c *Client) StreamBulkCards(ctx context.Context, uri string, fn func(Card) error) error {
	resp, err := c.bulk.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(uri)
	if err != nil {
		return fmt.Errorf("downloading bulk file: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return fmt.Errorf("bulk file download returned status %d", resp.StatusCode())
	}

	dec := json.NewDecoder(body)

	// Opening bracket of the card array.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading bulk file start: %w", err)
	}

	skipped := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("reading bulk file record: %w", err)
		}

		var card Card
		if err := json.Unmarshal(raw, &card); err != nil || card.ID == "" {
			skipped++
			continue
		}

		if err := fn(card); err != nil {
			if errors.Is(err, ErrStopStreaming) {
				return nil
			}
			return err
		}
	}

	if skipped > 0 {
		c.log.Warnw("skipped malformed bulk records", "count", skipped)
	}
	return nil
}

// GetCard fetches a single card by id for on-demand price lookups.
func (c *Client) GetCard(ctx context.Context, id string) (*Card, error) {
	var card Card
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&card).
		Get(fmt.Sprintf("%s/cards/%s", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("fetching card %s: %w", id, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("card lookup returned status %d", resp.StatusCode())
	}
	return &card, nil
}
