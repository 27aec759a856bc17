package collectors

import (
	"errors"
	"sync"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/shared"
)

// AdminNames are the first and second level administrative areas of a point.
type AdminNames struct {
	Admin1 string
	Admin2 string
}

// ReverseGeocoder resolves a coordinate to administrative area names.
type ReverseGeocoder func(latitude, longitude float64) (AdminNames, error)

var errNoAddress = errors.New("no address found")

// GoogleReverseGeocoder uses the Google Geocoding API through kelvins/geocoder.
func GoogleReverseGeocoder(apiKey string) ReverseGeocoder {
	geocoder.ApiKey = apiKey
	return func(latitude, longitude float64) (AdminNames, error) {
		addresses, err := geocoder.GeocodingReverse(geocoder.Location{
			Latitude:  latitude,
			Longitude: longitude,
		})
		if err != nil {
			return AdminNames{}, err
		}
		if len(addresses) == 0 {
			return AdminNames{}, errNoAddress
		}

		addr := addresses[0]
		names := AdminNames{Admin1: addr.State, Admin2: addr.County}
		if names.Admin2 == "" {
			names.Admin2 = addr.City
		}
		return names, nil
	}
}

// MarketEnricher fills blank admin_1/admin_2 fields of price records from
// market coordinates. Lookups are cached per FEWS market id, failures included.
type MarketEnricher struct {
	geocode ReverseGeocoder
	log     *zap.Logger

	mu    sync.Mutex
	cache map[int64]AdminNames
}

func NewMarketEnricher(geocode ReverseGeocoder, log *zap.Logger) *MarketEnricher {
	return &MarketEnricher{
		geocode: geocode,
		log:     shared.OrNop(log),
		cache:   make(map[int64]AdminNames),
	}
}

// Enrich updates records in place and returns how many rows were changed.
func (e *MarketEnricher) Enrich(records []PriceRecord) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := 0
	for i := range records {
		r := &records[i]
		if r.Admin1 != "" && r.Admin2 != "" {
			continue
		}
		id, ok := r.MarketID.Int64()
		if !ok || !r.Latitude.Valid || !r.Longitude.Valid {
			continue
		}

		names, cached := e.cache[id]
		if !cached {
			var err error
			names, err = e.geocode(r.Latitude.Value, r.Longitude.Value)
			if err != nil {
				e.log.Warn("failed to reverse geocode market", zap.Int64("market_id", id), zap.String("market", r.Market), zap.Error(err))
			}
			e.cache[id] = names
		}

		updated := false
		if r.Admin1 == "" && names.Admin1 != "" {
			r.Admin1 = names.Admin1
			updated = true
		}
		if r.Admin2 == "" && names.Admin2 != "" {
			r.Admin2 = names.Admin2
			updated = true
		}
		if updated {
			changed++
		}
	}
	return changed
}
