package collectors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketEnricherFillsBlanksOncePerMarket(t *testing.T) {
	calls := 0
	enricher := NewMarketEnricher(func(lat, lon float64) (AdminNames, error) {
		calls++
		return AdminNames{Admin1: "Nord", Admin2: "Cap-Haïtien"}, nil
	}, nil)

	records := []PriceRecord{
		{MarketID: NewNumber(5), Latitude: NewNumber(19.7), Longitude: NewNumber(-72.2)},
		{MarketID: NewNumber(5), Latitude: NewNumber(19.7), Longitude: NewNumber(-72.2), Admin1: "Nord"},
		{MarketID: NewNumber(6), Admin1: "Ouest", Admin2: "Port-au-Prince"},
		{MarketID: NewNumber(7)},
	}

	changed := enricher.Enrich(records)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Nord", records[0].Admin1)
	assert.Equal(t, "Cap-Haïtien", records[0].Admin2)
	assert.Equal(t, "Cap-Haïtien", records[1].Admin2)
	assert.Equal(t, "Ouest", records[2].Admin1)
	assert.Empty(t, records[3].Admin1)
}

func TestMarketEnricherCachesFailures(t *testing.T) {
	calls := 0
	enricher := NewMarketEnricher(func(lat, lon float64) (AdminNames, error) {
		calls++
		return AdminNames{}, errors.New("quota exceeded")
	}, nil)

	records := []PriceRecord{
		{MarketID: NewNumber(9), Latitude: NewNumber(18.2), Longitude: NewNumber(-73.7)},
		{MarketID: NewNumber(9), Latitude: NewNumber(18.2), Longitude: NewNumber(-73.7)},
	}
	assert.Equal(t, 0, enricher.Enrich(records))
	assert.Equal(t, 1, calls)
}
