package request

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/nkrasner/ledger-exchange/internal/domain"
)

// parseMarketsCSV reads a "SYMBOL,NAME" file for upgrade_db, grounded
// on the original implementation's bulk market loader.
func parseMarketsCSV(path string) ([]*domain.Market, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	markets := make([]*domain.Market, 0, len(records))
	for i, rec := range records {
		if len(rec) != 2 || rec[0] == "" {
			return nil, fmt.Errorf("%w (line %d)", errBadCSVLine, i+1)
		}
		markets = append(markets, &domain.Market{Symbol: rec[0], Name: rec[1]})
	}
	return markets, nil
}
