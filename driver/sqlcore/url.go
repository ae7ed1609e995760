package sqlcore

import (
	"fmt"
	"net/url"

	"github.com/goforj/cachemaster/cachecore"
)

// TableParam is the query parameter the dialect wrappers read the table
// name from. It is removed before the DSN reaches the driver.
const TableParam = "table"

// SplitTable parses rawURL and pulls out the table parameter.
func SplitTable(rawURL string) (*url.URL, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: parse database url: %w", cachecore.ErrConfiguration, err)
	}
	q := u.Query()
	table := q.Get(TableParam)
	q.Del(TableParam)
	u.RawQuery = q.Encode()
	return u, table, nil
}
