package quote

import (
	"context"
	"errors"
	"fmt"

	"twstock/internal/fetch"
	"twstock/internal/symbol"

	"github.com/sirupsen/logrus"
)

// DefaultAPIURL is the upstream chart endpoint, templated with the query symbol.
const DefaultAPIURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=1d"

// ErrUnavailable means the quote could not be fetched or parsed for any reason
// other than rate limiting. Callers treat it as "try again later".
var ErrUnavailable = errors.New("market data unavailable")

// Service fetches and parses quotes for internal symbols.
type Service struct {
	fetcher *fetch.Client
	apiURL  string
	log     *logrus.Logger
}

func NewService(fetcher *fetch.Client, apiURL string, log *logrus.Logger) *Service {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Service{fetcher: fetcher, apiURL: apiURL, log: log}
}

// Fetch retrieves a fresh Quote for an internal symbol. The secondary-exchange
// suffix is mapped to its external query form before the call. Rate limiting
// propagates as fetch.ErrRateLimited; every other failure degrades to
// ErrUnavailable.
func (s *Service) Fetch(ctx context.Context, internalSym string) (*Quote, error) {
	query := symbol.QuerySymbol(internalSym)
	if query != internalSym {
		s.log.Debugf("querying %s as %s", internalSym, query)
	}

	body, err := s.fetcher.Get(ctx, fmt.Sprintf(s.apiURL, query), "", "quote "+query)
	if err != nil {
		if errors.Is(err, fetch.ErrRateLimited) {
			return nil, err
		}
		s.log.Warnf("quote fetch for %s failed: %v", query, err)
		return nil, ErrUnavailable
	}

	q := Parse([]byte(body), query, s.log)
	if q == nil {
		return nil, ErrUnavailable
	}
	q.Symbol = internalSym
	return q, nil
}
