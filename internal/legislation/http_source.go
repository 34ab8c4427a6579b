package legislation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

// HTTPSource polls a bill-tracking API. Pending answers are cached for ttl;
// final answers are cached until evicted by size.
type HTTPSource struct {
	baseURL *url.URL
	client  *http.Client
	pending *expirable.LRU[domain.BillID, Status]
	final   *expirable.LRU[domain.BillID, Status]
}

func NewHTTPSource(baseURL string, timeout time.Duration, cacheSize int, ttl time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid legislation base URL %q", baseURL)
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &HTTPSource{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		pending: expirable.NewLRU[domain.BillID, Status](cacheSize, nil, ttl),
		final:   expirable.NewLRU[domain.BillID, Status](cacheSize, nil, 0),
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *HTTPSource) Status(ctx context.Context, billID domain.BillID) (Status, error) {
	if st, ok := s.final.Get(billID); ok {
		return st, nil
	}
	if st, ok := s.pending.Get(billID); ok {
		return st, nil
	}

	u := s.baseURL.JoinPath("v1", "bills", url.PathEscape(billID.String()), "status")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build bill status request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "legislation source unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", dErrors.New(dErrors.CodeNotFound, "bill not found")
	case resp.StatusCode != http.StatusOK:
		return "", dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("legislation source status %d", resp.StatusCode))
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode bill status: %w", err)
	}
	st, err := ParseStatus(body.Status)
	if err != nil {
		return "", err
	}
	if st.IsFinal() {
		s.final.Add(billID, st)
	} else {
		s.pending.Add(billID, st)
	}
	return st, nil
}
