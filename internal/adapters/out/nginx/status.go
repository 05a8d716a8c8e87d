package nginx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
)

// StatusReader fetches and parses the stub_status page.
type StatusReader struct {
	url    string
	client *http.Client
}

var _ out.ProxyStatusReader = (*StatusReader)(nil)

// NewStatusReader creates a reader for url.
func NewStatusReader(url string, client *http.Client) *StatusReader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &StatusReader{url: url, client: client}
}

func (s *StatusReader) ReadStatus(ctx context.Context) (*domain.ProxyStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stub_status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch stub_status: unexpected status %d", resp.StatusCode)
	}
	return ParseStubStatus(io.LimitReader(resp.Body, 64<<10))
}

// ParseStubStatus parses output of the form:
//
//	Active connections: 2
//	server accepts handled requests
//	 8904 8904 8907
//	Reading: 0 Writing: 2 Waiting: 0
func ParseStubStatus(r io.Reader) (*domain.ProxyStatus, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("stub_status: expected 4 lines, got %d", len(lines))
	}

	st := &domain.ProxyStatus{}
	active, ok := strings.CutPrefix(lines[0], "Active connections:")
	if !ok {
		return nil, fmt.Errorf("stub_status: unexpected first line %q", lines[0])
	}
	var err error
	if st.ActiveConnections, err = strconv.ParseInt(strings.TrimSpace(active), 10, 64); err != nil {
		return nil, fmt.Errorf("stub_status: active connections: %w", err)
	}

	counters := strings.Fields(lines[2])
	if len(counters) != 3 {
		return nil, fmt.Errorf("stub_status: unexpected counters line %q", lines[2])
	}
	for i, dst := range []*int64{&st.Accepts, &st.Handled, &st.Requests} {
		if *dst, err = strconv.ParseInt(counters[i], 10, 64); err != nil {
			return nil, fmt.Errorf("stub_status: counters: %w", err)
		}
	}

	// Reading: 0 Writing: 2 Waiting: 0
	fields := strings.Fields(lines[3])
	if len(fields) != 6 {
		return nil, fmt.Errorf("stub_status: unexpected connections line %q", lines[3])
	}
	for i, dst := range []*int64{&st.Reading, &st.Writing, &st.Waiting} {
		if *dst, err = strconv.ParseInt(fields[i*2+1], 10, 64); err != nil {
			return nil, fmt.Errorf("stub_status: connections: %w", err)
		}
	}
	return st, nil
}
