package pricehub

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StreamEvents subscribes to a search's event stream and invokes fn for
// every event: the full history replays first, live events follow. The
// call returns nil after the terminal event, or the first error from fn.
// Cancel ctx to detach early.
func (c *Client) StreamEvents(ctx context.Context, id string, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(id)+"/events", nil)
	if err != nil {
		return fmt.Errorf("pricehub: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pricehub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Frame boundary: dispatch the accumulated data.
			if data.Len() > 0 {
				var e Event
				if err := json.Unmarshal([]byte(data.String()), &e); err != nil {
					return fmt.Errorf("pricehub: decode event: %w", err)
				}
				data.Reset()
				if err := fn(e); err != nil {
					return err
				}
				if e.Kind.Terminal() {
					return nil
				}
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event: lines and ": heartbeat" comments carry no payload.
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pricehub: read stream: %w", err)
	}
	return nil
}
