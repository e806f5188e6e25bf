package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/stream"
)

// Subscribe opens the server-sent event stream for topics and returns a
// channel of events. With no topics every job event is delivered. The
// channel is closed when ctx ends, or when the stream drops and
// reconnection is disabled or exhausted.
//
// Topics follow the stream naming: "jobs", "job:<jobID>", "type:<type>".
func (c *Client) Subscribe(ctx context.Context, topics ...string) (<-chan *stream.Event, error) {
	resp, err := c.openStream(ctx, topics)
	if err != nil {
		return nil, err
	}
	ch := make(chan *stream.Event, 64)
	go c.readLoop(ctx, topics, resp, ch)
	return ch, nil
}

func (c *Client) openStream(ctx context.Context, topics []string) (*http.Response, error) {
	q := url.Values{}
	for _, t := range topics {
		q.Add("topic", t)
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("nocode/client: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nocode/client: subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) readLoop(ctx context.Context, topics []string, resp *http.Response, ch chan<- *stream.Event) {
	defer close(ch)
	for {
		err := c.consume(ctx, resp, ch)
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("event stream dropped", slog.Any("error", err))
		if !c.reconnect {
			return
		}
		if resp = c.redial(ctx, topics); resp == nil {
			return
		}
	}
}

// redial retries openStream until it succeeds, ctx ends or the retry
// budget is spent.
func (c *Client) redial(ctx context.Context, topics []string) *http.Response {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff.Delay(attempt)):
		}
		resp, err := c.openStream(ctx, topics)
		if err == nil {
			c.logger.Info("event stream reconnected", slog.Int("attempt", attempt))
			return resp
		}
		c.logger.Warn("event stream reconnect failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// consume reads SSE frames until the body ends. Comment lines are
// keep-alives and are skipped.
func (c *Client) consume(ctx context.Context, resp *http.Response, ch chan<- *stream.Event) error {
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var evt stream.Event
			if err := json.Unmarshal([]byte(data.String()), &evt); err != nil {
				c.logger.Warn("malformed stream event", slog.String("error", err.Error()))
			} else {
				select {
				case ch <- &evt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}
