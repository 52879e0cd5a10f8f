package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crimson-sun/grouping/internal/connector"
	"github.com/crimson-sun/grouping/internal/model"
)

// Stdin is the Endpoint value that reads from standard input.
const Stdin = "-"

func init() {
	connector.Register("file", func() connector.Connector {
		return &Connector{}
	})
}

// Connector reads newline-delimited event JSON from a file or stdin.
// Extra "follow" set to "true" keeps reading a file as it grows.
type Connector struct {
	// stdin is swapped in tests.
	stdin io.Reader
}

func (c *Connector) open(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("file connector: missing Endpoint (a path or %q)", Stdin)
	}
	if path == Stdin {
		in := c.stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file connector: %w", err)
	}
	return f, nil
}

// lineReader turns complete lines into raw events and keeps a trailing
// partial line until the rest of it arrives.
type lineReader struct {
	r       *bufio.Reader
	source  string
	partial []byte
	line    int
}

func (lr *lineReader) toRawEvent(line []byte) (model.RawEvent, bool) {
	lr.line++
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return model.RawEvent{}, false
	}
	return model.RawEvent{
		Timestamp: time.Now().UTC(),
		Source:    "file",
		Payload:   append([]byte(nil), line...),
		Metadata:  map[string]any{"path": lr.source, "line": lr.line},
	}, true
}

// next returns the next event. At EOF a partial line is returned only when
// final is set; otherwise it is kept for the next call.
func (lr *lineReader) next(final bool) (model.RawEvent, error) {
	for {
		chunk, err := lr.r.ReadBytes('\n')
		lr.partial = append(lr.partial, chunk...)
		if err != nil && !errors.Is(err, io.EOF) {
			return model.RawEvent{}, err
		}
		if err != nil && !final {
			return model.RawEvent{}, io.EOF
		}
		if err == nil || len(lr.partial) > 0 {
			line := lr.partial
			lr.partial = nil
			if raw, ok := lr.toRawEvent(line); ok {
				return raw, nil
			}
		}
		if err != nil {
			return model.RawEvent{}, io.EOF
		}
	}
}

// drain sends every available event. It returns false once ctx is done or
// the input fails.
func (lr *lineReader) drain(ctx context.Context, ch chan<- model.RawEvent, final bool) bool {
	for {
		raw, err := lr.next(final)
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			slog.Warn("read error", "connector", "file", "path", lr.source, "error", err)
			return false
		}
		select {
		case ch <- raw:
		case <-ctx.Done():
			return false
		}
	}
}

func (c *Connector) Stream(ctx context.Context, cfg connector.ConnectorConfig) (<-chan model.RawEvent, error) {
	path := cfg.Endpoint
	rc, err := c.open(path)
	if err != nil {
		return nil, err
	}

	var fsw *fsnotify.Watcher
	if cfg.Extra["follow"] == "true" && path != Stdin {
		fsw, err = fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(path)
		}
		if err != nil {
			rc.Close()
			if fsw != nil {
				fsw.Close()
			}
			return nil, fmt.Errorf("file connector: %w", err)
		}
	}

	ch := make(chan model.RawEvent, 64)
	go func() {
		defer close(ch)
		defer rc.Close()

		lr := &lineReader{r: bufio.NewReaderSize(rc, 64*1024), source: path}
		if fsw == nil {
			lr.drain(ctx, ch, true)
			return
		}
		defer fsw.Close()

		if !lr.drain(ctx, ch, false) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Write != 0 && !lr.drain(ctx, ch, false) {
					return
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("watch error", "connector", "file", "path", path, "error", err)
			}
		}
	}()

	return ch, nil
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.RawEvent, error) {
	rc, err := c.open(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	lr := &lineReader{r: bufio.NewReaderSize(rc, 64*1024), source: cfg.Endpoint}
	var results []model.RawEvent
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := lr.next(true)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("file connector: %w", err)
		}

		// Events that fail to decode are kept; the engine reports them.
		if ev, err := model.DecodeEvent(raw.Payload); err == nil && !ev.Timestamp.IsZero() {
			if !params.Start.IsZero() && ev.Timestamp.Before(params.Start) {
				continue
			}
			if !params.End.IsZero() && !ev.Timestamp.Before(params.End) {
				continue
			}
		}

		results = append(results, raw)
		if params.Limit > 0 && len(results) >= params.Limit {
			break
		}
	}
	return results, nil
}
