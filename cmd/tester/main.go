// Command tester floods one room with WebSocket clients and reports
// delivery completeness, per-sender ordering and latency.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"nexchat/auth"
	"nexchat/domain/chat"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tester terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// clientStats is owned by the reader goroutine of a client until the run ends.
type clientStats struct {
	name       string
	sent       int
	received   int
	outOfOrder int
	errors     int
	latencies  []time.Duration
	// last sequence seen per sender
	lastSeq map[string]uint64
}

func run() (int, error) {
	config, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.Clients <= 0 || config.Messages <= 0 {
		return exitConfig, fmt.Errorf("TESTER_CLIENTS and TESTER_MESSAGES must be positive")
	}

	conns := make([]*websocket.Conn, config.Clients)
	for i := range conns {
		conn, err := dial(config, clientName(i))
		if err != nil {
			return exitRuntime, err
		}
		defer conn.Close()
		conns[i] = conn
	}

	expected := config.Clients * config.Messages
	stats := make([]*clientStats, config.Clients)
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	start := time.Now()
	var readers sync.WaitGroup
	for i, conn := range conns {
		stats[i] = &clientStats{name: clientName(i), lastSeq: make(map[string]uint64)}
		readers.Add(1)
		go func(conn *websocket.Conn, s *clientStats) {
			defer readers.Done()
			receive(ctx, conn, s, expected)
		}(conn, stats[i])
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, conn := range conns {
		g.Go(func() error {
			return sendAll(gctx, conn, config, stats[i])
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
	}
	readers.Wait()

	complete := render(config, stats, expected, time.Since(start))
	if !complete {
		return exitRuntime, fmt.Errorf("not every client observed every message within %s", config.Timeout)
	}
	return exitOK, nil
}

func clientName(i int) string {
	return fmt.Sprintf("tester-%03d", i)
}

func dial(config Config, name string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: "/ws/" + config.Room}
	if config.JWTSecret != "" {
		token, err := auth.GenerateToken([]byte(config.JWTSecret), name, nil, config.Timeout+time.Minute)
		if err != nil {
			return nil, err
		}
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// sendAll writes the messages of one client. The send time travels in the text
// so any receiver can compute the delivery latency.
func sendAll(ctx context.Context, conn *websocket.Conn, config Config, s *clientStats) error {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()
	for n := 1; n <= config.Messages; n++ {
		frame := chat.InboundFrame{
			Sender:   s.name,
			SenderID: s.name,
			Text:     fmt.Sprintf("%d %d", n, time.Now().UnixNano()),
		}
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		s.sent++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

type frame struct {
	chat.OutboundFrame
	Code string `json:"code"`
}

func receive(ctx context.Context, conn *websocket.Conn, s *clientStats, expected int) {
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	for s.received < expected {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.errors++
			continue
		}
		if f.Type == chat.FrameError {
			s.errors++
			continue
		}
		s.received++
		if last, ok := s.lastSeq[f.SenderID]; ok && f.Seq <= last {
			s.outOfOrder++
		}
		s.lastSeq[f.SenderID] = f.Seq
		if sentAt, ok := sentAt(f.Text); ok {
			s.latencies = append(s.latencies, time.Since(sentAt))
		}
	}
}

func sentAt(text string) (time.Time, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func render(config Config, stats []*clientStats, expected int, elapsed time.Duration) bool {
	paint := func(c color.Color, s string) string {
		if !config.Colours {
			return s
		}
		return c.Render(s)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Client", "Sent", "Received", "Out of order", "Errors", "p50", "p99"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	complete := true
	var all []time.Duration
	for _, s := range stats {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		all = append(all, s.latencies...)

		received := strconv.Itoa(s.received)
		if s.received < expected {
			complete = false
			received = paint(color.FgRed, received)
		}
		outOfOrder := strconv.Itoa(s.outOfOrder)
		if s.outOfOrder > 0 {
			complete = false
			outOfOrder = paint(color.FgRed, outOfOrder)
		}
		table.Append([]string{
			s.name,
			strconv.Itoa(s.sent),
			received,
			outOfOrder,
			strconv.Itoa(s.errors),
			percentile(s.latencies, 0.50).String(),
			percentile(s.latencies, 0.99).String(),
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	table.SetFooter([]string{"all", "", "", "", "",
		percentile(all, 0.50).String(), percentile(all, 0.99).String()})
	table.Render()

	summary := fmt.Sprintf("%d clients x %d messages in room %q, %s",
		config.Clients, config.Messages, config.Room, elapsed.Round(time.Millisecond))
	if complete {
		fmt.Println(paint(color.FgGreen, "PASS "+summary))
	} else {
		fmt.Println(paint(color.FgRed, "FAIL "+summary))
	}
	return complete
}
