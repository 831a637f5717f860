// Package gnss talks to the GNSS receiver through gpsd. The daemon uses it
// for two things only: pulling fix records to log, and fetching confirmed
// UTC time to seed the real-time clock after boot and after every wake.
package gnss

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Fix is one position/time solution from the receiver.
type Fix struct {
	Time time.Time `json:"time"`
	Mode int       `json:"mode"` // 0/1 no fix, 2 = 2D, 3 = 3D
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Alt  float64   `json:"alt"`
}

// Record renders the fix as one newline-terminated JSON log record. The log
// file manager treats the bytes as opaque.
func (f Fix) Record() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	return append(b, '\n')
}

// Receiver is the surface the sequencer consumes.
type Receiver interface {
	// Poll returns the next fix, valid or not. Callers check Mode.
	Poll(timeout time.Duration) (*Fix, error)

	// FetchTime blocks until the receiver reports UTC from a 2D-or-better
	// fix, or the timeout elapses.
	FetchTime(timeout time.Duration) (time.Time, error)
}

// tpvReport is the subset of a gpsd TPV JSON object we need.
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"altMSL"`
}

// Client reads TPV reports from a gpsd instance. Each call dials fresh;
// the receiver connection is not a resource worth holding across sleep.
type Client struct {
	Addr string
}

// NewClient returns a client for gpsd at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{Addr: addr}
}

// Poll returns the first TPV report gpsd produces within the timeout.
func (c *Client) Poll(timeout time.Duration) (*Fix, error) {
	var fix *Fix
	err := c.watch(timeout, func(r tpvReport) bool {
		fix = reportToFix(r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return fix, nil
}

// FetchTime returns UTC from the first report carrying a 2D-or-better fix.
func (c *Client) FetchTime(timeout time.Duration) (time.Time, error) {
	var t time.Time
	err := c.watch(timeout, func(r tpvReport) bool {
		if r.Mode < 2 || r.Time == "" {
			return false
		}
		parsed, perr := time.Parse(time.RFC3339, r.Time)
		if perr != nil {
			return false
		}
		t = parsed.UTC()
		return true
	})
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// watch dials gpsd, enables watching, and feeds TPV reports to accept until
// it returns true or the deadline passes.
func (c *Client) watch(timeout time.Duration, accept func(tpvReport) bool) error {
	conn, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return fmt.Errorf("gpsd connect: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("gpsd set deadline: %w", err)
	}
	if _, err := fmt.Fprint(conn, `?WATCH={"enable":true,"json":true};`); err != nil {
		return fmt.Errorf("gpsd watch: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" {
			continue
		}
		if accept(report) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gpsd read: %w", err)
	}
	return fmt.Errorf("gpsd: no usable report within %v", timeout)
}

func reportToFix(r tpvReport) *Fix {
	f := &Fix{Mode: r.Mode, Lat: r.Lat, Lon: r.Lon, Alt: r.Alt}
	if r.Time != "" {
		if t, err := time.Parse(time.RFC3339, r.Time); err == nil {
			f.Time = t.UTC()
		}
	}
	return f
}
