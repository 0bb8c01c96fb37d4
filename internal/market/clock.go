package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies a tradable market
type ID string

const (
	KR ID = "KR"
	JP ID = "JP"
	CN ID = "CN"
	HK ID = "HK"
	US ID = "US"
)

// Info carries static per-market metadata
type Info struct {
	ID          ID
	Name        string
	Currency    string
	Exchanges   []string // broker exchange codes, first is the default
	IndexSymbol string   // benchmark index for correlation analysis
	Hours       Window
}

// Window is a trading window in KST, "HH:MM" inclusive open, exclusive close.
// A close earlier than the open means the session wraps past midnight.
type Window struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type window struct {
	open  int // minutes since midnight
	close int
	wraps bool
}

// Clock answers market-hours questions in Korea Standard Time
type Clock struct {
	loc     *time.Location
	markets []Info
	windows map[ID]window
}

// Markets lists every market the engine trades, in scan order
var Markets = []Info{
	{ID: KR, Name: "Korea", Currency: "KRW", Exchanges: []string{"KRX"}, IndexSymbol: "^KS11", Hours: Window{"09:00", "15:30"}},
	{ID: JP, Name: "Japan", Currency: "JPY", Exchanges: []string{"TKSE"}, IndexSymbol: "^N225", Hours: Window{"09:00", "15:00"}},
	{ID: CN, Name: "China", Currency: "CNY", Exchanges: []string{"SHAA", "SZAA"}, IndexSymbol: "000001.SS", Hours: Window{"10:00", "16:00"}},
	{ID: HK, Name: "Hong Kong", Currency: "HKD", Exchanges: []string{"SEHK"}, IndexSymbol: "^HSI", Hours: Window{"10:00", "17:00"}},
	{ID: US, Name: "United States", Currency: "USD", Exchanges: []string{"NASD", "NYSE", "AMEX"}, IndexSymbol: "^GSPC", Hours: Window{"23:30", "06:00"}},
}

// NewClock builds a clock over the standard market table
func NewClock() (*Clock, error) {
	return NewClockWith(Markets)
}

// NewClockWith builds a clock over a custom market table.
// Malformed windows are a construction error, not a runtime surprise.
func NewClockWith(markets []Info) (*Clock, error) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		// KST has no DST, a fixed offset is equivalent
		loc = time.FixedZone("KST", 9*60*60)
	}

	c := &Clock{loc: loc, markets: markets, windows: make(map[ID]window, len(markets))}
	for _, m := range markets {
		w, err := parseWindow(m.Hours)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		c.windows[m.ID] = w
	}
	return c, nil
}

func parseWindow(h Window) (window, error) {
	open, err := parseHHMM(h.Open)
	if err != nil {
		return window{}, fmt.Errorf("open %q: %w", h.Open, err)
	}
	cl, err := parseHHMM(h.Close)
	if err != nil {
		return window{}, fmt.Errorf("close %q: %w", h.Close, err)
	}
	if open == cl {
		return window{}, fmt.Errorf("zero-length window %s-%s", h.Open, h.Close)
	}
	return window{open: open, close: cl, wraps: cl < open}, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("bad hour")
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("bad minute")
	}
	return hh*60 + mm, nil
}

// Location returns the clock's time zone (KST)
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Lookup returns the metadata for a market
func (c *Clock) Lookup(id ID) (Info, bool) {
	for _, m := range c.markets {
		if m.ID == id {
			return m, true
		}
	}
	return Info{}, false
}

// IsOpen reports whether the market is in session at t.
// Weekend handling: plain windows trade Mon-Fri; a wrapping window also
// covers the early-Saturday tail of Friday's session.
func (c *Clock) IsOpen(id ID, t time.Time) bool {
	w, ok := c.windows[id]
	if !ok {
		return false
	}

	kst := t.In(c.loc)
	day := kst.Weekday()
	mins := kst.Hour()*60 + kst.Minute()

	if !w.wraps {
		if day == time.Saturday || day == time.Sunday {
			return false
		}
		return mins >= w.open && mins < w.close
	}

	switch day {
	case time.Sunday:
		return false
	case time.Saturday:
		return mins < w.close
	default:
		return mins >= w.open || mins < w.close
	}
}

// OpenMarkets returns every market in session at t, in scan order
func (c *Clock) OpenMarkets(t time.Time) []ID {
	var open []ID
	for _, m := range c.markets {
		if c.IsOpen(m.ID, t) {
			open = append(open, m.ID)
		}
	}
	return open
}

// AnyOpen reports whether at least one market is in session at t
func (c *Clock) AnyOpen(t time.Time) bool {
	return len(c.OpenMarkets(t)) > 0
}

// NextTransition is a coarse helper for the scan loop: it reports whether
// the set of open markets differs between t and t.Add(d).
func (c *Clock) ChangesWithin(t time.Time, d time.Duration) bool {
	now := c.OpenMarkets(t)
	later := c.OpenMarkets(t.Add(d))
	if len(now) != len(later) {
		return true
	}
	for i := range now {
		if now[i] != later[i] {
			return true
		}
	}
	return false
}
