package utils

import (
	"time"
)

// DateLayout is the date format the screening tables use
const DateLayout = "2006-01-02"

var marketLoc *time.Location

func init() {
	var err error
	marketLoc, err = time.LoadLocation("America/New_York")
	if err != nil {
		// In production docker, ensure tzdata is installed
		marketLoc = time.FixedZone("EST", -5*60*60)
	}
}

// GetMarketTime returns the current time on the exchange clock
func GetMarketTime() time.Time {
	return time.Now().In(marketLoc)
}

// MarketDate formats t as a trading date on the exchange clock
func MarketDate(t time.Time) string {
	return t.In(marketLoc).Format(DateLayout)
}

// TodayMarketDate returns today's trading date, e.g. "2024-01-02"
func TodayMarketDate() string {
	return GetMarketTime().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD date string
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, marketLoc)
}
