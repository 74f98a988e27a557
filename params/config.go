package params

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// MarketConfig declares one tradable pair. Markets are created explicitly at
// startup (or later by the authority); orders for undeclared markets are
// rejected.
type MarketConfig struct {
	Base        string
	Quote       string
	TickSize    decimal.Decimal // minimum price increment
	LotSize     decimal.Decimal // minimum quantity increment
	MinNotional decimal.Decimal // minimum price*quantity per order
}

type Venue struct {
	// Authority is the hex address allowed to update venue config.
	Authority string
	Markets   []MarketConfig
}

type Node struct {
	DBPath   string
	APIAddr  string
	LogFile  string
	LogLevel string
}

type Config struct {
	Venue Venue
	Node  Node
}

func Default() Config {
	return Config{
		Venue: Venue{
			Authority: "0x0000000000000000000000000000000000000001",
			Markets: []MarketConfig{
				{
					Base:        "ATOM",
					Quote:       "USDC",
					TickSize:    decimal.RequireFromString("0.01"),
					LotSize:     decimal.RequireFromString("0.01"),
					MinNotional: decimal.RequireFromString("1"),
				},
			},
		},
		Node: Node{
			DBPath:   "./data/venue.db",
			APIAddr:  ":8080",
			LogFile:  "data/venued.log",
			LogLevel: "info",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("VENUE_AUTHORITY"); v != "" {
		cfg.Venue.Authority = v
	}
	if v := os.Getenv("VENUE_DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("VENUE_API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("VENUE_LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("VENUE_LOG_LEVEL"); v != "" {
		cfg.Node.LogLevel = v
	}

	// Markets from a comma-separated list of
	// base/quote:tick:lot:minNotional entries.
	// Example: "ATOM/USDC:0.01:0.01:1,OSMO/USDC:0.001:0.1:1"
	if v := os.Getenv("VENUE_MARKETS"); v != "" {
		markets, err := ParseMarkets(v)
		if err != nil {
			return cfg, fmt.Errorf("VENUE_MARKETS: %w", err)
		}
		cfg.Venue.Markets = markets
	}

	return cfg, nil
}

// ParseMarkets parses the VENUE_MARKETS env format.
func ParseMarkets(s string) ([]MarketConfig, error) {
	var out []MarketConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("market entry %q: want base/quote:tick:lot:minNotional", entry)
		}
		pair := strings.Split(parts[0], "/")
		if len(pair) != 2 {
			return nil, fmt.Errorf("market entry %q: pair must be base/quote", entry)
		}
		tick, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("market entry %q: tick: %w", entry, err)
		}
		lot, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("market entry %q: lot: %w", entry, err)
		}
		minNotional, err := decimal.NewFromString(parts[3])
		if err != nil {
			return nil, fmt.Errorf("market entry %q: minNotional: %w", entry, err)
		}
		out = append(out, MarketConfig{
			Base:        strings.TrimSpace(pair[0]),
			Quote:       strings.TrimSpace(pair[1]),
			TickSize:    tick,
			LotSize:     lot,
			MinNotional: minNotional,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no markets configured")
	}
	return out, nil
}
