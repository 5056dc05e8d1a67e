package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
)

// Resolver maps client IPs to countries using a MaxMind GeoLite2 database.
// All methods are nil-safe so callers can wire a nil resolver when geo
// enrichment is disabled.
type Resolver struct {
	db     *maxminddb.Reader
	logger *zap.Logger
}

// NewResolver opens the MaxMind database at path.
func NewResolver(path string, logger *zap.Logger) (*Resolver, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &Resolver{db: db, logger: logger}, nil
}

type countryRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Country returns the ISO code and English name for an IP, or empty strings
// when the IP is unparseable or unknown.
func (r *Resolver) Country(ip string) (code, name string) {
	if r == nil || r.db == nil {
		return "", ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}

	var rec countryRecord
	if err := r.db.Lookup(parsed, &rec); err != nil {
		r.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return "", ""
	}
	return rec.Country.ISOCode, rec.Country.Names["en"]
}

// Close closes the underlying database.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
