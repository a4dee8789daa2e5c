package module

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/pkg/errors"
)

type GeoLite2Resolver struct {
	db *geoip2.Reader
}

func NewGeoLite2Resolver(path string) (*GeoLite2Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open GeoLite2 database")
	}

	return &GeoLite2Resolver{
		db: db,
	}, nil
}

func (g GeoLite2Resolver) ResolveIP(ip net.IP) (*geoip2.City, error) {
	city, err := g.db.City(ip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve IP")
	}

	return city, nil
}

func (g GeoLite2Resolver) Locate(_ context.Context, ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, errors.Errorf("failed to parse IP address %s", ip)
	}

	city, err := g.ResolveIP(parsed)
	if err != nil {
		return nil, err
	}

	return &Location{
		Country: city.Country.IsoCode,
		City:    city.City.Names["en"],
	}, nil
}

func (g GeoLite2Resolver) Close() error {
	return errors.Wrap(g.db.Close(), "failed to close GeoLite2 database")
}
