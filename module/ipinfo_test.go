package module

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newIPInfoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/66.66.66.66":
			_, _ = w.Write([]byte(`{"ip":"66.66.66.66","city":"Buffalo","country":"US"}`))
		case "/192.168.1.1":
			_, _ = w.Write([]byte(`{"ip":"192.168.1.1","bogon":true}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
}

func TestIPInfoResolver_Locate(t *testing.T) {
	assert := assert.New(t)
	server := newIPInfoServer(t)
	defer server.Close()
	resolver := NewIPInfoResolverWithURL(server.URL, "secret")
	location, err := resolver.Locate(context.Background(), "66.66.66.66")
	assert.Nil(err)
	assert.Equal("US", location.Country)
	assert.Equal("Buffalo", location.City)
}

func TestIPInfoResolver_Locate_Local(t *testing.T) {
	assert := assert.New(t)
	server := newIPInfoServer(t)
	defer server.Close()
	resolver := NewIPInfoResolverWithURL(server.URL, "secret")
	location, err := resolver.Locate(context.Background(), "192.168.1.1")
	assert.Nil(err)
	assert.Equal(&Location{}, location)
}

func TestIPInfoResolver_Locate_BadStatus(t *testing.T) {
	assert := assert.New(t)
	server := newIPInfoServer(t)
	defer server.Close()
	resolver := NewIPInfoResolverWithURL(server.URL, "secret")
	_, err := resolver.Locate(context.Background(), "8.8.8.8")
	assert.ErrorContains(err, "unexpected status 429")
}

func TestIPInfoResolver_Locate_InvalidIP(t *testing.T) {
	assert := assert.New(t)
	resolver := NewIPInfoResolver("secret")
	_, err := resolver.Locate(context.Background(), "not-an-ip")
	assert.ErrorContains(err, "failed to parse IP address")
}

func TestGeoLite2Resolver_MissingDatabase(t *testing.T) {
	assert := assert.New(t)
	resolver, err := NewGeoLite2Resolver("/nonexistent/GeoLite2-City.mmdb")
	assert.Nil(resolver)
	assert.ErrorContains(err, "failed to open GeoLite2 database")
}
