package ip

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/juyss/librespeed-vue/module"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	log2 "github.com/rs/zerolog/log"
)

const (
	Route = "/ip"

	// ForwardedForHeader is trusted unconditionally, the server is expected to
	// sit behind a proxy that overwrites it.
	ForwardedForHeader = "X-Forwarded-For"

	defaultLookupTimeout = 2 * time.Second
)

// ResolveClientIP returns the first X-Forwarded-For entry, or remoteAddr when
// the header is absent.
func ResolveClientIP(header http.Header, remoteAddr string) string {
	return Resolver{}.Resolve(header, remoteAddr)
}

type Resolver struct {
	// Header overrides the forwarding header name
	Header string
}

func (r Resolver) Resolve(header http.Header, remoteAddr string) string {
	name := r.Header
	if name == "" {
		name = ForwardedForHeader
	}

	values := header.Values(name)
	if len(values) == 0 {
		return remoteAddr
	}

	first, _, _ := strings.Cut(values[0], ",")
	return strings.TrimSpace(first)
}

// remoteHost strips the port net/http keeps in Request.RemoteAddr.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}

type Config struct {
	Header        string
	Locator       module.LocationResolver
	LookupTimeout time.Duration
}

type Module struct {
	log           zerolog.Logger
	resolver      Resolver
	locator       module.LocationResolver
	lookupTimeout time.Duration
}

func NewModule(config Config) Module {
	timeout := config.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}

	return Module{
		log:           log2.With().Str("role", "ip_module").Caller().Logger(),
		resolver:      Resolver{Header: config.Header},
		locator:       config.Locator,
		lookupTimeout: timeout,
	}
}

func (Module) Type() module.Type {
	return module.IPType
}

func (Module) Method() string {
	return http.MethodGet
}

func (Module) Route() string {
	return Route
}

func (m Module) Handle(c echo.Context) error {
	req := c.Request()
	address := Address{
		IP: m.resolver.Resolve(req.Header, remoteHost(req.RemoteAddr)),
	}

	if m.locator != nil {
		address.Location = m.locate(req.Context(), address.IP)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, address)
}

// locate never fails the request, a missing location only drops the fields.
func (m Module) locate(ctx context.Context, ip string) *module.Location {
	ctx, cancel := context.WithTimeout(ctx, m.lookupTimeout)
	defer cancel()

	location, err := m.locator.Locate(ctx, ip)
	if err != nil {
		m.log.Debug().Err(err).Str("ip", ip).Msg("cannot locate client")
		return nil
	}

	return location
}
