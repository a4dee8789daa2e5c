package module

import (
	"context"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultIPInfoURL = "https://ipinfo.io"

type IPInfoResolver struct {
	client *resty.Client
	token  string
}

type ipInfoResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Bogon   bool   `json:"bogon"`
}

func NewIPInfoResolver(token string) IPInfoResolver {
	return NewIPInfoResolverWithURL(defaultIPInfoURL, token)
}

func NewIPInfoResolverWithURL(baseURL string, token string) IPInfoResolver {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return IPInfoResolver{
		client: client,
		token:  token,
	}
}

func (i IPInfoResolver) Locate(ctx context.Context, ip string) (*Location, error) {
	if net.ParseIP(ip) == nil {
		return nil, errors.Errorf("failed to parse IP address %s", ip)
	}

	var payload ipInfoResponse

	resp, err := i.client.R().
		SetContext(ctx).
		SetPathParam("ip", ip).
		SetQueryParam("token", i.token).
		SetResult(&payload).
		Get("/{ip}")
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve IP")
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("ipinfo: unexpected status %d", resp.StatusCode())
	}

	if payload.Bogon {
		return &Location{}, nil
	}

	return &Location{
		Country: payload.Country,
		City:    payload.City,
	}, nil
}
