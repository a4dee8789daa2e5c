package module

import (
	"context"
)

// Location is the best-effort geographic hint attached to a client address.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

type LocationResolver interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}
