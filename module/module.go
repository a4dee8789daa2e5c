package module

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log2 "github.com/rs/zerolog/log"
)

type Type = string

const (
	IPType      Type = "ip"
	GarbageType Type = "garbage"
	UploadType  Type = "upload"
	ConfigType  Type = "config"
)

type Module interface {
	// Type is a field that can be used to identify the measurement
	Type() Type

	// Method and Route select the requests that are dispatched to Handle
	Method() string
	Route() string

	// Handle serves a single, independent measurement exchange
	Handle(c echo.Context) error
}

// Register adds every module to the router under its own method and route.
// Each Type may only be registered once, nothing is added otherwise.
func Register(router *echo.Echo, modules ...Module) error {
	log := log2.With().Str("role", "module").Caller().Logger()

	registered := make(map[Type]Module, len(modules))
	for _, m := range modules {
		if _, ok := registered[m.Type()]; ok {
			return errors.Errorf("module %s is registered twice", m.Type())
		}
		registered[m.Type()] = m
	}

	for _, m := range modules {
		router.Add(m.Method(), m.Route(), m.Handle)
		log.Debug().Str("type", m.Type()).Str("method", m.Method()).Str("route", m.Route()).
			Msg("module registered")
	}

	return nil
}
