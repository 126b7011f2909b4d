package dryioc

import (
	"github.com/dadhi/dryioc/internal/reflection"
)

// In marks a parameter object. When a constructor takes a single struct that embeds
// In, each exported field of the struct is resolved as a separate dependency:
//   - `name:"key"` - the field is resolved with the given service key
//   - `optional:"true"` - the field is left at its zero value when unresolved
//   - `inject:"-"` - the field is skipped
//
// Example:
//
//	type HandlerParams struct {
//	    dryioc.In
//
//	    Store   Store
//	    Logger  Logger      `optional:"true"`
//	    Cache   Cache       `name:"redis"`
//	    Plugins []Plugin
//	}
//
//	func NewHandler(p HandlerParams) *Handler {
//	    return &Handler{store: p.Store, logger: p.Logger}
//	}
//
// In must be embedded anonymously.
type In = reflection.In
