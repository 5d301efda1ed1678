package hooks

import (
	"context"

	"github.com/hexmeshworkshop/dds/internal/engine"
)

// refuseIfPresent stops a surface extraction when the other variant
// already wrote its surface. Both share the surface map.
func refuseIfPresent(keyword, other string) engine.PreHook {
	return func(_ context.Context, hc *engine.HookContext) (engine.Bag, error) {
		if hc.Subject.Has(keyword) {
			return nil, Error.New("%s: %s already ran here, remove %s first",
				hc.Subject.Path(), other, keyword)
		}
		return nil, nil
	}
}
