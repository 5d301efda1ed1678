package hooks

import (
	"context"

	"github.com/hexmeshworkshop/dds/internal/engine"
)

// statsPost turns the captured stdout of a stats tool into the JSON stats
// file named by others.stats_keyword.
func statsPost(_ context.Context, hc *engine.HookContext, _ engine.Bag) error {
	keyword := hc.OtherString("stats_keyword")
	if keyword == "" {
		return Error.New("%s: others.stats_keyword is not set", hc.Algorithm.Name)
	}
	if hc.ReturnCode != 0 {
		hc.Logger.Warn("stats not written", "code", hc.ReturnCode)
		return nil
	}
	if hc.StdoutFile == "" {
		return Error.New("%s printed no statistics", hc.Algorithm.Name)
	}
	name, err := hc.Subject.Type().Filename(keyword)
	if err != nil {
		return err
	}
	return hc.Subject.RenameFile(hc.StdoutFile, name)
}
