package engine

import (
	"context"
	"fmt"
)

// View opens the folder in the viewer registered for what, the type's
// default view when what is empty. Types without views print the folder
// path instead.
func (f *Folder) View(ctx context.Context, what string) error {
	algo, ok, err := f.typ.View(what)
	if err != nil {
		return err
	}
	if !ok {
		_, err := fmt.Fprintln(f.eng.cfg.Stdout, f.path)
		return Error.Wrap(err)
	}
	res, err := f.Run(ctx, algo, nil, true)
	if err != nil {
		return err
	}
	if res.ReturnCode != 0 {
		f.eng.cfg.Logger.Warn("viewer exited with non-zero code", "algo", algo, "code", res.ReturnCode)
	}
	return nil
}
