package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hexmeshworkshop/dds/internal/algorithm"
	"github.com/hexmeshworkshop/dds/internal/provenance"
)

// StampLayout formats the start time substituted for %d in folder names.
const StampLayout = "20060102_150405"

// Result describes a finished run.
type Result struct {
	Algorithm string
	Kind      algorithm.Kind

	// Key is the provenance key of the entry, "" for uncaptured runs.
	Key        string
	Command    string
	ReturnCode int
	Duration   time.Duration

	// OutputPath is the child folder created by generative runs. Output is
	// the opened folder, nil when the child matches no type.
	OutputPath string
	Output     *Folder
}

// Run executes the algorithm name on the folder.
//
// Generative runs create a child folder named after the descriptor's name
// template and record provenance there; transformative runs record it in
// the folder itself and re-infer its type afterwards. A non-zero exit code
// is returned in Result.ReturnCode, not as an error. When ctx is cancelled
// the subprocess is killed, no provenance is written and a freshly created
// child folder is removed. The child is also removed when its stream files or
// provenance cannot be written.
func (f *Folder) Run(ctx context.Context, name string, args map[string]string, silent bool) (*Result, error) {
	eng := f.eng
	log := eng.cfg.Logger.With("algo", name, "folder", f.path)

	d, err := eng.cfg.Algorithms.Get(name)
	if err != nil {
		return nil, err
	}
	if d.InputFolderType != f.typ.Name {
		return nil, WrongFolderType.New("%s runs on %s folders, %s is %s", name, d.InputFolderType, f.path, f.typ.Name)
	}
	pre, post, err := eng.cfg.Hooks.hooksFor(d)
	if err != nil {
		return nil, err
	}
	exe, err := eng.cfg.Settings.Executable(d.Executable)
	if err != nil {
		return nil, err
	}

	b, err := f.bind(ctx, d, args)
	if err != nil {
		return nil, err
	}

	start := eng.cfg.Clock.Now().UTC()

	var outDir string
	if d.CreatesFolder() {
		if outDir, err = f.createOutput(d, b, start); err != nil {
			return nil, err
		}
	}
	cleanup := func() {
		if outDir != "" {
			if err := os.RemoveAll(outDir); err != nil {
				log.Warn("removing output folder", "output", outDir, "error", err)
			}
		}
	}

	dest := f.path
	if outDir != "" {
		dest = outDir
	}
	if err := f.bindFiles(d, b, outDir); err != nil {
		cleanup()
		return nil, err
	}

	scratch := filepath.Join(eng.cfg.TempDir, "dds-"+eng.cfg.IDs.NewID())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		cleanup()
		return nil, Error.Wrap(err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("removing scratch folder", "scratch", scratch, "error", err)
		}
	}()
	for _, pname := range d.ParameterNames() {
		if d.Parameters[pname].Scratch {
			b.values[pname] = scratch
		}
	}

	hc := &HookContext{
		Algorithm: d,
		Subject:   f,
		Output:    outDir,
		Scratch:   scratch,
		WorkDir:   workDir(d, f.path, outDir, scratch),
		Args:      b.values,
		Others:    b.others,
		Silent:    silent,
		Logger:    log,
	}

	var bag Bag
	if pre != nil {
		log.Debug("pre-processing")
		if bag, err = pre(ctx, hc); err != nil {
			cleanup()
			return nil, HookError.Wrap(fmt.Errorf("%s pre-processing: %w", name, err))
		}
	}

	argLine, err := d.ArgumentsTemplate().Assemble(b.rendered(true), true)
	if err != nil {
		cleanup()
		return nil, err
	}
	command := shellQuote(exe)
	if argLine != "" {
		command += " " + argLine
	}
	log.Info("running algorithm", "kind", d.Kind)
	log.Debug("command", "command", command, "dir", hc.WorkDir)

	cmd := Command{
		Line:    command,
		Dir:     hc.WorkDir,
		Capture: d.Captured(),
		Tee:     !silent,
		Stdout:  eng.cfg.Stdout,
		Stderr:  eng.cfg.Stderr,
	}
	if d.Kind == algorithm.InteractiveGenerative {
		cmd.Stdin = eng.cfg.Stdin
	}
	if cmd.Capture && !silent {
		fmt.Fprintln(eng.cfg.Stdout, rule(name))
	}
	out, err := eng.cfg.Executor.Execute(ctx, cmd)
	if cmd.Capture && !silent {
		fmt.Fprintln(eng.cfg.Stdout, rule(""))
	}
	if err != nil {
		cleanup()
		return nil, err
	}

	res := &Result{
		Algorithm:  name,
		Kind:       d.Kind,
		Command:    command,
		ReturnCode: out.ReturnCode,
		Duration:   out.Elapsed,
		OutputPath: outDir,
	}
	if out.ReturnCode != 0 {
		log.Warn("algorithm exited with non-zero code", "code", out.ReturnCode)
	}

	if d.Captured() {
		stamp := start.Format(StampLayout)
		if hc.StdoutFile, err = writeStream(dest, name, "stdout", stamp, out.Stdout); err != nil {
			cleanup()
			return nil, err
		}
		if hc.StderrFile, err = writeStream(dest, name, "stderr", stamp, out.Stderr); err != nil {
			cleanup()
			return nil, err
		}
		rc := out.ReturnCode
		entry := provenance.Entry{
			Marker:     d.Kind.Marker(),
			Algorithm:  name,
			Command:    command,
			Parameters: b.values,
			Stdout:     hc.StdoutFile,
			Stderr:     hc.StderrFile,
			ReturnCode: &rc,
			Duration:   provenance.DurationOf(out.Elapsed),
		}
		if res.Key, err = provenance.AppendAt(dest, provenance.Key(start), eng.cfg.Clock, entry); err != nil {
			cleanup()
			return nil, err
		}
	}
	hc.ReturnCode = out.ReturnCode

	if post != nil {
		log.Debug("post-processing")
		if err := post(ctx, hc, bag); err != nil {
			f.settle(res, log)
			return res, HookError.Wrap(fmt.Errorf("%s post-processing: %w", name, err))
		}
	}
	f.settle(res, log)
	return res, nil
}

// createOutput renders the child folder name and creates it.
func (f *Folder) createOutput(d *algorithm.Descriptor, b *binding, start time.Time) (string, error) {
	name, err := d.OutputNameTemplate().Assemble(b.rendered(false), false)
	if err != nil {
		return "", err
	}
	name = strings.Replace(name, "%d", start.Format(StampLayout), 1)
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return "", algorithm.ParameterError.New("%s: %q is not a valid folder name", d.Name, name)
	}
	dir := filepath.Join(f.path, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", OutputAlreadyExists.New("%s", dir)
		}
		return "", Error.Wrap(err)
	}
	return dir, nil
}

// bindFiles points output parameters at the canonical filenames of the
// destination and moves inside_subfolder values into the child folder.
func (f *Folder) bindFiles(d *algorithm.Descriptor, b *binding, outDir string) error {
	destType, destDir := f.typ, f.path
	if outDir != "" {
		t, ok := f.eng.cfg.Types.Get(d.OutputFolderType)
		if !ok {
			return algorithm.DescriptorError.New("%s: output type %q is not registered", d.Name, d.OutputFolderType)
		}
		destType, destDir = t, outDir
	}
	for _, name := range d.ParameterNames() {
		p := d.Parameters[name]
		if p.Output != "" {
			file, err := destType.Filename(p.Output)
			if err != nil {
				return err
			}
			b.values[name] = filepath.Join(destDir, file)
			continue
		}
		if outDir != "" && d.Inside(name) {
			if v, ok := b.values[name]; ok {
				b.values[name] = filepath.Join(outDir, algorithm.Stringify(v))
			}
		}
	}
	return nil
}

// settle refreshes the subject after a run and opens the child folder of
// generative runs.
func (f *Folder) settle(res *Result, log *slog.Logger) {
	if res.OutputPath == "" {
		f.refresh()
		return
	}
	f.info = nil
	child, err := f.eng.Open(res.OutputPath)
	if err != nil {
		log.Warn("output folder has no recognisable type", "output", res.OutputPath, "error", err)
		return
	}
	d, _ := f.eng.cfg.Algorithms.Get(res.Algorithm)
	if d != nil && child.typ.Name != d.OutputFolderType {
		log.Warn("output folder type differs from the declared one",
			"output", res.OutputPath, "type", child.typ.Name, "expected", d.OutputFolderType)
	}
	res.Output = child
}

func workDir(d *algorithm.Descriptor, subject, outDir, scratch string) string {
	switch d.WorkingDirectory {
	case algorithm.WorkDirSubject:
		return subject
	case algorithm.WorkDirScratch:
		return scratch
	default:
		if outDir != "" {
			return outDir
		}
		return subject
	}
}

// writeStream saves a captured stream as <algo>.<stream>.txt in dir and
// returns the filename, "" for empty streams. An existing file from an
// earlier run is kept; the new one gets the start stamp in its name.
func writeStream(dir, algo, stream, stamp string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	for _, name := range []string{
		algo + "." + stream + ".txt",
		algo + "." + stamp + "." + stream + ".txt",
	} {
		fh, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", Error.Wrap(err)
		}
		if _, err := fh.Write(data); err != nil {
			fh.Close()
			return "", Error.Wrap(err)
		}
		return name, Error.Wrap(fh.Close())
	}
	return "", Error.New("%s: no free name for the %s of %s", dir, stream, algo)
}
