package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ledger/internal/doc"
)

// PatchOptions are the shared patch input flags.
type PatchOptions struct {
	Patch     string // inline JSON
	PatchFile string // .json, .yaml/.yml, or "-" for JSON on stdin
}

// readPatch resolves the patch flags into an object. With neither flag set
// the patch is empty.
func readPatch(opts PatchOptions, stdin io.Reader) (doc.Object, error) {
	if opts.Patch != "" && opts.PatchFile != "" {
		return nil, NewExitError(ExitCommandError, "--patch and --patch-file are mutually exclusive")
	}

	switch {
	case opts.Patch != "":
		obj, err := doc.DecodeObject([]byte(opts.Patch))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --patch JSON", err)
		}
		return obj, nil

	case opts.PatchFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read patch from stdin", err)
		}
		obj, err := doc.DecodeObject(data)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid patch JSON on stdin", err)
		}
		return obj, nil

	case opts.PatchFile != "":
		obj, err := readPatchFile(opts.PatchFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --patch-file", err)
		}
		return obj, nil
	}
	return doc.Object{}, nil
}

func readPatchFile(path string) (doc.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		v, err := doc.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v.(doc.Object), nil
	default:
		obj, err := doc.DecodeObject(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return obj, nil
	}
}

func (p *PatchOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.Patch, "patch", "", "patch as inline JSON object")
	cmd.Flags().StringVar(&p.PatchFile, "patch-file", "", "patch file (.json, .yaml/.yml, or - for JSON on stdin)")
}
