package shell

import (
	"context"
	"os"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

// Placeholders recognised in decompiler arguments.
const (
	InputPlaceholder     = "{input}"
	OutputPlaceholder    = "{output}"
	ClasspathPlaceholder = "{classpath}"
	// LibraryPlaceholder repeats its argument once per classpath jar.
	LibraryPlaceholder = "{library}"
)

// Decompiler runs an external decompiler command. Arguments may contain
// the placeholders above; input and output are appended when the command
// names neither.
type Decompiler struct {
	executor *Executor
	command  []string
}

var _ ports.Decompiler = (*Decompiler)(nil)

// NewDecompiler creates a Decompiler running command with executor.
func NewDecompiler(executor *Executor, command []string) *Decompiler {
	return &Decompiler{executor: executor, command: command}
}

// Decompile implements ports.Decompiler.
func (d *Decompiler) Decompile(ctx context.Context, input string, classpath []string, output string) error {
	if len(d.command) == 0 {
		return domain.ErrDecompilerNotConfigured
	}

	args := expandArgs(d.command, input, output, classpath)
	if err := d.executor.Run(ctx, Command{Args: args}, nil); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDecompileFailed.Error()), "input", input)
	}
	if _, err := os.Stat(output); err != nil {
		err = zerr.With(zerr.Wrap(err, domain.ErrDecompileFailed.Error()), "input", input)
		return zerr.With(err, "reason", "no output written")
	}
	return nil
}

func expandArgs(command []string, input, output string, classpath []string) []string {
	replacer := strings.NewReplacer(
		InputPlaceholder, input,
		OutputPlaceholder, output,
		ClasspathPlaceholder, strings.Join(classpath, string(os.PathListSeparator)),
	)

	named := false
	args := make([]string, 0, len(command)+len(classpath)+2)
	for _, arg := range command {
		if strings.Contains(arg, LibraryPlaceholder) {
			for _, lib := range classpath {
				args = append(args, strings.ReplaceAll(arg, LibraryPlaceholder, lib))
			}
			continue
		}
		if strings.Contains(arg, InputPlaceholder) || strings.Contains(arg, OutputPlaceholder) {
			named = true
		}
		args = append(args, replacer.Replace(arg))
	}
	if !named {
		args = append(args, input, output)
	}
	return args
}
