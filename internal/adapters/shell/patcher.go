package shell

import (
	"context"
	"os"
	"strings"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

// PatchesPlaceholder is replaced by the patch set in patcher arguments.
const PatchesPlaceholder = "{patches}"

// Patcher runs an external binary patcher command. Arguments take the
// decompiler placeholders and PatchesPlaceholder; input and output are
// appended when the command names neither.
type Patcher struct {
	executor *Executor
	command  []string
}

var _ ports.Patcher = (*Patcher)(nil)

// NewPatcher creates a Patcher running command with executor.
func NewPatcher(executor *Executor, command []string) *Patcher {
	return &Patcher{executor: executor, command: command}
}

// Patch implements ports.Patcher.
func (p *Patcher) Patch(ctx context.Context, input, patches string, classpath []string, output string) error {
	if len(p.command) == 0 {
		return domain.ErrPatcherNotConfigured
	}

	command := make([]string, len(p.command))
	for i, arg := range p.command {
		command[i] = strings.ReplaceAll(arg, PatchesPlaceholder, patches)
	}
	args := expandArgs(command, input, output, classpath)
	if err := p.executor.Run(ctx, Command{Args: args}, nil); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrPatchFailed.Error()), "input", input)
	}
	if _, err := os.Stat(output); err != nil {
		err = zerr.With(zerr.Wrap(err, domain.ErrPatchFailed.Error()), "input", input)
		return zerr.With(err, "reason", "no output written")
	}
	return nil
}
