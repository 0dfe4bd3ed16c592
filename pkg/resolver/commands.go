package resolver

import (
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/logging"
)

// probeTimeout bounds the whole PATH probe. Lookups are local and
// cheap; a hung automount should not stall resolution.
const probeTimeout = 2 * time.Second

// LookPathFunc resolves a command name against PATH. Tests substitute
// their own.
type LookPathFunc func(name string) (string, error)

// CheckCommands verifies that every external command the plan's
// packages declare is reachable on PATH. All missing commands are
// reported together in a single MISSING_COMMAND error.
func CheckCommands(ctx context.Context, plan *Plan, lookPath LookPathFunc) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	seen := make(map[string]bool)
	var commands []string
	for _, step := range plan.Steps {
		if step.Metadata == nil {
			continue
		}
		for _, cmd := range step.Metadata.DependCmds {
			if cmd == "" || seen[cmd] {
				continue
			}
			seen[cmd] = true
			commands = append(commands, cmd)
		}
	}
	if len(commands) == 0 {
		return nil
	}
	sort.Strings(commands)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	type result struct {
		missing []string
	}
	done := make(chan result, 1)
	go func() {
		var missing []string
		for _, cmd := range commands {
			if _, err := lookPath(cmd); err != nil {
				missing = append(missing, cmd)
			}
		}
		done <- result{missing: missing}
	}()

	select {
	case <-ctx.Done():
		logger := logging.GetLogger("resolver")
		logger.Warn().
			Strs("commands", commands).
			Msg("Command probe timed out, skipping PATH verification")
		return nil
	case res := <-done:
		if len(res.missing) == 0 {
			return nil
		}
		return errors.Newf(errors.ErrMissingCommand, "required commands not found on PATH: %s", strings.Join(res.missing, ", ")).
			WithDetail("commands", res.missing)
	}
}
