// Package activation validates the on-disk proxy configuration and reloads
// the proxy only when validation passes.
package activation

import (
	"context"
	"strings"

	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/logger"
)

func activationError(res *out.ExecResult, err error) *domain.ActivationError {
	e := &domain.ActivationError{Err: err}
	if res != nil {
		e.Command = res.Command
		e.ExitCode = res.ExitCode
		e.Output = res.Output()
	}
	return e
}

// TestAndReload runs the configuration test and, if it exits zero, a single
// reload. Output of a successful reload is returned as a warning.
func TestAndReload(ctx context.Context, proc out.ProxyProcess, log *logger.Logger) (string, error) {
	res, err := proc.Test(ctx)
	if err != nil || res.ExitCode != 0 {
		aerr := activationError(res, err)
		log.Error("configuration test failed, reload skipped", "command", aerr.Command, "exit_code", aerr.ExitCode, "output", strings.TrimSpace(aerr.Output))
		return "", aerr
	}

	res, err = proc.Reload(ctx)
	if err != nil || res.ExitCode != 0 {
		aerr := activationError(res, err)
		log.Error("reload failed", "command", aerr.Command, "exit_code", aerr.ExitCode, "output", strings.TrimSpace(aerr.Output))
		return "", aerr
	}

	warnings := strings.TrimSpace(res.Output())
	if warnings != "" {
		log.Warn("reload reported output", "output", warnings)
	}
	log.Info("proxy reloaded")
	return warnings, nil
}
