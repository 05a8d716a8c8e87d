package nginx

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bnema/proxied/internal/boundaries/out"
)

var versionRegex = regexp.MustCompile(`nginx/(\d+\.\d+\.\d+)`)

// Commands are the argv vectors used to drive nginx.
type Commands struct {
	Test    []string
	Reload  []string
	Version []string
}

// Controller implements out.ProxyProcess through a command executor.
type Controller struct {
	exec out.CommandExecutor
	cmds Commands
}

var _ out.ProxyProcess = (*Controller)(nil)

// NewController creates a controller. Empty commands fall back to the
// nginx defaults.
func NewController(exec out.CommandExecutor, cmds Commands) *Controller {
	if len(cmds.Test) == 0 {
		cmds.Test = []string{"nginx", "-t"}
	}
	if len(cmds.Reload) == 0 {
		cmds.Reload = []string{"nginx", "-s", "reload"}
	}
	if len(cmds.Version) == 0 {
		cmds.Version = []string{"nginx", "-v"}
	}
	return &Controller{exec: exec, cmds: cmds}
}

func (c *Controller) run(ctx context.Context, argv []string) (*out.ExecResult, error) {
	return c.exec.Run(ctx, argv[0], argv[1:]...)
}

func (c *Controller) Test(ctx context.Context) (*out.ExecResult, error) {
	return c.run(ctx, c.cmds.Test)
}

func (c *Controller) Reload(ctx context.Context) (*out.ExecResult, error) {
	return c.run(ctx, c.cmds.Reload)
}

// Version parses "nginx version: nginx/1.25.3", which nginx prints on stderr.
func (c *Controller) Version(ctx context.Context) (string, error) {
	res, err := c.run(ctx, c.cmds.Version)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s exited with code %d", strings.Join(c.cmds.Version, " "), res.ExitCode)
	}
	m := versionRegex.FindStringSubmatch(res.Output())
	if m == nil {
		return "", fmt.Errorf("unrecognized nginx version output: %q", strings.TrimSpace(res.Output()))
	}
	return m[1], nil
}
