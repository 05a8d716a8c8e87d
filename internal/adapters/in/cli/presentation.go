package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/proxied/internal/adapters/in/cli/ui/components"
	"github.com/bnema/proxied/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/proxied/internal/domain"
)

var cliWriteLine = func(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if err := cliWriteLine(w, line); err != nil {
			return err
		}
	}
	return nil
}

func cliRenderTitle(msg string) string {
	return styles.Theme.Title.Render(msg)
}

func cliRenderMuted(msg string) string {
	return styles.Theme.Muted.Render(msg)
}

func cliRenderMeta(label, value string) string {
	return styles.Theme.Bold.Render(label) + " " + styles.Theme.Muted.Render(value)
}

// routeState condenses the route flags into one word, most urgent first.
func routeState(r *domain.Route) string {
	switch {
	case r.Delete:
		return "deleting"
	case r.HasError:
		return "error"
	case !r.Enabled:
		return "disabled"
	case r.HasChange:
		return "pending"
	default:
		return "active"
	}
}

func sslLabel(r *domain.Route) string {
	if !r.SSLEnabled() {
		return "-"
	}
	label := string(r.SSLType)
	if r.ForceSSL {
		label += " (forced)"
	}
	return label
}

func upstreamAddresses(r *domain.Route) []string {
	ups := r.EffectiveUpstreams()
	addrs := make([]string, 0, len(ups))
	for _, u := range ups {
		addrs = append(addrs, u.Address())
	}
	return addrs
}

func renderRouteTable(routes []*domain.Route) string {
	rows := make([][]string, 0, len(routes))
	for _, r := range routes {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			strings.Join(r.DomainNames(), ", "),
			strings.Join(upstreamAddresses(r), ", "),
			sslLabel(r),
			styles.RenderBadge(routeState(r)),
		})
	}
	return components.RouteTable(rows)
}

func renderRouteDetail(w io.Writer, r *domain.Route) error {
	lines := []string{
		cliRenderTitle(r.Name) + " " + styles.RenderBadge(routeState(r)),
		cliRenderMeta("ID:", strconv.FormatInt(r.ID, 10)),
	}
	if r.Label != "" {
		lines = append(lines, cliRenderMeta("Label:", r.Label))
	}
	lines = append(lines,
		cliRenderMeta("Enabled:", strconv.FormatBool(r.Enabled)),
		cliRenderMeta("SSL:", sslLabel(r)),
	)
	if !r.CertificateExpiry.IsZero() {
		lines = append(lines, cliRenderMeta("Certificate expires:", formatTime(r.CertificateExpiry)))
	}
	lines = append(lines,
		cliRenderMeta("Added:", formatTime(r.Added)),
		cliRenderMeta("Updated:", formatTime(r.Updated)),
		styles.Theme.Heading.Render("Domains"),
	)
	for _, name := range r.DomainNames() {
		lines = append(lines, styles.RenderListItem(name))
	}
	lines = append(lines, styles.Theme.Heading.Render("Upstreams"))
	for _, addr := range upstreamAddresses(r) {
		lines = append(lines, styles.RenderListItem(addr))
	}
	if r.HasError && r.Error != "" {
		lines = append(lines, styles.RenderError(r.Error))
	}

	return writeLines(w, lines)
}

func renderBuildReport(w io.Writer, report *domain.BuildReport) error {
	if len(report.Processed) == 0 {
		return cliWriteLine(w, cliRenderMuted("No changed routes"))
	}

	lines := make([]string, 0, len(report.Processed)+2)
	for _, name := range report.Built {
		lines = append(lines, styles.RenderSuccess("built "+name))
	}
	for _, name := range report.Disabled {
		lines = append(lines, styles.RenderInfo("disabled "+name))
	}
	for _, name := range report.Deleted {
		lines = append(lines, styles.RenderInfo("deleted "+name))
	}
	for _, name := range report.Errored {
		lines = append(lines, styles.RenderError("failed "+name))
	}
	if report.ReloadWarnings != "" {
		lines = append(lines, styles.RenderWarning(strings.TrimSpace(report.ReloadWarnings)))
	}
	if report.Activated {
		lines = append(lines, cliRenderMuted("nginx reloaded in "+report.Finished.Sub(report.Started).Round(time.Millisecond).String()))
	}

	return writeLines(w, lines)
}

func renderReconcileReport(w io.Writer, report *domain.ReconcileReport) error {
	if len(report.Removed) == 0 && len(report.Failed) == 0 {
		return cliWriteLine(w, cliRenderMuted("Nothing to reconcile"))
	}

	var lines []string
	for _, name := range report.Removed {
		lines = append(lines, styles.RenderSuccess("removed "+name))
	}
	for _, name := range report.LogsRemoved {
		lines = append(lines, cliRenderMuted("removed logs "+name))
	}
	for _, name := range report.Failed {
		lines = append(lines, styles.RenderError("could not remove "+name))
	}
	if report.Reloaded {
		lines = append(lines, cliRenderMuted("nginx reloaded"))
	}

	return writeLines(w, lines)
}

func renderSetupReport(w io.Writer, report *domain.SetupReport) error {
	lines := []string{cliRenderMeta("nginx version:", valueOr(report.Version, "unknown"))}
	for _, dir := range report.Directories {
		lines = append(lines, styles.RenderListItem(dir+"/"))
	}
	for _, file := range report.Files {
		lines = append(lines, styles.RenderListItem(file))
	}
	if report.Reloaded {
		lines = append(lines, styles.RenderSuccess("nginx reloaded"))
	}

	return writeLines(w, lines)
}

func renderStatus(w io.Writer, counts *domain.RouteCounts, proxy *domain.ProxyStatus, proxyErr error) error {
	lines := []string{
		cliRenderTitle("Routes"),
		cliRenderMeta("Total:", strconv.Itoa(counts.Total)),
		cliRenderMeta("Pending:", strconv.Itoa(counts.Changed)),
		cliRenderMeta("Errored:", strconv.Itoa(counts.Errored)),
		cliRenderMeta("Disabled:", strconv.Itoa(counts.Disabled)),
		cliRenderMeta("Deleting:", strconv.Itoa(counts.Deleting)),
		cliRenderTitle("nginx"),
	}
	if proxyErr != nil {
		lines = append(lines, styles.RenderWarning(proxyErr.Error()))
	} else {
		lines = append(lines,
			cliRenderMeta("Active connections:", strconv.FormatInt(proxy.ActiveConnections, 10)),
			cliRenderMeta("Requests:", strconv.FormatInt(proxy.Requests, 10)),
			cliRenderMeta("Reading/Writing/Waiting:", fmt.Sprintf("%d/%d/%d", proxy.Reading, proxy.Writing, proxy.Waiting)),
		)
	}

	return writeLines(w, lines)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
