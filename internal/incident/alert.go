package incident

import (
	"context"
	"log/slog"

	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/plugin"
)

// PluginAlerter sends incidents to every discovered plugin that accepts
// the incident label.
type PluginAlerter struct {
	plugins *plugin.Manager
	exec    *plugin.Executor
	logger  *slog.Logger
}

// NewPluginAlerter creates an alerter over discovered plugins.
func NewPluginAlerter(plugins *plugin.Manager, exec *plugin.Executor) *PluginAlerter {
	return &PluginAlerter{
		plugins: plugins,
		exec:    exec,
		logger:  log.Component("alert"),
	}
}

// Alert runs each matching plugin in turn. Failures are logged.
func (a *PluginAlerter) Alert(ctx context.Context, inc Incident) {
	for _, p := range a.plugins.ForLabel(string(inc.Label)) {
		req := &plugin.Request{
			Event:    plugin.EventIncident,
			ID:       inc.ID,
			TrackID:  inc.TrackID,
			Label:    string(inc.Label),
			Message:  inc.Message,
			Severity: inc.Severity,
			Time:     inc.Time,
		}

		resp, err := a.exec.Execute(ctx, p, req)
		if err != nil {
			a.logger.Warn("alert plugin failed", "plugin", p.Manifest.Name, "error", err)
			continue
		}
		if !resp.Success {
			a.logger.Warn("alert plugin rejected incident", "plugin", p.Manifest.Name, "error", resp.Error)
			continue
		}
		a.logger.Debug("alert delivered", "plugin", p.Manifest.Name, "id", inc.ID)
	}
}
