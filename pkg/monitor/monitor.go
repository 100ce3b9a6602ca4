// Package monitor runs scheduled probes against the embedded web client:
// detection of channels the user cannot post in (offering preview or join),
// and a one-time exploration of the client's internal API after load.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/webscript"
)

// CheckPermission is the name of the scheduled permission probe.
const CheckPermission = "permission_issue"

// Page is the embedded web client.
type Page interface {
	Evaluate(ctx context.Context, probe webscript.Probe, out any) error
	IsReady() bool
}

// Check is the run record of one scheduled probe.
type Check struct {
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"`
	LastRun     time.Time `json:"last_run"`
	NextRun     time.Time `json:"next_run"`
	RunCount    int       `json:"run_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess bool      `json:"last_success"`
	Detected    bool      `json:"detected"`
}

// Monitor schedules probes.
type Monitor struct {
	log    *logger.Logger
	page   Page
	events events.Publisher
	lang   language.Tag

	scheduler *cron.Cron
	checks    map[string]*Check
	entries   map[string]cron.EntryID
	explored  *webscript.ExploreResult
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a monitor. Nothing runs before Start.
func New(log *logger.Logger, page Page, pub events.Publisher, lang language.Tag) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		log:       log.Named("monitor"),
		page:      page,
		events:    pub,
		lang:      lang,
		scheduler: cron.New(),
		checks:    make(map[string]*Check),
		entries:   make(map[string]cron.EntryID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Schedule registers the permission probe on schedule, replacing any
// previous schedule.
func (m *Monitor) Schedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.entries[CheckPermission]; ok {
		m.scheduler.Remove(id)
	}
	id, err := m.scheduler.AddFunc(schedule, func() { m.execute(CheckPermission) })
	if err != nil {
		return err
	}
	m.entries[CheckPermission] = id

	check, ok := m.checks[CheckPermission]
	if !ok {
		check = &Check{Name: CheckPermission}
		m.checks[CheckPermission] = check
	}
	check.Schedule = schedule
	check.NextRun = m.scheduler.Entry(id).Next
	return nil
}

// Start starts the scheduler.
func (m *Monitor) Start() error {
	m.log.Info("Starting monitor")
	m.scheduler.Start()
	return nil
}

// Stop stops the scheduler and waits for running probes.
func (m *Monitor) Stop() error {
	m.log.Info("Stopping monitor")
	done := m.scheduler.Stop()
	m.cancel()
	<-done.Done()
	return nil
}

// Checks returns a copy of every run record ordered by name.
func (m *Monitor) Checks() []Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Explored returns the API exploration result, if one ran.
func (m *Monitor) Explored() (webscript.ExploreResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.explored == nil {
		return webscript.ExploreResult{}, false
	}
	return *m.explored, true
}

func (m *Monitor) execute(name string) {
	ctx, cancel := context.WithTimeout(m.ctx, time.Minute)
	defer cancel()

	var (
		detected bool
		err      error
	)
	switch name {
	case CheckPermission:
		var res webscript.PermissionResult
		res, err = m.CheckPermissionIssue(ctx)
		detected = res.Detected
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	check, ok := m.checks[name]
	if !ok {
		return
	}
	check.LastRun = time.Now()
	check.RunCount++
	check.Detected = detected
	if err != nil {
		check.LastSuccess = false
		check.LastError = err.Error()
	} else {
		check.LastSuccess = true
		check.LastError = ""
	}
	if id, ok := m.entries[name]; ok {
		check.NextRun = m.scheduler.Entry(id).Next
	}
}

// CheckPermissionIssue looks for a channel the user cannot post in and,
// when found, shows the preview or join prompt in the page. It does nothing
// until the web client is ready.
func (m *Monitor) CheckPermissionIssue(ctx context.Context) (webscript.PermissionResult, error) {
	var res webscript.PermissionResult
	if !m.page.IsReady() {
		return res, nil
	}

	args := webscript.PermissionArgs{
		Prompt: true,
		Text: webscript.PromptText{
			Title:   apperr.Text(apperr.MsgPromptTitle, m.lang),
			Preview: apperr.Text(apperr.MsgPromptPreview, m.lang),
			Join:    apperr.Text(apperr.MsgPromptJoin, m.lang),
			Later:   apperr.Text(apperr.MsgPromptLater, m.lang),
		},
	}
	if err := m.page.Evaluate(ctx, webscript.Probe{Name: webscript.ProbePermissionIssue, Args: args}, &res); err != nil {
		m.log.Debug("Permission probe failed", zap.Error(err))
		return res, err
	}
	if !res.Detected {
		return res, nil
	}

	channelID := ""
	if res.ChannelID != nil {
		channelID = *res.ChannelID
	}
	m.log.Info("Posting not allowed in channel",
		zap.String("channel_id", channelID),
		zap.Bool("prompted", res.Prompted))
	if res.Prompted {
		ev := events.New(events.TypePermission, channelID, map[string]any{"prompted": true})
		if err := m.events.Publish(ctx, ev); err != nil {
			m.log.Debug("Publishing permission event failed", zap.Error(err))
		}
	}
	return res, nil
}

// Explore inspects the web client's globals and module registry for an
// internal API. It runs once per page load.
func (m *Monitor) Explore(ctx context.Context) (webscript.ExploreResult, error) {
	var res webscript.ExploreResult
	if err := m.page.Evaluate(ctx, webscript.Probe{Name: webscript.ProbeExploreAPI}, &res); err != nil {
		m.log.Debug("API exploration failed", zap.Error(err))
		return res, err
	}

	m.mu.Lock()
	m.explored = &res
	m.mu.Unlock()

	m.log.Info("Web client API explored",
		zap.Int("globals", len(res.Globals)),
		zap.Strings("related", res.Related),
		zap.Bool("gramjs", res.GramJS),
		zap.Bool("webpack", res.Webpack))
	return res, nil
}
