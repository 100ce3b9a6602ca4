package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"tgbridge/pkg/events"
	"tgbridge/pkg/logger"
	"tgbridge/pkg/webscript"
)

type fakePage struct {
	mu     sync.Mutex
	ready  bool
	result any
	err    error
	probes []webscript.Probe
}

func (p *fakePage) Evaluate(_ context.Context, probe webscript.Probe, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes = append(p.probes, probe)
	if p.err != nil {
		return p.err
	}
	raw, _ := json.Marshal(p.result)
	return json.Unmarshal(raw, out)
}

func (p *fakePage) IsReady() bool { return p.ready }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestPermissionProbeSkippedBeforeReady(t *testing.T) {
	page := &fakePage{}
	m := New(logger.NewNop(), page, nil, language.English)

	res, err := m.CheckPermissionIssue(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Empty(t, page.probes)
}

func TestPermissionProbePromptsAndPublishes(t *testing.T) {
	id := "-1001"
	page := &fakePage{
		ready:  true,
		result: webscript.PermissionResult{Detected: true, ChannelID: &id, Prompted: true},
	}
	pub := &recorder{}
	m := New(logger.NewNop(), page, pub, language.SimplifiedChinese)

	res, err := m.CheckPermissionIssue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Detected)

	require.Len(t, page.probes, 1)
	assert.Equal(t, webscript.ProbePermissionIssue, page.probes[0].Name)
	args, ok := page.probes[0].Args.(webscript.PermissionArgs)
	require.True(t, ok)
	assert.True(t, args.Prompt)
	assert.Equal(t, "加入频道", args.Text.Join)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypePermission, pub.events[0].Type)
	assert.Equal(t, "-1001", pub.events[0].ChannelID)
}

func TestPermissionDetectedWithoutPromptIsQuiet(t *testing.T) {
	page := &fakePage{ready: true, result: webscript.PermissionResult{Detected: true}}
	pub := &recorder{}
	m := New(logger.NewNop(), page, pub, language.English)

	res, err := m.CheckPermissionIssue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Empty(t, pub.events)
}

func TestScheduleAndExecuteRecordsRuns(t *testing.T) {
	page := &fakePage{ready: true, result: webscript.PermissionResult{}}
	m := New(logger.NewNop(), page, nil, language.English)

	assert.Error(t, m.Schedule("not a schedule"))
	require.NoError(t, m.Schedule("@every 30s"))

	m.execute(CheckPermission)
	page.err = errors.New("evaluation failed")
	m.execute(CheckPermission)

	checks := m.Checks()
	require.Len(t, checks, 1)
	c := checks[0]
	assert.Equal(t, CheckPermission, c.Name)
	assert.Equal(t, "@every 30s", c.Schedule)
	assert.Equal(t, 2, c.RunCount)
	assert.False(t, c.LastSuccess)
	assert.Equal(t, "evaluation failed", c.LastError)
	assert.False(t, c.LastRun.IsZero())
}

func TestExploreStoresResult(t *testing.T) {
	page := &fakePage{result: webscript.ExploreResult{Related: []string{"gramClient"}, Webpack: true}}
	m := New(logger.NewNop(), page, nil, language.English)

	_, ok := m.Explored()
	assert.False(t, ok)

	_, err := m.Explore(context.Background())
	require.NoError(t, err)

	got, ok := m.Explored()
	require.True(t, ok)
	assert.Equal(t, []string{"gramClient"}, got.Related)
	assert.True(t, got.Webpack)
}

func TestStartStop(t *testing.T) {
	m := New(logger.NewNop(), &fakePage{}, nil, language.English)
	require.NoError(t, m.Schedule("@every 1h"))
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())
}
