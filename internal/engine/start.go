package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkattan/breakpoint-mcp/internal/adapters"
	"github.com/dkattan/breakpoint-mcp/internal/breakpoint"
	internaldap "github.com/dkattan/breakpoint-mcp/internal/dap"
	debugerrors "github.com/dkattan/breakpoint-mcp/internal/errors"
	"github.com/dkattan/breakpoint-mcp/internal/launchconfig"
	"github.com/dkattan/breakpoint-mcp/internal/session"
	"github.com/dkattan/breakpoint-mcp/pkg/types"
)

const (
	initializedTimeout = 10 * time.Second
	launchTimeout      = 30 * time.Second
)

// StartParams drives one start-and-wait cycle. The launch target is either a
// launch.json configuration name or an inline configuration object; exactly
// one must be given.
type StartParams struct {
	WorkspaceFolder   string                 `json:"workspaceFolder,omitempty"`
	ConfigurationName string                 `json:"configurationName,omitempty"`
	Configuration     map[string]interface{} `json:"configuration,omitempty"`

	// ConfigurationOverrides are applied on top of the selected
	// configuration before variable resolution.
	ConfigurationOverrides map[string]interface{} `json:"configurationOverrides,omitempty"`

	// Inputs supplies values for ${input:...} variables.
	Inputs map[string]string `json:"inputs,omitempty"`

	SessionName             string `json:"sessionName,omitempty"`
	SessionID               string `json:"sessionId,omitempty"`
	ExistingSessionBehavior string `json:"existingSessionBehavior,omitempty"`

	Breakpoints []types.BreakpointSpec   `json:"breakpoints,omitempty"`
	ServerReady *types.ServerReadyConfig `json:"serverReady,omitempty"`

	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// StartDebuggingAndWaitForStop launches (or reuses) a debug session, arms the
// requested breakpoints, and blocks until the session reaches a terminal
// stop, times out, or terminates.
func (e *Engine) StartDebuggingAndWaitForStop(ctx context.Context, p StartParams) (*types.StopContext, error) {
	if !e.cfg.CanUseControlTools() {
		return nil, debugerrors.PermissionDenied("start", string(e.cfg.Mode))
	}

	existing, err := e.resolveExistingSession(p.ExistingSessionBehavior, p.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logrus.Infof("Reusing existing debug session %s (%s)", existing.ID, existing.Name)
		return e.armAndWait(ctx, existing, p.Breakpoints, p.ServerReady, nil, p.TimeoutSeconds)
	}

	resolved, err := e.resolveStartConfiguration(&p)
	if err != nil {
		return nil, err
	}
	if resolved.IsAttachRequest() {
		if !e.cfg.CanAttach() {
			return nil, debugerrors.PermissionDenied("attach", string(e.cfg.Mode))
		}
	} else if !e.cfg.CanSpawn() {
		return nil, debugerrors.PermissionDenied("start", string(e.cfg.Mode))
	}

	// Resolve breakpoints and the trigger before anything is spawned so bad
	// specs fail without leaving a half-started session behind.
	resolvedBPs, err := e.resolver.Resolve(p.Breakpoints)
	if err != nil {
		return nil, err
	}
	ready, err := newServerReady(e, p.ServerReady)
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters.Get(resolved.Language)
	if err != nil {
		return nil, err
	}

	name := p.SessionName
	if name == "" {
		name = resolved.Name
	}
	sess, err := e.registry.Create(name, resolved.Language, resolved.Program, "")
	if err != nil {
		return nil, err
	}

	sc, err := e.launchAndWait(ctx, sess, adapter, resolved, resolvedBPs, p.Breakpoints, ready, p.TimeoutSeconds)
	if err != nil {
		e.cleanupAfter(sess, err)
		return nil, err
	}
	return sc, nil
}

// cleanupAfter disposes a session after a failed wait. Timeouts and caller
// cancellation leave the session running for later inspection; everything
// else tears it down.
func (e *Engine) cleanupAfter(sess *session.Session, err error) {
	switch {
	case debugerrors.HasCode(err, debugerrors.CodeStopWaitTimeout):
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
	case debugerrors.HasCode(err, debugerrors.CodeSessionTerminated):
		e.registry.Evict(sess.ID)
	default:
		if terr := e.registry.Terminate(sess.ID, true); terr != nil {
			e.registry.Evict(sess.ID)
		}
	}
}

// resolveStartConfiguration selects the launch target (named or inline),
// applies overrides, and resolves ${...} variables.
func (e *Engine) resolveStartConfiguration(p *StartParams) (*launchconfig.ResolvedConfiguration, error) {
	var cfg *launchconfig.DebugConfiguration
	workspace := p.WorkspaceFolder

	switch {
	case p.ConfigurationName != "" && p.Configuration != nil:
		return nil, debugerrors.InvalidParameter("configurationName", p.ConfigurationName,
			"either a configuration name or an inline configuration, not both")

	case p.ConfigurationName != "":
		lj, ljPath, err := launchconfig.LoadAndDiscover(p.WorkspaceFolder)
		if err != nil {
			return nil, debugerrors.ConfigNotFound(p.ConfigurationName, nil).WithCause(err)
		}
		cfg, err = launchconfig.FindConfiguration(lj, p.ConfigurationName)
		if err != nil {
			return nil, debugerrors.ConfigNotFound(p.ConfigurationName, launchconfig.ListConfigurationNames(lj))
		}
		if workspace == "" {
			workspace = launchconfig.GetWorkspaceFolder(ljPath)
		}

	case p.Configuration != nil:
		data, err := json.Marshal(p.Configuration)
		if err != nil {
			return nil, debugerrors.InvalidJSON("configuration", err, `{"type": "go", "program": "./main.go"}`)
		}
		cfg = &launchconfig.DebugConfiguration{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, debugerrors.InvalidJSON("configuration", err, `{"type": "go", "program": "./main.go"}`)
		}
		if cfg.Request == "" {
			cfg.Request = "launch"
		}
		if cfg.Name == "" {
			cfg.Name = "inline"
		}

	default:
		return nil, debugerrors.MissingParameter("configurationName",
			"the name of a launch.json configuration, or an inline 'configuration' object")
	}

	if len(p.ConfigurationOverrides) > 0 {
		merged, err := launchconfig.MergeOverrides(cfg, p.ConfigurationOverrides)
		if err != nil {
			return nil, debugerrors.ConfigInvalid(cfg.Name, err.Error())
		}
		cfg = merged
	}

	resolved, err := launchconfig.ResolveConfiguration(cfg, &launchconfig.ResolutionContext{
		WorkspaceFolder: workspace,
		InputValues:     p.Inputs,
	})
	if err != nil {
		if mie, ok := launchconfig.IsMissingInputsError(err); ok {
			return nil, debugerrors.MissingInputs(mie.Inputs)
		}
		return nil, debugerrors.ConfigInvalid(cfg.Name, err.Error())
	}
	return resolved, nil
}

// launchAndWait runs the launch sequence against a freshly created session:
// spawn and connect the adapter, initialize, send the launch or attach verb,
// arm breakpoints on the initialized event, configurationDone, then wait.
//
// The waiter subscribes before the launch verb goes out so no stop or output
// event can be missed.
func (e *Engine) launchAndWait(ctx context.Context, sess *session.Session, adapter adapters.Adapter, resolved *launchconfig.ResolvedConfiguration, bps []*types.ResolvedBreakpoint, specs []types.BreakpointSpec, ready *serverReady, timeoutSeconds int) (*types.StopContext, error) {
	launchArgs := resolved.ToLaunchArgs()

	client, cmd, err := adapters.SpawnAndConnect(ctx, adapter, resolved.Program, launchArgs)
	if err != nil {
		return nil, err
	}
	sess.Client = client
	sess.Process = cmd
	if cmd != nil && cmd.Process != nil {
		sess.PID = cmd.Process.Pid
	}
	e.registry.Watch(sess)

	w := newWaiter(e, sess, ready, e.stopTimeout(timeoutSeconds), resolved.Name)
	defer w.close()

	if _, err := client.Initialize(); err != nil {
		return nil, debugerrors.AdapterProtocol("initialize", err)
	}
	if err := breakpoint.RequireFunctionSupport(bps, client.SupportsFunctionBreakpoints()); err != nil {
		return nil, err
	}

	if resolved.IsAttachRequest() {
		err = client.AttachAsync(adapter.BuildAttachArgs(resolved.ToAttachArgs()))
	} else {
		err = client.LaunchAsync(adapter.BuildLaunchArgs(resolved.Program, launchArgs))
	}
	if err != nil {
		return nil, debugerrors.AdapterProtocol(resolved.Request, err)
	}

	if err := client.WaitForInitialized(initializedTimeout); err != nil {
		return nil, debugerrors.AdapterProtocol("initialized", err)
	}

	all := withTrigger(bps, ready)
	if err := armBreakpoints(client, all); err != nil {
		return nil, err
	}
	w.armed(all, specs)

	if err := client.ConfigurationDone(); err != nil {
		return nil, debugerrors.AdapterProtocol("configurationDone", err)
	}
	if err := client.WaitForLaunchResponse(launchTimeout); err != nil {
		return nil, debugerrors.AdapterProtocol(resolved.Request, err)
	}

	logrus.Infof("Session %s started (%s, %s), waiting for stop", sess.ID, resolved.Language, resolved.Name)
	return w.wait(ctx)
}

func (e *Engine) stopTimeout(timeoutSeconds int) time.Duration {
	if timeoutSeconds > 0 {
		return time.Duration(timeoutSeconds) * time.Second
	}
	return e.cfg.StopWaitDefault()
}

// withTrigger prepends the server-ready trigger breakpoint so its file group
// arms first and a fast debuggee cannot run past it.
func withTrigger(bps []*types.ResolvedBreakpoint, ready *serverReady) []*types.ResolvedBreakpoint {
	if ready == nil || ready.bp == nil {
		return bps
	}
	return append([]*types.ResolvedBreakpoint{ready.bp}, bps...)
}

// armBreakpoints sends the full per-file breakpoint sets plus function
// breakpoints and records the adapter's verification results.
func armBreakpoints(client *internaldap.Client, all []*types.ResolvedBreakpoint) error {
	for _, group := range breakpoint.GroupByFile(all) {
		result, err := client.SetBreakpoints(group.Path, breakpoint.SourceBreakpoints(group.Breakpoints))
		if err != nil {
			return debugerrors.AdapterProtocol("setBreakpoints", err)
		}
		breakpoint.ApplyAdapterResult(group.Breakpoints, result)
	}
	if funcs := breakpoint.Functions(all); len(funcs) > 0 {
		result, err := client.SetFunctionBreakpoints(breakpoint.FunctionBreakpointPayload(funcs))
		if err != nil {
			return debugerrors.AdapterProtocol("setFunctionBreakpoints", err)
		}
		breakpoint.ApplyAdapterResult(funcs, result)
	}
	return nil
}

// handleChildSession is installed as the registry's child handler. Adapters
// like js-debug delegate the real debugging work to a child session via the
// startDebugging reverse request; the child gets its own connection,
// registry entry, and lifecycle tracker, linked to the parent.
func (e *Engine) handleChildSession(parent *session.Session, requestSeq int, request string, configuration map[string]interface{}) {
	goSafe("child-session", func() {
		e.startChildSession(parent, requestSeq, request, configuration)
	})
}

func (e *Engine) startChildSession(parent *session.Session, requestSeq int, request string, configuration map[string]interface{}) {
	respond := func(ok bool, msg string) {
		if err := parent.Client.RespondToStartDebugging(requestSeq, ok, msg); err != nil {
			logrus.Warnf("session %s: failed to answer startDebugging: %v", parent.ID, err)
		}
	}

	typeStr, _ := configuration["type"].(string)
	langStr := typeStr
	if mapped, ok := launchconfig.TypeToLanguage[typeStr]; ok {
		langStr = mapped
	}
	language := types.Language(langStr)

	name, _ := configuration["name"].(string)
	if name == "" {
		name = parent.Name + " (child)"
	}
	program, _ := configuration["program"].(string)

	client, cmd, err := e.connectChild(configuration)
	if err != nil {
		logrus.Warnf("session %s: child session connect failed: %v", parent.ID, err)
		respond(false, err.Error())
		return
	}

	sess, err := e.registry.Create(name, language, program, parent.ID)
	if err != nil {
		_ = client.Close()
		respond(false, err.Error())
		return
	}
	sess.Client = client
	sess.Process = cmd
	if cmd != nil && cmd.Process != nil {
		sess.PID = cmd.Process.Pid
	}
	e.registry.Watch(sess)

	fail := func(stage string, err error) {
		logrus.Warnf("child session %s: %s failed: %v", sess.ID, stage, err)
		e.registry.Evict(sess.ID)
		respond(false, fmt.Sprintf("%s failed: %v", stage, err))
	}

	if _, err := client.Initialize(); err != nil {
		fail("initialize", err)
		return
	}
	if request == "attach" {
		err = client.AttachAsync(configuration)
	} else {
		err = client.LaunchAsync(configuration)
	}
	if err != nil {
		fail(request, err)
		return
	}
	if err := client.WaitForInitialized(initializedTimeout); err != nil {
		fail("initialized", err)
		return
	}
	if err := client.ConfigurationDone(); err != nil {
		fail("configurationDone", err)
		return
	}
	if err := client.WaitForLaunchResponse(launchTimeout); err != nil {
		fail(request, err)
		return
	}

	logrus.Infof("Child session %s registered under %s (%s)", sess.ID, parent.ID, language)
	respond(true, "")
}

// connectChild opens the child's DAP connection. js-debug publishes a
// dedicated TCP port in the child configuration; anything else gets a fresh
// adapter spawn.
func (e *Engine) connectChild(configuration map[string]interface{}) (*internaldap.Client, *exec.Cmd, error) {
	if addr := childServerAddress(configuration); addr != "" {
		client, err := adapters.Connect(addr, 20)
		return client, nil, err
	}

	typeStr, _ := configuration["type"].(string)
	langStr := typeStr
	if mapped, ok := launchconfig.TypeToLanguage[typeStr]; ok {
		langStr = mapped
	}
	adapter, err := e.adapters.Get(types.Language(langStr))
	if err != nil {
		return nil, nil, err
	}
	program, _ := configuration["program"].(string)
	return adapters.SpawnAndConnect(context.Background(), adapter, program, configuration)
}

// childServerAddress extracts the js-debug child server port, which arrives
// as a number or a string depending on the adapter version.
func childServerAddress(configuration map[string]interface{}) string {
	switch v := configuration["__jsDebugChildServer"].(type) {
	case float64:
		if v > 0 {
			return fmt.Sprintf("127.0.0.1:%d", int(v))
		}
	case string:
		if v != "" {
			return "127.0.0.1:" + v
		}
	}
	return ""
}
