// copilot.go: Lifecycle controller and public operations of the engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
)

// LifecycleState is the connection intent of the engine.
type LifecycleState int32

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateRunning
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// InputCatalog maps an input id to its long name.
type InputCatalog map[int]string

// Clone returns an independent copy.
func (ic InputCatalog) Clone() InputCatalog {
	out := make(InputCatalog, len(ic))
	for k, v := range ic {
		out[k] = v
	}
	return out
}

// IDs returns the input ids in ascending order.
func (ic InputCatalog) IDs() []int {
	ids := make([]int, 0, len(ic))
	for id := range ic {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Copilot normalizes switcher notifications into a routing model, buffers
// diagnostics until observers attach and mirrors ME1 onto ME2 and the AUX
// buses according to the mapping table.
//
// Switcher notifications are handled on the client's goroutine. Readers of
// the routing state, input catalog, mapping and configuration always see a
// complete snapshot.
type Copilot struct {
	switcher Switcher
	logs     *LogBuffer
	events   *emitter
	mappings *MappingStore
	palettes *PaletteStore
	mirror   *mirror
	audit    *AuditLogger
	watcher  *Watcher

	config   atomic.Pointer[Config]
	initial  Config
	configMu sync.Mutex

	routing   atomic.Pointer[RoutingState]
	routingMu sync.Mutex
	inputs    atomic.Pointer[InputCatalog]

	lifecycle atomic.Int32
	startTime time.Time
	closeOnce sync.Once
}

// New builds an engine around a switcher client. The mapping and palette
// files are read immediately; a connection is only attempted by Start, or
// right away when config.AutoStart is set.
func New(switcher Switcher, config Config) (*Copilot, error) {
	if switcher == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "switcher client is required")
	}
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	audit, auditErr := NewAuditLogger(cfg.Audit)
	if auditErr != nil {
		audit, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	logs := NewLogBuffer(cfg.LogBufferSize)
	c := &Copilot{
		switcher:  switcher,
		logs:      logs,
		events:    newEmitter(),
		mappings:  NewMappingStore(cfg.MappingFile).WithAudit(audit),
		palettes:  NewPaletteStore(cfg.PaletteFile).WithAudit(audit),
		audit:     audit,
		initial:   *cfg,
		startTime: time.Now(),
	}
	c.mirror = &mirror{
		switcher: switcher,
		mappings: c.mappings,
		palettes: c.palettes,
		logs:     logs,
		audit:    audit,
	}
	c.config.Store(cfg)
	routing := NewRoutingState()
	c.routing.Store(&routing)
	inputs := InputCatalog{}
	c.inputs.Store(&inputs)

	c.debug("Config:", *cfg)
	if auditErr != nil {
		c.reportError(errors.Wrap(auditErr, ErrCodeAuditUnavailable, "audit trail disabled"))
	}

	switcher.SetListener(switcherEvents{c})

	c.loadMapping()
	c.loadPalette()

	if cfg.WatchFiles {
		c.startWatcher(cfg)
	}
	if cfg.AutoStart {
		_ = c.Start()
	}
	return c, nil
}

// On subscribes to an event kind and returns a function that cancels the
// subscription. Subscribing to log, debug or error first delivers whatever
// the diagnostic buffer retained for that category.
func (c *Copilot) On(kind EventKind, listener Listener) (cancel func()) {
	if listener == nil {
		return func() {}
	}
	if cat, ok := kind.logCategory(); ok {
		return c.logs.Subscribe(cat, func(ev LogEvent) {
			listener(Event{Kind: kind, Time: ev.Timestamp, Args: ev.Args})
		})
	}
	return c.events.subscribe(kind, listener)
}

// LogBuffer exposes the diagnostic buffer.
func (c *Copilot) LogBuffer() *LogBuffer {
	return c.logs
}

// Audit returns the audit logger in use. It is never nil.
func (c *Copilot) Audit() *AuditLogger {
	return c.audit
}

func (c *Copilot) log(args ...interface{}) {
	c.logs.Record(CategoryLog, args...)
}

func (c *Copilot) debug(args ...interface{}) {
	c.logs.Record(CategoryDebug, args...)
}

func (c *Copilot) reportError(err error) {
	if err != nil {
		c.logs.Record(CategoryError, err)
	}
}

// Lifecycle control

// Start connects to the switcher. It returns once the connection has been
// requested; the engine becomes RUNNING when the client reports connected.
// Calling Start while starting or running only logs.
func (c *Copilot) Start() error {
	c.debug("Starting module.")
	if !c.lifecycle.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		c.log("Module already started.")
		return nil
	}

	address := c.Config().Address
	c.log("Connecting to switcher at " + address)
	c.audit.LogLifecycle("start", map[string]interface{}{"address": address})

	if err := c.switcher.Connect(address); err != nil {
		c.lifecycle.Store(int32(StateStopped))
		wrapped := errors.Wrap(err, ErrCodeConnection, "failed to connect to switcher").
			WithContext("address", address)
		c.reportError(wrapped)
		return wrapped
	}
	return nil
}

// Stop disconnects from the switcher and emits stopped. Calling Stop while
// stopped only logs.
func (c *Copilot) Stop() error {
	previous := LifecycleState(c.lifecycle.Swap(int32(StateStopped)))
	if previous == StateStopped {
		c.log("Module already stopped.")
		return nil
	}

	c.log("Module stopped.")
	c.audit.LogLifecycle("stop", nil)

	var result error
	if err := c.switcher.Disconnect(); err != nil {
		result = errors.Wrap(err, ErrCodeConnection, "failed to disconnect from switcher")
		c.reportError(result)
	}
	c.events.emit(Event{Kind: EventStopped})
	return result
}

// Lifecycle returns the current lifecycle state.
func (c *Copilot) Lifecycle() LifecycleState {
	return LifecycleState(c.lifecycle.Load())
}

// IsRunning reports whether the engine is meant to be connected. A dropped
// connection does not clear it.
func (c *Copilot) IsRunning() bool {
	return c.Lifecycle() != StateStopped
}

// Uptime is the wall-clock time since the engine was built.
func (c *Copilot) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Close stops the engine, the file watcher and the audit trail.
func (c *Copilot) Close() error {
	var result error
	c.closeOnce.Do(func() {
		if c.IsRunning() {
			result = c.Stop()
		}
		if c.watcher != nil && c.watcher.IsRunning() {
			_ = c.watcher.Stop()
		}
		if err := c.audit.Close(); err != nil && result == nil {
			result = err
		}
	})
	return result
}

// Switcher notifications

// switcherEvents keeps the listener methods off the public API of Copilot.
type switcherEvents struct {
	c *Copilot
}

func (e switcherEvents) OnConnected()                                   { e.c.handleConnected() }
func (e switcherEvents) OnDisconnected()                                { e.c.handleDisconnected() }
func (e switcherEvents) OnStateChanged(state SwitcherState, p []string) { e.c.handleStateChanged(state, p) }
func (e switcherEvents) OnError(err error)                              { e.c.handleError(err) }

func (c *Copilot) handleConnected() {
	if !c.lifecycle.CompareAndSwap(int32(StateStarting), int32(StateRunning)) && c.Lifecycle() != StateRunning {
		c.debug("Ignoring connected notification while stopped.")
		return
	}

	state := c.switcher.State()
	c.storeInputs(state)
	c.routingMu.Lock()
	routing := DeriveRouting(state)
	c.routing.Store(&routing)
	c.routingMu.Unlock()

	c.log("Connected to switcher on " + c.Config().Address)
	c.log("Input Names:", c.Inputs())
	c.loadMapping()
	c.audit.LogLifecycle("connected", map[string]interface{}{"inputs": len(state.Inputs)})

	c.events.emit(Event{Kind: EventStarted})
	c.events.emit(Event{Kind: EventState, State: routing.Clone()})
}

func (c *Copilot) handleDisconnected() {
	c.log("Disconnected from switcher.")
	c.audit.LogLifecycle("disconnected", nil)
}

func (c *Copilot) handleError(err error) {
	c.reportError(errors.Wrap(err, ErrCodeConnection, "switcher client error"))
}

// handleStateChanged re-derives the routing state from the full snapshot,
// publishes the normalized changes and mirrors ME1 selections. Mirroring for
// one change record completes before the next record is looked at.
func (c *Copilot) handleStateChanged(state SwitcherState, paths []string) {
	c.routingMu.Lock()
	routing := DeriveRouting(state)
	c.routing.Store(&routing)
	changes := NormalizeChanges(state, routing, paths)
	c.routingMu.Unlock()

	for _, p := range paths {
		if strings.HasPrefix(p, "inputs") {
			c.storeInputs(state)
			break
		}
	}

	c.debug("What changed:", changes)
	c.events.emit(Event{Kind: EventStateChanged, Changes: changes})

	for _, change := range changes {
		switch change.Path {
		case string(BusME1Program):
			c.mirror.applyProgram(change.Value.(int))
		case string(BusME1Preview):
			c.mirror.applyPreview(change.Value.(int))
		case transitionPath:
			c.debug("Transition detected.")
		}
	}

	c.events.emit(Event{Kind: EventState, State: routing.Clone()})
}

func (c *Copilot) storeInputs(state SwitcherState) {
	catalog := make(InputCatalog, len(state.Inputs))
	for id, in := range state.Inputs {
		catalog[id] = in.LongName
	}
	c.inputs.Store(&catalog)
}

// Read operations

// Inputs returns the input catalog captured on connect.
func (c *Copilot) Inputs() InputCatalog {
	return c.inputs.Load().Clone()
}

// RefreshInputs re-reads the catalog from the switcher snapshot.
func (c *Copilot) RefreshInputs() InputCatalog {
	c.storeInputs(c.switcher.State())
	return c.Inputs()
}

// InputName returns the long name of an input.
func (c *Copilot) InputName(id int) (string, bool) {
	name, ok := (*c.inputs.Load())[id]
	return name, ok
}

// RoutingState returns the current input id of every bus.
func (c *Copilot) RoutingState() RoutingState {
	return c.routing.Load().Clone()
}

// RoutingStateNames returns the long name of the input on every bus. The
// entry is nil when the input is not in the catalog, so JSON encodes it as
// null.
func (c *Copilot) RoutingStateNames() map[Bus]*string {
	routing := *c.routing.Load()
	inputs := *c.inputs.Load()
	names := make(map[Bus]*string, len(routing))
	for bus, id := range routing {
		if name, ok := inputs[id]; ok {
			names[bus] = &name
		} else {
			names[bus] = nil
		}
	}
	return names
}

// CurrentState is the routing state as last published to observers.
func (c *Copilot) CurrentState() RoutingState {
	return c.RoutingState()
}

// Switcher commands

// ChangeProgramInput sets the program input of a mix-effect block (0 = ME1).
func (c *Copilot) ChangeProgramInput(input, me int) error {
	c.debug(fmt.Sprintf("Changing program input to %d on ME %d", input, me))
	return c.command("program", input, me, c.switcher.ChangeProgramInput)
}

// ChangePreviewInput sets the preview input of a mix-effect block (0 = ME1).
func (c *Copilot) ChangePreviewInput(input, me int) error {
	c.debug(fmt.Sprintf("Changing preview input to %d on ME %d", input, me))
	return c.command("preview", input, me, c.switcher.ChangePreviewInput)
}

// SetAuxSource routes input to an AUX bus (0 = AUX1) without palette sync.
func (c *Copilot) SetAuxSource(input, aux int) error {
	c.debug(fmt.Sprintf("Setting AUX %d to input %d", aux, input))
	return c.command("aux", input, aux, c.switcher.SetAuxSource)
}

// Cut performs a cut on a mix-effect block (0 = ME1).
func (c *Copilot) Cut(me int) error {
	c.debug(fmt.Sprintf("Cutting ME %d", me))
	return c.command("cut", me, me, func(_, bus int) error { return c.switcher.Cut(bus) })
}

func (c *Copilot) command(kind string, input, bus int, send func(input, bus int) error) error {
	ctx := map[string]interface{}{"input": input, "bus": bus}
	if err := send(input, bus); err != nil {
		wrapped := errors.Wrap(err, ErrCodeConnection, "switcher rejected "+kind+" command").
			WithContext("input", input).
			WithContext("bus", bus)
		c.reportError(wrapped)
		c.audit.LogCommandFailure(kind, ctx, err)
		return wrapped
	}
	c.audit.LogCommand(kind, "api", ctx)
	return nil
}

// SetAuxWithSync routes input to auxID ("AUX1".."AUX4") and to every unlocked
// AUX following it in the palette.
func (c *Copilot) SetAuxWithSync(auxID string, input int) error {
	return c.mirror.setAuxWithSync(auxID, input)
}

// Mapping operations

// Mapping returns a copy of the mapping table.
func (c *Copilot) Mapping() MappingTable {
	return c.mappings.Table()
}

// UpdateMapping replaces the entry for a source input and persists the table.
// A persistence failure is reported and returned but the new entry stays in
// effect.
func (c *Copilot) UpdateMapping(input string, entry MappingEntry) error {
	err := c.mappings.Update(input, entry)
	if IsCode(err, ErrCodeInvalidRequest) {
		c.log("Invalid mapping update request.")
		return err
	}

	c.log(fmt.Sprintf("Updated mapping for input %s:", strings.TrimSpace(input)), entry)
	if err != nil {
		c.reportError(err)
	} else {
		c.log("Mapping file saved successfully.")
	}
	c.events.emit(Event{Kind: EventMappingChanged, Mapping: c.mappings.Table()})
	return err
}

// DeleteMapping removes the entry for a source input. Deleting an input that
// has no entry returns ErrCodeMappingNotFound and changes nothing.
func (c *Copilot) DeleteMapping(input string) error {
	err := c.mappings.Delete(input)
	if IsCode(err, ErrCodeMappingNotFound) {
		c.log(fmt.Sprintf("Mapping for input %s does not exist.", input))
		return err
	}

	c.log(fmt.Sprintf("Deleted mapping for input %s", input))
	if err != nil {
		c.reportError(err)
	} else {
		c.log("Mapping file saved successfully.")
	}
	c.events.emit(Event{Kind: EventMappingChanged, Mapping: c.mappings.Table()})
	return err
}

func (c *Copilot) loadMapping() {
	table, err := c.mappings.Load()
	switch {
	case err == nil:
		c.log("Mapping file loaded:", table)
	case IsCode(err, ErrCodeMappingMissing) && c.mappings.Len() > 0:
		c.log("Mapping file not found, keeping the current mapping table: " + c.mappings.Path())
	case IsCode(err, ErrCodeMappingMissing):
		c.log("Mapping file not found, starting with an empty mapping table: " + c.mappings.Path())
	default:
		c.reportError(err)
	}
}

// Palette operations

// AuxPalettes returns a copy of the AUX palette.
func (c *Copilot) AuxPalettes() AuxPalette {
	return c.palettes.Palette()
}

// UpdateAuxPalettes replaces the AUX palette and persists it.
func (c *Copilot) UpdateAuxPalettes(palette AuxPalette) error {
	err := c.palettes.Replace(palette)
	c.log("AUX palettes updated.")
	if err != nil {
		c.reportError(err)
	}
	c.events.emit(Event{Kind: EventPaletteChanged, Palette: c.palettes.Palette()})
	return err
}

func (c *Copilot) loadPalette() {
	palette, err := c.palettes.Load()
	if err != nil {
		c.reportError(err)
		return
	}
	c.debug("AUX palettes loaded:", palette)
}

// Configuration

// Config returns a copy of the active configuration.
func (c *Copilot) Config() Config {
	return *c.config.Load()
}

// configHandlers lists the keys SetConfig accepts at runtime. Each returns
// the line logged once the update is committed.
var configHandlers = map[string]func(cfg *Config, value string) string{
	"saveStateFile": func(cfg *Config, value string) string {
		cfg.SaveStateFile = value
		return "Save state file changed to: " + value
	},
	"mappingFile": func(cfg *Config, value string) string {
		cfg.MappingFile = value
		return "Mapping file changed to: " + value
	},
	"paletteFile": func(cfg *Config, value string) string {
		cfg.PaletteFile = value
		return "Palette file changed to: " + value
	},
}

// SetConfig applies runtime configuration updates. Only saveStateFile,
// mappingFile and paletteFile can change; other keys and invalid values are
// logged, skipped and reported in the returned ErrCodeConfigRejected error
// while the remaining keys still apply. Changing saveStateFile saves the state
// right away; changing a store file reloads it.
func (c *Copilot) SetConfig(updates map[string]interface{}) error {
	c.configMu.Lock()
	old := c.Config()
	next := old

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Lines are logged after the lock is released; listeners may call back in.
	var notes, rejected []string
	for _, key := range keys {
		handler, ok := configHandlers[key]
		if !ok {
			notes = append(notes, fmt.Sprintf("Cannot update '%s' dynamically.", key))
			rejected = append(rejected, key)
			continue
		}
		value, ok := updates[key].(string)
		if !ok || validateFilePath(value) != nil {
			notes = append(notes, fmt.Sprintf("Invalid value for '%s': %v", key, updates[key]))
			rejected = append(rejected, key)
			continue
		}
		notes = append(notes, handler(&next, value))
		c.audit.LogConfigChange(key, configValue(old, key), value)
	}
	c.config.Store(&next)
	c.configMu.Unlock()

	for _, note := range notes {
		c.log(note)
	}
	c.applyConfigChange(old, next)
	if next.SaveStateFile != old.SaveStateFile {
		_ = c.SaveState("")
	}

	c.events.emit(Event{Kind: EventConfigUpdated, Config: &next})
	if len(rejected) > 0 {
		return errors.New(ErrCodeConfigRejected, "configuration keys rejected: "+strings.Join(rejected, ", ")).
			WithContext("keys", rejected)
	}
	return nil
}

// ResetConfig restores the configuration the engine was built with.
func (c *Copilot) ResetConfig() {
	c.configMu.Lock()
	old := c.Config()
	reset := c.initial
	c.config.Store(&reset)
	c.configMu.Unlock()

	c.applyConfigChange(old, reset)
	c.audit.LogConfigChange("*", old, reset)
	c.log("Configuration reset to defaults.")
	c.events.emit(Event{Kind: EventConfigReset, Config: &reset})
}

// applyConfigChange rebinds the stores (and their watches) whose file changed.
func (c *Copilot) applyConfigChange(old, next Config) {
	if next.MappingFile != old.MappingFile {
		c.mappings.SetPath(next.MappingFile)
		c.rewatch(old.MappingFile, next.MappingFile, c.onMappingFileChanged)
		c.loadMapping()
		c.events.emit(Event{Kind: EventMappingChanged, Mapping: c.mappings.Table()})
	}
	if next.PaletteFile != old.PaletteFile {
		c.palettes.SetPath(next.PaletteFile)
		c.rewatch(old.PaletteFile, next.PaletteFile, c.onPaletteFileChanged)
		c.loadPalette()
		c.events.emit(Event{Kind: EventPaletteChanged, Palette: c.palettes.Palette()})
	}
}

func configValue(cfg Config, key string) string {
	switch key {
	case "saveStateFile":
		return cfg.SaveStateFile
	case "mappingFile":
		return cfg.MappingFile
	case "paletteFile":
		return cfg.PaletteFile
	}
	return ""
}

// File watching

func (c *Copilot) startWatcher(cfg *Config) {
	c.watcher = NewWatcher(WatcherConfig{
		PollInterval: cfg.WatchInterval,
		ErrorHandler: func(err error, path string) {
			c.reportError(err)
		},
	})
	if err := c.watcher.Watch(cfg.MappingFile, c.onMappingFileChanged); err != nil {
		c.reportError(err)
	}
	if err := c.watcher.Watch(cfg.PaletteFile, c.onPaletteFileChanged); err != nil {
		c.reportError(err)
	}
	if err := c.watcher.Start(); err != nil {
		c.reportError(err)
	}
}

func (c *Copilot) rewatch(oldPath, newPath string, callback UpdateCallback) {
	if c.watcher == nil {
		return
	}
	_ = c.watcher.Unwatch(oldPath)
	if err := c.watcher.Watch(newPath, callback); err != nil {
		c.reportError(err)
	}
}

func (c *Copilot) onMappingFileChanged(event ChangeEvent) {
	if event.IsDelete {
		c.log("Mapping file removed, keeping the current table: " + filepath.Base(event.Path))
		return
	}
	changed, err := c.mappings.Reload()
	if err != nil {
		c.reportError(err)
		return
	}
	if changed {
		c.log("Mapping file reloaded:", c.mappings.Table())
		c.events.emit(Event{Kind: EventMappingChanged, Mapping: c.mappings.Table()})
	}
}

func (c *Copilot) onPaletteFileChanged(event ChangeEvent) {
	if event.IsDelete {
		return
	}
	changed, err := c.palettes.Reload()
	if err != nil {
		c.reportError(err)
		return
	}
	if changed {
		c.log("AUX palettes reloaded.")
		c.events.emit(Event{Kind: EventPaletteChanged, Palette: c.palettes.Palette()})
	}
}
