/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines the Dispatcher, a dispatch table from command name to handler built
once by NewDispatcher. Execute is the single error boundary around handlers: rejected
commands produce exactly one private line and never end the session.
*/
package chat

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/app/audit"
	"tcpchat/internal/app/dice"
	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/metrics"
	"tcpchat/internal/pkg/randx"
)

// Signal tells the session loop whether to keep going after a command.
type Signal int

const (
	Continue Signal = iota
	Terminate
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// HandlerFunc runs a command for u with the whitespace-split arguments.
type HandlerFunc func(u *User, args []string) (Signal, error)

// Command is one entry in the dispatch table.
type Command struct {
	Name  string
	Usage string
	Help  string
	Run   HandlerFunc
}

// defaultTaunts are the lines /harass picks from.
var defaultTaunts = []string{
	"I've seen better typing from a cat walking on a keyboard.",
	"Your dice rolls are the most interesting thing about you.",
	"Even the server lags when you talk.",
	"Is that your final nickname? Bold choice.",
	"You type like you're wearing oven mitts.",
	"I'd block you, but then who would I laugh at?",
}

// Dispatcher routes slash-commands to their handlers.
type Dispatcher struct {
	registry *Registry
	recorder audit.Recorder
	commands map[string]Command

	// rngMu guards rng, which is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand

	taunts []string

	logger zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRand sets the random source used for dice and taunts.
func WithRand(rng *rand.Rand) DispatcherOption {
	return func(d *Dispatcher) {
		d.rng = rng
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(r audit.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithTaunts replaces the /harass lines.
func WithTaunts(taunts []string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(taunts) > 0 {
			d.taunts = taunts
		}
	}
}

// NewDispatcher builds the dispatch table.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		recorder: audit.NopRecorder{},
		taunts:   defaultTaunts,
		logger:   logx.Component("dispatcher"),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.rng == nil {
		seed, err := randx.Seed()
		if err != nil {
			d.logger.Warn().Err(err).Msg("Falling back to time-based seed.")
			seed = time.Now().UnixNano()
		}
		d.rng = rand.New(rand.NewSource(seed))
	}

	d.commands = map[string]Command{
		"/nick": {
			Usage: "/nick <name>",
			Help:  "Changes your username.\nExample: /nick Cool Guy",
			Run:   d.nick,
		},
		"/exit": {
			Usage: "/exit",
			Help:  "Exits the chat.",
			Run:   d.exit,
		},
		"/roll": {
			Usage: "/roll <NdS> [NdS...]",
			Help:  "Rolls some dice!\nExample: /roll 1d20 2d4",
			Run:   d.roll,
		},
		"/block": {
			Usage: "/block <name>",
			Help:  "Hides room messages from a user.\nExample: /block Mean Guy",
			Run:   d.block,
		},
		"/unblock": {
			Usage: "/unblock <name>",
			Help:  "Unblocks a user you've blocked.\nExample: /unblock Not So Mean Guy",
			Run:   d.unblock,
		},
		"/help": {
			Usage: "/help [command]",
			Help:  "Lists the commands, or explains one.\nExample: /help dm",
			Run:   d.help,
		},
		"/dm": {
			Usage: "/dm <name> <message> or /dm <name with spaces> // <message>",
			Help:  "Directly messages another user.\nIf the name has spaces, separate it from the message with \"//\".\nExamples:\n/dm Johnny hi\n/dm Silly Goose // you're so silly!",
			Run:   d.dm,
		},
		"/harass": {
			Usage: "/harass <name>",
			Help:  "Whispers a random taunt to a user. Shame on you.",
			Run:   d.harass,
		},
		"/kick": {
			Usage: "/kick <name>",
			Help:  "Boots a user from the chat.\nOnly moderators can use it.\nExample: /kick Bad Guy",
			Run:   d.kick,
		},
		"/mod": {
			Usage: "/mod <name>",
			Help:  "Grants moderator privileges to another user.\nOnly moderators can use it.\nExample: /mod Good Guy Greg",
			Run:   d.mod,
		},
		"/userlist": {
			Usage: "/userlist",
			Help:  "Lists all users currently in the chat.",
			Run:   d.userlist,
		},
	}
	for name, cmd := range d.commands {
		cmd.Name = name
		d.commands[name] = cmd
	}

	return d
}

// Names returns every command name, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the command registered under name.
func (d *Dispatcher) Lookup(name string) (Command, bool) {
	cmd, ok := d.commands[name]
	return cmd, ok
}

// Execute runs the named command for u. Failures are reported privately to u and
// always yield Continue.
func (d *Dispatcher) Execute(u *User, name string, args []string) Signal {
	cmd, ok := d.commands[name]
	if !ok {
		metrics.CommandsTotal.WithLabelValues("unknown", "rejected").Inc()
		u.Notify(errs.NewError(errs.ErrUnknownCommand, name).Message)
		return Continue
	}

	sig, err := d.invoke(cmd, u, args)
	if err != nil {
		d.reject(cmd, u, err)
		return Continue
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
	return sig
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(cmd Command, u *User, args []string) (sig Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sig = Continue
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, rec)
		}
	}()

	return cmd.Run(u, args)
}

// reject sends the single private explanation for a failed command.
func (d *Dispatcher) reject(cmd Command, u *User, err error) {
	customErr, ok := errs.As(err)
	if !ok || customErr.Code == errs.ErrUnknown {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "error").Inc()
		d.logger.Error().Err(err).
			Str("command", cmd.Name).
			Str("session_id", u.ID).
			Msg("Command failed unexpectedly.")
		u.Notify(errs.NewError(errs.ErrUnknown).Message)
		return
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Name, string(errs.KindOf(customErr.Code))).Inc()
	d.logger.Debug().
		Str("command", cmd.Name).
		Str("session_id", u.ID).
		Int("code", customErr.Code).
		Msg("Command rejected.")
	u.Notify(customErr.Message)
}

func (d *Dispatcher) record(u *User, action audit.Action, target, detail string) {
	d.recorder.Record(audit.Event{
		SessionID: u.ID,
		Action:    action,
		Actor:     u.Nickname(),
		Target:    target,
		Detail:    detail,
		At:        time.Now(),
	})
}

// target resolves the nickname spelled by args.
func (d *Dispatcher) target(args []string, usage string) (*User, error) {
	name := strings.Join(args, " ")
	if name == "" {
		return nil, errs.NewError(errs.ErrInvalidArgs, usage)
	}

	target, ok := d.registry.Lookup(name)
	if !ok {
		return nil, errs.NewError(errs.ErrUserNotFound, name)
	}
	return target, nil
}

func (d *Dispatcher) nick(u *User, args []string) (Signal, error) {
	name := strings.Join(args, " ")

	oldName, err := d.registry.Rename(u, name)
	if err != nil {
		return Continue, err
	}

	newName := u.Nickname()
	if oldName == newName {
		u.Notify(fmt.Sprintf("You are already named %s.", newName))
		return Continue, nil
	}

	d.registry.BroadcastSystem(fmt.Sprintf("%s has changed name to %s.", oldName, newName))
	d.record(u, audit.ActionRename, newName, oldName)
	return Continue, nil
}

func (d *Dispatcher) exit(u *User, _ []string) (Signal, error) {
	if d.registry.Leave(u, fmt.Sprintf("%s has left the chat.", u.Nickname())) {
		d.record(u, audit.ActionExit, "", "")
	}
	return Terminate, nil
}

func (d *Dispatcher) roll(u *User, args []string) (Signal, error) {
	specs, err := dice.ParseSpecs(args)
	if err != nil {
		return Continue, errs.NewError(errs.ErrInvalidDice, dice.MaxCount, dice.MaxSides)
	}

	d.rngMu.Lock()
	result, err := dice.RollWithRng(d.rng, specs)
	d.rngMu.Unlock()
	if err != nil {
		return Continue, errs.NewError(errs.ErrInvalidDice, dice.MaxCount, dice.MaxSides)
	}

	specStrs := make([]string, len(specs))
	for i, spec := range specs {
		specStrs[i] = spec.String()
	}
	values := result.Values()
	valueStrs := make([]string, len(values))
	for i, v := range values {
		valueStrs[i] = strconv.Itoa(v)
	}

	d.registry.BroadcastSystem(fmt.Sprintf("%s just rolled %s and got: %s",
		u.Nickname(), strings.Join(specStrs, " "), strings.Join(valueStrs, " ")))
	return Continue, nil
}

func (d *Dispatcher) block(u *User, args []string) (Signal, error) {
	target, err := d.target(args, d.commands["/block"].Usage)
	if err != nil {
		return Continue, err
	}

	if err := d.registry.Block(u, target); err != nil {
		return Continue, err
	}

	d.registry.BroadcastSystem(fmt.Sprintf("%s has blocked %s.", u.Nickname(), target.Nickname()))
	d.record(u, audit.ActionBlock, target.Nickname(), "")
	return Continue, nil
}

func (d *Dispatcher) unblock(u *User, args []string) (Signal, error) {
	target, err := d.target(args, d.commands["/unblock"].Usage)
	if err != nil {
		return Continue, err
	}

	if err := d.registry.Unblock(u, target); err != nil {
		return Continue, err
	}

	d.registry.BroadcastSystem(fmt.Sprintf("%s has unblocked %s.", u.Nickname(), target.Nickname()))
	d.record(u, audit.ActionUnblock, target.Nickname(), "")
	return Continue, nil
}

func (d *Dispatcher) help(u *User, args []string) (Signal, error) {
	if len(args) == 0 {
		u.Notify("The commands are: " + strings.Join(d.Names(), ", "))
		u.Notify(`Type "/help {command name}" for help on a command.`)
		return Continue, nil
	}

	name := strings.Join(args, " ")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	cmd, ok := d.commands[name]
	if !ok {
		return Continue, errs.NewError(errs.ErrHelpNotFound, name)
	}

	u.Notify("Usage: " + cmd.Usage)
	for _, line := range strings.Split(cmd.Help, "\n") {
		u.Notify(line)
	}
	return Continue, nil
}

func (d *Dispatcher) dm(u *User, args []string) (Signal, error) {
	usage := d.commands["/dm"].Usage
	joined := strings.Join(args, " ")

	var name, message string
	if before, after, ok := strings.Cut(joined, "//"); ok {
		name, message = strings.TrimSpace(before), strings.TrimSpace(after)
	} else if len(args) > 0 {
		name, message = args[0], strings.Join(args[1:], " ")
	}

	if name == "" || message == "" {
		return Continue, errs.NewError(errs.ErrInvalidArgs, usage)
	}

	target, ok := d.registry.Lookup(name)
	if !ok {
		return Continue, errs.NewError(errs.ErrUserNotFound, name)
	}

	target.Whisper(u.Nickname(), message)
	return Continue, nil
}

func (d *Dispatcher) harass(u *User, args []string) (Signal, error) {
	target, err := d.target(args, d.commands["/harass"].Usage)
	if err != nil {
		return Continue, err
	}

	d.rngMu.Lock()
	taunt := d.taunts[d.rng.Intn(len(d.taunts))]
	d.rngMu.Unlock()

	target.Notify(fmt.Sprintf("%s whispers: %s", u.Nickname(), taunt))
	u.Notify(fmt.Sprintf("You whisper to %s: %s", target.Nickname(), taunt))
	return Continue, nil
}

func (d *Dispatcher) kick(u *User, args []string) (Signal, error) {
	if !u.IsModerator() {
		return Continue, errs.NewError(errs.ErrNotModerator)
	}

	target, err := d.target(args, d.commands["/kick"].Usage)
	if err != nil {
		return Continue, err
	}

	notice := fmt.Sprintf("%s has kicked %s from chat.", u.Nickname(), target.Nickname())
	if err := d.registry.Kick(target, notice); err != nil {
		return Continue, err
	}

	d.record(u, audit.ActionKick, target.Nickname(), "")
	return Continue, nil
}

func (d *Dispatcher) mod(u *User, args []string) (Signal, error) {
	if !u.IsModerator() {
		return Continue, errs.NewError(errs.ErrNotModerator)
	}

	target, err := d.target(args, d.commands["/mod"].Usage)
	if err != nil {
		return Continue, err
	}

	if err := d.registry.GrantModerator(target); err != nil {
		return Continue, err
	}

	d.registry.BroadcastSystem(fmt.Sprintf("%s has granted moderator privileges to %s.", u.Nickname(), target.Nickname()))
	d.record(u, audit.ActionModerator, target.Nickname(), "")
	return Continue, nil
}

func (d *Dispatcher) userlist(u *User, _ []string) (Signal, error) {
	u.Notify("Online users: " + strings.Join(d.registry.Nicknames(), ", "))
	return Continue, nil
}
