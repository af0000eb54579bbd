package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/chainfilter/internal/event"
)

// DefaultWarning is sent by "then warn" when no text is given.
const DefaultWarning = "Warned by the filter!"

// Action is a compiled "then" statement.
type Action struct {
	Name string
	Arg  string
	run  func(st *event.State, pattern *regexp.Regexp)
}

func (a Action) String() string {
	if a.Arg == "" {
		return a.Name
	}
	return a.Name + " " + a.Arg
}

// actionBuilders maps an action name to its constructor.
// Builders validate the argument and return the closure executed on match.
var actionBuilders = map[string]func(arg string) (func(*event.State, *regexp.Regexp), error){
	"deny": func(string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, _ *regexp.Regexp) { st.Cancel = true }, nil
	},
	"abort": func(string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, _ *regexp.Regexp) { st.Stop = true }, nil
	},
	"log": func(string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, _ *regexp.Regexp) { st.Log = true }, nil
	},
	"replace": func(arg string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, p *regexp.Regexp) {
			st.Message = event.NewMessage(p.ReplaceAllLiteralString(st.Message.Plain(), arg))
		}, nil
	},
	"rewrite": func(arg string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, p *regexp.Regexp) {
			st.Message = event.NewMessage(p.ReplaceAllLiteralString(st.Message.Colored(), arg))
		}, nil
	},
	"lower": func(string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, p *regexp.Regexp) {
			st.Message = event.NewMessage(p.ReplaceAllStringFunc(st.Message.Colored(), strings.ToLower))
		}, nil
	},
	"upper": func(string) (func(*event.State, *regexp.Regexp), error) {
		return func(st *event.State, p *regexp.Regexp) {
			st.Message = event.NewMessage(p.ReplaceAllStringFunc(st.Message.Colored(), strings.ToUpper))
		}, nil
	},
	"warn": func(arg string) (func(*event.State, *regexp.Regexp), error) {
		msg := arg
		if msg == "" {
			msg = DefaultWarning
		}
		return func(st *event.State, _ *regexp.Regexp) { st.Respond(msg) }, nil
	},
	"respond": func(arg string) (func(*event.State, *regexp.Regexp), error) {
		if arg == "" {
			return nil, fmt.Errorf("respond: %w: message", ErrMissingArgument)
		}
		return func(st *event.State, _ *regexp.Regexp) { st.Respond(arg) }, nil
	},
}

func parseAction(data string) (Action, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(data), " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)
	if name == "" {
		return Action{}, fmt.Errorf("then: %w: action name", ErrMissingArgument)
	}

	build, ok := actionBuilders[name]
	if !ok {
		return Action{}, fmt.Errorf("then %s: %w", name, ErrUnknownAction)
	}
	run, err := build(arg)
	if err != nil {
		return Action{}, err
	}
	return Action{Name: name, Arg: arg, run: run}, nil
}
