package chain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/roach88/chainfilter/internal/rule"
)

// maxLineBytes bounds a single rule source line.
const maxLineBytes = 1 << 20

// lineKind classifies a source line for the compiler.
type lineKind int

const (
	lineSkip lineKind = iota
	lineTerminator
	lineStatement
)

// terminators open a new rule or include another chain. Each one finalizes
// the rule under construction.
var terminators = map[string]bool{
	"match":   true,
	"catch":   true,
	"replace": true,
	"rewrite": true,
	"include": true,
}

// classify trims a raw line and splits it into command and data on the
// first run of whitespace.
func classify(raw string) (kind lineKind, command, data string) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return lineSkip, "", ""
	}
	command, data = line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		command = line[:i]
		data = strings.TrimLeftFunc(line[i:], unicode.IsSpace)
	}
	if terminators[command] {
		return lineTerminator, command, data
	}
	return lineStatement, command, data
}

// compiler holds the state of one Parse call.
type compiler struct {
	chain   *Chain
	current *rule.Rule
	count   int
	line    int
}

// finalize appends the rule under construction if it is valid and clears
// the slot. Invalid rules are dropped with every statement attached to them.
func (cc *compiler) finalize() {
	if cc.current != nil && cc.chain.append(cc.current) {
		cc.count++
	}
	cc.current = nil
}

func (cc *compiler) include(name string) {
	c := cc.chain
	log := c.registry.log
	log.DebugMedium("including chain", "chain", c.name, "include", name)

	inc := c.registry.GetOrCreate(name)
	if inc.state == Loading {
		log.Warn("recursion loop detected", "chain", c.name, "include", name, "line", cc.line)
		return
	}
	if err := inc.load(); err != nil {
		log.Warn("failed to include chain", "chain", c.name, "include", name, "line", cc.line, "error", err)
		return
	}
	if c.append(inc) {
		cc.count += inc.RuleCount()
	}
}

func (cc *compiler) statement(command, data string) {
	if cc.current == nil {
		return
	}
	if err := cc.current.AddStatement(command, data); err != nil {
		cc.chain.registry.log.Warn("unable to add statement to rule",
			"chain", cc.chain.name,
			"line", cc.line,
			"statement", strings.TrimSpace(command+" "+data),
			"error", err)
	}
}

// Parse compiles rule text from r and appends the resulting entries to the
// chain. Callers that want a fresh chain call Reset first; LoadConfigFile
// does.
//
// Malformed rules and failed includes are logged and skipped. Parse fails
// with a *LoadError if reading r fails, in which case the chain is reset, or
// if the chain holds no entries afterwards. The chain is Ready on success and
// Unloaded on failure.
func (c *Chain) Parse(r io.Reader) error {
	c.state = Loading
	cc := &compiler{chain: c}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		cc.line++
		kind, command, data := classify(sc.Text())
		switch kind {
		case lineSkip:
			continue
		case lineTerminator:
			cc.finalize()
			if command == "include" {
				cc.include(data)
			} else {
				cc.current = rule.New(data)
			}
		case lineStatement:
			cc.statement(command, data)
		}
	}
	if err := sc.Err(); err != nil {
		c.Reset()
		if errors.Is(err, bufio.ErrTooLong) {
			return &LoadError{
				Code:  ErrCodeLineTooLong,
				Chain: c.name,
				Err:   fmt.Errorf("line %d exceeds %d bytes: %w", cc.line+1, maxLineBytes, err),
			}
		}
		return &LoadError{Code: ErrCodeReadFailed, Chain: c.name, Err: err}
	}
	cc.finalize()

	c.registry.log.Info("read rules", "chain", c.name, "rules", cc.count)

	if len(c.entries) == 0 {
		c.state = Unloaded
		return &LoadError{Code: ErrCodeEmptyChain, Chain: c.name, Err: ErrEmptyChain}
	}
	c.state = Ready
	return nil
}
