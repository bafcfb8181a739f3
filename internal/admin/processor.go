// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package admin implements the line-oriented command protocol that
// edits logging rules and thresholds at runtime, and the TCP console
// that carries it.
package admin

import (
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/hoststats"
	"github.com/kestreldb/reqtrace/internal/logging"
	"github.com/kestreldb/reqtrace/internal/longreq"
	"github.com/kestreldb/reqtrace/internal/opcode"
	"github.com/kestreldb/reqtrace/internal/output"
	"github.com/kestreldb/reqtrace/internal/reqtrace"
	"github.com/kestreldb/reqtrace/internal/rules"
)

var helpText = []string{
	"Request logging commands",
	"longrequest #           - set long request threshold in msec",
	"longsqlrequest #        - set long SQL request threshold in msec",
	"longreqfile <filename>  - set file to log long requests in",
	"diffstat #              - set diff stat threshold in sec",
	"truncate <0|1>          - set request truncation",
	"stat                    - status, print rules",
	"hosts                   - per-host traffic rates",
	"vbon / vbof             - verbose rule matching on/off",
	"[rulename] ...          - add/modify rules. The default rule is '0'.",
	"                          Valid rule names begin with a digit or '.'.",
	"   General commands:",
	"       delete           - delete named rule",
	"       go               - start logging with rule",
	"       stop             - stop logging with this rule",
	"   Specify criteria:",
	"       opcode [!]<name> - log requests with opcode [other than] name",
	"       rc [!]#          - log requests with rcode [other than] #",
	"       ms <range>       - log requests within a range of msecs",
	"       retries <range>  - log requests with that many retries",
	"       cost <range>     - log SQL requests with the given cost",
	"       rows <range>     - log SQL requests with the given row count",
	"       table <name>     - log requests that touch given table",
	"       stmt 'sql stmt'  - log requests where sql contains that text",
	"       vreplays <range> - log requests with given number of verify replays",
	"       sql              - log SQL opcode requests",
	"   Specify what to log:",
	"       trace            - log detailed trace",
	"       results          - log query results",
	"       cnt #            - log up to # before removing rule",
	"   Specify where to log:",
	"       file <filename>  - log to filename rather than stdout",
	"       stdout           - log to stdout",
	"<range> is #+ (at least), #- (at most) or #..# (inclusive)",
}

// Processor executes admin command lines against the live engine.
type Processor struct {
	eng   *rules.Engine
	det   *longreq.Detector
	diff  *longreq.DiffStat
	hosts *hoststats.Table
	reg   *output.Registry
	log   zerolog.Logger
}

func NewProcessor(eng *rules.Engine, det *longreq.Detector, diff *longreq.DiffStat,
	hosts *hoststats.Table, reg *output.Registry) *Processor {
	return &Processor{
		eng:   eng,
		det:   det,
		diff:  diff,
		hosts: hosts,
		reg:   reg,
		log:   logging.Component("admin"),
	}
}

// Execute runs one command line, reporting results and errors to w.
// Malformed input is reported and otherwise ignored; it never corrupts
// rule state.
func (p *Processor) Execute(w io.Writer, line string) {
	lex := newLexer(line)
	tok := lex.next()
	switch tok {
	case "longrequest":
		n, err := strconv.Atoi(lex.next())
		if err != nil {
			fmt.Fprintf(w, "expected threshold in msec\n")
			return
		}
		p.det.SetThresholdMS(n)
		fmt.Fprintf(w, "Long request threshold now %d msec\n", n)
	case "longsqlrequest":
		n, err := strconv.Atoi(lex.next())
		if err != nil {
			fmt.Fprintf(w, "expected threshold in msec\n")
			return
		}
		p.det.SetSQLThresholdMS(n)
		fmt.Fprintf(w, "Long SQL request threshold now %d msec\n", n)
	case "longreqfile":
		filename := lex.next()
		if filename == "" {
			fmt.Fprintf(w, "expected filename\n")
			return
		}
		p.det.SetFile(filename)
		fmt.Fprintf(w, "Long requests logged in %s\n", p.det.TargetName())
	case "diffstat":
		n, err := strconv.Atoi(lex.next())
		if err != nil {
			p.help(w)
			return
		}
		p.diff.SetThreshold(n)
		fmt.Fprintf(w, "diffstat threshold now %d s\n", n)
	case "truncate":
		n, err := strconv.Atoi(lex.next())
		if err != nil {
			p.help(w)
			return
		}
		p.eng.SetTruncate(n != 0)
		if n != 0 {
			fmt.Fprintf(w, "request truncation enabled\n")
		} else {
			fmt.Fprintf(w, "request truncation disabled\n")
		}
	case "stat":
		p.stat(w)
	case "hosts":
		p.hosts.Report(w, true)
	case "help":
		p.help(w)
	case "vbon":
		p.eng.SetVerbose(true)
	case "vbof":
		p.eng.SetVerbose(false)
	case "":
		fmt.Fprintf(w, "huh?\n")
	default:
		p.ruleCommand(w, lex, tok)
	}
}

// ruleCommand handles "[rulename] <subcommand> ...". A leading token
// starting with a digit or '.' names the rule; otherwise the default
// rule "0" is edited and the token is the first subcommand.
func (p *Processor) ruleCommand(w io.Writer, lex *lexer, tok string) {
	name := "0"
	if tok[0] >= '0' && tok[0] <= '9' || tok[0] == '.' {
		name = tok
		tok = lex.next()
	}

	deleted := false
	err := p.eng.Mutate(name, func(r *rules.Rule) error {
		for tok != "" {
			switch tok {
			case "go":
				r.Active = true
			case "stop":
				r.Active = false
			case "delete":
				deleted = true
				return nil
			case "cnt":
				n, err := strconv.Atoi(lex.next())
				if err != nil {
					fmt.Fprintf(w, "expected count\n")
				} else {
					r.Count = n
				}
			case "file":
				filename := lex.next()
				if filename == "" {
					fmt.Fprintf(w, "expected filename\n")
				} else if filename == output.DefaultName {
					p.swapToDefault(r)
				} else {
					p.swapTarget(r, p.reg.Acquire(filename))
				}
			case "stdout":
				p.swapToDefault(r)
			case "ms":
				if rng, err := rules.ParseRange(lex.next()); err != nil {
					fmt.Fprintf(w, "%v\n", err)
				} else {
					r.Duration = rng
				}
			case "retries":
				if rng, err := rules.ParseRange(lex.next()); err != nil {
					fmt.Fprintf(w, "%v\n", err)
				} else {
					r.Retries = rng
				}
			case "vreplays":
				if rng, err := rules.ParseRange(lex.next()); err != nil {
					fmt.Fprintf(w, "%v\n", err)
				} else {
					r.VReplays = rng
				}
			case "cost":
				if rng, err := rules.ParseFloatRange(lex.next()); err != nil {
					fmt.Fprintf(w, "%v\n", err)
				} else {
					r.Cost = rng
				}
			case "rows":
				if rng, err := rules.ParseRange(lex.next()); err != nil {
					fmt.Fprintf(w, "%v\n", err)
				} else {
					r.Rows = rng
				}
			case "sql":
				if err := r.Opcodes.Add(int(opcode.SQL), false); err != nil {
					fmt.Fprintf(w, "opcode list full\n")
				}
			case "stmt":
				r.Stmt = lex.quoted()
			case "opcode":
				arg := lex.next()
				inv := false
				if len(arg) > 0 && arg[0] == '!' {
					inv = true
					arg = arg[1:]
				}
				op, ok := opcode.Parse(arg)
				if !ok {
					fmt.Fprintf(w, "unknown opcode '%s'\n", arg)
				} else if err := r.Opcodes.Add(int(op), inv); err != nil {
					fmt.Fprintf(w, "opcode list full\n")
				}
			case "rc":
				arg := lex.next()
				inv := false
				if len(arg) > 0 && arg[0] == '!' {
					inv = true
					arg = arg[1:]
				}
				n, err := strconv.Atoi(arg)
				if err != nil {
					fmt.Fprintf(w, "expected rcode\n")
				} else if err := r.RCs.Add(n, inv); err != nil {
					fmt.Fprintf(w, "rcode list full\n")
				}
			case "table":
				r.Table = lex.next()
			case "trace":
				r.Mask |= reqtrace.CatTrace
			case "results":
				r.Mask |= reqtrace.CatResults
			default:
				fmt.Fprintf(w, "unknown rule command <%s>\n", tok)
			}
			tok = lex.next()
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return
	}
	if deleted {
		p.eng.Delete(name)
		fmt.Fprintf(w, "Rule deleted\n")
		return
	}
	for _, r := range p.eng.Rules() {
		if r.Name == name {
			r.Describe(w)
			break
		}
	}
}

// swapTarget repoints a rule's output. t arrives with its reference
// already counted (Acquire counts, even when it falls back to the
// default target); the old target's reference is dropped.
func (p *Processor) swapTarget(r *rules.Rule, t *output.Target) {
	old := r.Out
	r.Out = t
	p.reg.Release(old)
}

// swapToDefault retains the default target first since Acquire was
// never called for it.
func (p *Processor) swapToDefault(r *rules.Rule) {
	def := p.reg.Default()
	p.reg.Retain(def)
	p.swapTarget(r, def)
}

func (p *Processor) stat(w io.Writer) {
	fmt.Fprintf(w, "Long request threshold : %d msec (%d msec for SQL)\n",
		p.det.ThresholdMS(), p.det.SQLThresholdMS())
	fmt.Fprintf(w, "Long request log file  : %s\n", p.det.TargetName())
	fmt.Fprintf(w, "diffstat threshold     : %d s\n", p.diff.Threshold())
	if p.eng.Truncate() {
		fmt.Fprintf(w, "request truncation     : enabled\n")
	} else {
		fmt.Fprintf(w, "request truncation     : disabled\n")
	}
	norm, long := p.det.Stats()
	fmt.Fprintf(w, "requests finished      : %d normal, %d long\n", norm, long)
	p.eng.Describe(w)
	p.reg.Describe(w)
}

func (p *Processor) help(w io.Writer) {
	for _, line := range helpText {
		fmt.Fprintf(w, "%s\n", line)
	}
}
