// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package admin

import "strings"

// lexer walks one admin command line. Tokens are whitespace delimited;
// quoted reads a token that may be wrapped in single or double quotes
// with doubled-quote escaping, for SQL statement arguments.
type lexer struct {
	line string
	pos  int
}

func newLexer(line string) *lexer { return &lexer{line: line} }

func (l *lexer) skipSpace() {
	for l.pos < len(l.line) && (l.line[l.pos] == ' ' || l.line[l.pos] == '\t') {
		l.pos++
	}
}

// next returns the next whitespace-delimited token, "" at end of line.
func (l *lexer) next() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.line) && l.line[l.pos] != ' ' && l.line[l.pos] != '\t' {
		l.pos++
	}
	return l.line[start:l.pos]
}

// quoted returns the next token honoring quotes. Inside a quoted
// token a doubled quote character stands for one literal quote.
func (l *lexer) quoted() string {
	l.skipSpace()
	if l.pos >= len(l.line) {
		return ""
	}
	quote := l.line[l.pos]
	if quote != '\'' && quote != '"' {
		return l.next()
	}
	l.pos++
	var b strings.Builder
	for l.pos < len(l.line) {
		ch := l.line[l.pos]
		if ch == quote {
			if l.pos+1 < len(l.line) && l.line[l.pos+1] == quote {
				b.WriteByte(quote)
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		b.WriteByte(ch)
		l.pos++
	}
	return b.String()
}
