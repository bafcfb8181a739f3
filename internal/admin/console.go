// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

package admin

import (
	"bufio"
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/kestreldb/reqtrace/internal/logging"
)

// Console is the TCP admin console, one command line per input line.
// Runs as a supervised service.
type Console struct {
	addr string
	proc *Processor
	log  zerolog.Logger
}

func NewConsole(addr string, proc *Processor) *Console {
	return &Console{
		addr: addr,
		proc: proc,
		log:  logging.Component("admin-console"),
	}
}

func (c *Console) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	c.log.Info().Str("addr", ln.Addr().String()).Msg("admin console listening")
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go c.handle(ctx, conn)
	}
}

func (c *Console) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Text()
		if line == "quit" || line == "exit" {
			return
		}
		c.proc.Execute(conn, line)
	}
}

func (c *Console) String() string { return "admin-console" }
