// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package tags decodes bound-parameter records against a schema
// description and records one readable line per field in the request
// trace. All work is skipped when the context's capture mask is off.
package tags

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kestreldb/reqtrace/internal/reqtrace"
)

// FieldType enumerates the wire types a tag field can carry.
type FieldType int

const (
	TypeInt FieldType = iota
	TypeReal
	TypeDateTime   // second resolution
	TypeDateTimeUS // microsecond resolution
	TypeText
	TypeBlob
)

const (
	// datetime wire layout: 8-byte seconds, 4-byte fraction, 9-byte
	// NUL-padded timezone name
	datetimeSize = 8 + 4 + 9
	tzNameSize   = 9
)

// Field is one schema entry. Offset is derived when the schema is
// parsed.
type Field struct {
	Name   string
	Type   FieldType
	Len    int
	Offset int
}

// Schema is an ordered field layout for an opaque record.
type Schema struct {
	Fields []Field
	Size   int
}

// ParseSchema reads a textual schema description, one field per line:
// "<name> <type> [<len>]". Types are int, real, datetime, datetimeus,
// text and blob; text and blob require a length.
func ParseSchema(desc string) (*Schema, error) {
	s := &Schema{}
	offset := 0
	for ln, line := range strings.Split(desc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, fmt.Errorf("schema line %d: want name and type, got %q", ln+1, line)
		}
		f := Field{Name: parts[0], Offset: offset}
		switch parts[1] {
		case "int":
			f.Type, f.Len = TypeInt, 8
		case "real":
			f.Type, f.Len = TypeReal, 8
		case "datetime":
			f.Type, f.Len = TypeDateTime, datetimeSize
		case "datetimeus":
			f.Type, f.Len = TypeDateTimeUS, datetimeSize
		case "text", "blob":
			if len(parts) < 3 {
				return nil, fmt.Errorf("schema line %d: %s needs a length", ln+1, parts[1])
			}
			n, err := strconv.Atoi(parts[2])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("schema line %d: bad length %q", ln+1, parts[2])
			}
			if parts[1] == "text" {
				f.Type = TypeText
			} else {
				f.Type = TypeBlob
			}
			f.Len = n
		default:
			return nil, fmt.Errorf("schema line %d: unknown type %q", ln+1, parts[1])
		}
		offset += f.Len
		s.Fields = append(s.Fields, f)
	}
	s.Size = offset
	return s, nil
}

// DumpTags records one info line per field of the bound-parameter
// record. nullbits carries one bit per field, field order, LSB first
// within each byte. The whole call is a no-op when info capture is
// off.
func DumpTags(l *reqtrace.Logger, schema *Schema, buf, nullbits []byte) {
	if l == nil || l.Mask()&reqtrace.CatInfo == 0 {
		return
	}
	for i, f := range schema.Fields {
		if isNull(nullbits, i) {
			l.RecordF(reqtrace.CatInfo, "%s=NULL", f.Name)
			continue
		}
		if f.Offset+f.Len > len(buf) {
			l.RecordF(reqtrace.CatInfo, "%s=<record too short>", f.Name)
			continue
		}
		raw := buf[f.Offset : f.Offset+f.Len]
		switch f.Type {
		case TypeInt:
			l.RecordF(reqtrace.CatInfo, "%s=%d", f.Name, int64(binary.BigEndian.Uint64(raw)))
		case TypeReal:
			l.RecordF(reqtrace.CatInfo, "%s=%g", f.Name, math.Float64frombits(binary.BigEndian.Uint64(raw)))
		case TypeDateTime:
			sec, frac, tz := decodeDatetime(raw)
			t := time.Unix(sec, 0).UTC()
			l.RecordF(reqtrace.CatInfo, "%s=%s.%03d %s", f.Name, t.Format("2006-01-02T15:04:05"), frac, tz)
		case TypeDateTimeUS:
			sec, frac, tz := decodeDatetime(raw)
			t := time.Unix(sec, 0).UTC()
			l.RecordF(reqtrace.CatInfo, "%s=%s.%06d %s", f.Name, t.Format("2006-01-02T15:04:05"), frac, tz)
		case TypeText:
			l.RecordF(reqtrace.CatInfo, "%s='%s'", f.Name, trimNul(raw))
		case TypeBlob:
			l.RecordF(reqtrace.CatInfo, "%s=x'%x'", f.Name, raw)
		}
	}
}

func decodeDatetime(raw []byte) (sec int64, frac uint32, tz string) {
	sec = int64(binary.BigEndian.Uint64(raw[:8]))
	frac = binary.BigEndian.Uint32(raw[8:12])
	tz = trimNul(raw[12 : 12+tzNameSize])
	return sec, frac, tz
}

func trimNul(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func isNull(nullbits []byte, field int) bool {
	byteIdx := field / 8
	if byteIdx >= len(nullbits) {
		return false
	}
	return nullbits[byteIdx]&(1<<(field%8)) != 0
}
