// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cdk

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Parser represents a single method for parsing a string field to a value.
type Parser interface {
	Parse(field string) (interface{}, error)
}

// IntParser is a parser for integer types.
type IntParser struct{}

// FloatParser is a parser for floating point types.
type FloatParser struct{}

// StringParser is a parser for text types. It trims surrounding
// whitespace; grammars deliver fields unstripped and the trim happens
// here, at typing time.
type StringParser struct{}

// BoolParser is a parser for boolean types.
type BoolParser struct{}

// TimeParser is a parser for timestamps.
type TimeParser struct {
	Layout string
}

// Parse parses an integer string to an int64 value.
func (p IntParser) Parse(field string) (interface{}, error) {
	return strconv.ParseInt(strings.TrimSpace(field), 10, 64)
}

// Parse parses a float string to a float64 value.
func (p FloatParser) Parse(field string) (interface{}, error) {
	return strconv.ParseFloat(strings.TrimSpace(field), 64)
}

// Parse trims and returns the string.
func (p StringParser) Parse(field string) (interface{}, error) {
	return strings.TrimSpace(field), nil
}

// Parse parses a boolean string to a bool value.
func (p BoolParser) Parse(field string) (interface{}, error) {
	return strconv.ParseBool(strings.TrimSpace(field))
}

// Parse parses a timestamp string to a time.Time value.
func (p TimeParser) Parse(field string) (interface{}, error) {
	return time.Parse(p.Layout, strings.TrimSpace(field))
}

var typeParsers = map[string]Parser{
	"smallint":  IntParser{},
	"integer":   IntParser{},
	"bigint":    IntParser{},
	"real":      FloatParser{},
	"double":    FloatParser{},
	"text":      StringParser{},
	"char":      StringParser{},
	"unicode":   StringParser{},
	"boolean":   BoolParser{},
	"date":      TimeParser{Layout: "2006-01-02"},
	"timestamp": TimeParser{Layout: "2006-01-02T15:04:05"},
}

// ParserForType returns the default parser for a declared column type.
// Unknown types are a configuration error, caught when the mapping
// program is compiled, never at row time.
func ParserForType(typ string) (Parser, error) {
	p, ok := typeParsers[typ]
	if !ok {
		return nil, errors.Errorf("no default parser for type %q", typ)
	}
	return p, nil
}
