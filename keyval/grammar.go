// Package keyval implements a grammar for key-value text files
// ("OBJECT = M31" headers and friends). By default it yields the whole
// file as one record; in pair mode it yields one {key, value} record per
// pair.
package keyval

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"regexp"

	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
)

// Grammar describes how pairs are cut out of the text. Zero values mean
// "=" or ":" between key and value, newline between pairs, "#" comments.
type Grammar struct {
	// KVSeparators are the characters accepted between key and value.
	KVSeparators string
	// PairSeparators are the characters accepted between pairs.
	PairSeparators string
	// CommentPattern is removed from the input before splitting.
	CommentPattern *regexp.Regexp
	// YieldPairs yields one {key, value} record per pair instead of one
	// record per file.
	YieldPairs bool
	// MapKeys renames keys coming from the source, e.g. when they are no
	// valid identifiers.
	MapKeys map[string]string
	Opts    cdk.Options
}

var defaultComment = regexp.MustCompile(`(?m)#.*`)

// Open reads and splits the whole source.
func (g *Grammar) Open(ctx context.Context, src interface{}) (cdk.RowIterator, error) {
	rc, err := cdk.OpenSource(src, g.Opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	kvSeps := g.KVSeparators
	if kvSeps == "" {
		kvSeps = ":="
	}
	pairSeps := g.PairSeparators
	if pairSeps == "" {
		pairSeps = "\n"
	}
	comment := g.CommentPattern
	if comment == nil {
		comment = defaultComment
	}
	recSplitter, err := regexp.Compile("[" + regexp.QuoteMeta(pairSeps) + "]")
	if err != nil {
		return nil, errors.Wrap(err, "bad pair separators")
	}
	pairSplitter, err := regexp.Compile(fmt.Sprintf(`(?s)\s*([^%s]+?)\s*[%s]\s*(.*?)\s*$`,
		regexp.QuoteMeta(kvSeps), regexp.QuoteMeta(kvSeps)))
	if err != nil {
		return nil, errors.Wrap(err, "bad key-value separators")
	}

	data, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", rc.Name())
	}
	text := comment.ReplaceAllString(string(data), "")

	complete := make(cdk.Record)
	var pairs []cdk.Record
	for _, chunk := range recSplitter.Split(text, -1) {
		if isBlank(chunk) {
			continue
		}
		m := pairSplitter.FindStringSubmatch(chunk)
		if m == nil {
			return nil, &cdk.ParseError{
				Msg:      "not a key-value pair",
				Location: rc.Name(),
				Offender: chunk,
			}
		}
		key := g.rename(m[1])
		if g.YieldPairs {
			pairs = append(pairs, cdk.Record{"key": key, "value": m[2]})
		} else {
			complete[key] = m[2]
		}
	}

	it := &iterator{name: rc.Name()}
	if g.YieldPairs {
		it.records = pairs
	} else {
		it.records = []cdk.Record{complete}
		it.params = complete.Clone()
	}
	return cdk.Wrap(ctx, it, g.Opts), nil
}

func (g *Grammar) rename(key string) string {
	if mapped, ok := g.MapKeys[key]; ok {
		return mapped
	}
	return key
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\r' && r != '\n' {
			return false
		}
	}
	return true
}

type iterator struct {
	name    string
	records []cdk.Record
	params  cdk.Record
	index   int
}

func (it *iterator) Next() (cdk.Record, error) {
	if it.index >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.index]
	it.index++
	return rec, nil
}

func (it *iterator) Locator() string { return it.name }

func (it *iterator) Params() cdk.Record {
	if it.params == nil {
		return cdk.Record{}
	}
	return it.params.Clone()
}

func (it *iterator) Close() error { return nil }
