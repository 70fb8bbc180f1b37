// Package ingest holds the top level ingest use case: load a descriptor,
// compile it, and run every source through the pipeline into a bolt
// store.
package ingest

import (
	"context"
	"log"
	"strings"

	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
	"github.com/heliodc/cdk/descriptor"
	"github.com/heliodc/cdk/s3"
)

// Main holds the flag-settable options for the ingest subcommand.
type Main struct {
	Descriptor   string   `help:"Path to the ingest descriptor file."`
	Sources      []string `help:"Source tokens: file paths or s3://bucket/prefix."`
	Store        string   `help:"Path of the bolt database to write rows into."`
	TranslateDir string   `help:"Directory for the key translation maps."`
	AWSRegion    string   `help:"AWS region for s3 sources."`
	RowLimit     int      `help:"Stop after this many rows (0 means no limit)."`
	BailOnError  bool     `help:"Abort the run on the first bad row instead of logging it."`
}

// NewMain returns a Main with the usual defaults.
func NewMain() *Main {
	return &Main{
		Store:        "cdk.bolt",
		TranslateDir: "cdk-translate",
		AWSRegion:    "us-east-1",
	}
}

// Run executes the ingest.
func (m *Main) Run() error {
	if m.Descriptor == "" {
		return errors.New("a descriptor is required")
	}
	if len(m.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	desc, err := descriptor.Load(m.Descriptor)
	if err != nil {
		return err
	}
	grammar, rowmaker, td, err := desc.Compile()
	if err != nil {
		return errors.Wrap(err, "compiling descriptor")
	}

	var boltOpts []cdk.BoltOption
	if kc := desc.Table.KeyColumn; kc != "" {
		translator, err := cdk.NewLevelTranslator(m.TranslateDir, td.Name)
		if err != nil {
			return errors.Wrap(err, "opening translator")
		}
		boltOpts = append(boltOpts, cdk.OptBoltKeyColumn(kc, translator))
	}
	store, err := cdk.NewBoltStore(m.Store, boltOpts...)
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Printf("closing store: %v", cerr)
		}
	}()

	ing := cdk.NewIngester(grammar, rowmaker, td.Name, store)
	ing.RowLimit = m.RowLimit
	ing.BailOnError = m.BailOnError

	ctx := context.Background()
	var total cdk.IngestResult
	for _, token := range m.Sources {
		res, err := m.runSource(ctx, ing, token)
		total.Produced += res.Produced
		total.Rejected += res.Rejected
		if err != nil {
			return errors.Wrapf(err, "source %s", token)
		}
	}
	log.Printf("ingest done: %d rows produced, %d rejected", total.Produced, total.Rejected)
	return nil
}

func (m *Main) runSource(ctx context.Context, ing *cdk.Ingester, token string) (cdk.IngestResult, error) {
	if !strings.HasPrefix(token, "s3://") {
		return ing.Run(ctx, token)
	}
	bucket, prefix, err := s3.ParseToken(token)
	if err != nil {
		return cdk.IngestResult{}, err
	}
	raw, err := s3.NewRawSource(m.AWSRegion, bucket, prefix)
	if err != nil {
		return cdk.IngestResult{}, errors.Wrap(err, "listing s3 source")
	}
	return ing.RunAll(ctx, raw)
}
