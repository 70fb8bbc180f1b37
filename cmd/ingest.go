package cmd

import (
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/heliodc/cdk/ingest"
)

// IngestMain is wrapped by NewIngestCommand and only exported for testing
// purposes.
var IngestMain *ingest.Main

// NewIngestCommand returns a new cobra command wrapping IngestMain.
func NewIngestCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	IngestMain = ingest.NewMain()
	ingestCommand := &cobra.Command{
		Use:   "ingest",
		Short: "ingest - run sources through a descriptor into a bolt store",
		Long: `Loads the ingest descriptor, opens each source with the
configured grammar, maps every record with the rowmaker, and writes the
finished rows to an embedded bolt database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err = IngestMain.Run()
			if err != nil {
				return err
			}
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := ingestCommand.Flags()
	err = commandeer.Flags(flags, IngestMain)
	if err != nil {
		panic(err)
	}
	return ingestCommand
}

func init() {
	subcommandFns["ingest"] = NewIngestCommand
}
