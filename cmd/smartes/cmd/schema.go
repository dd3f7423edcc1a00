package cmd

import (
	"context"
	"io"
	"time"

	"github.com/oneconcern/smartes/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// schemaDoc is the printed form of the schema of a revision
type schemaDoc struct {
	Reference string       `yaml:"reference"`
	Revision  string       `yaml:"revision"`
	Time      time.Time    `yaml:"time"`
	Revisions int          `yaml:"revisions"`
	Computed  int          `yaml:"computed"`
	Schema    model.Schema `yaml:"schema"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema <branch|tag|hash>",
	Short: "Print the schema of a reference",
	Long: `Replay the history of a reference and print the version and the dependencies
of every file reachable from the entry module, as YAML.

Schemas computed along the way are persisted in the cache, just like when serving.
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSchema(cmd.Context(), config, args[0], cmd.OutOrStdout()); err != nil {
			wrapFatalln("failed to compute schema", err)
		}
	},
}

func runSchema(ctx context.Context, cfg *Config, treeish string, out io.Writer) error {
	l, err := cfg.logger()
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	unlock, err := cfg.lockCache()
	if err != nil {
		return err
	}
	defer unlock()

	svc, _, err := cfg.newService(ctx, l, nil)
	if err != nil {
		return err
	}
	r, err := svc.Replay(ctx, treeish)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(schemaDoc{
		Reference: treeish,
		Revision:  r.Revision.ID,
		Time:      r.Revision.Time,
		Revisions: r.Revisions,
		Computed:  r.Computed,
		Schema:    r.Schema,
	})
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
