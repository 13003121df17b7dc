package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/category"
	"github.com/phynteny/phynteny-go/internal/duckdb"
	"github.com/phynteny/phynteny-go/internal/genetable"
	"github.com/phynteny/phynteny-go/internal/genome"
	"github.com/phynteny/phynteny-go/internal/pool"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build training pools from a gene table",
		Long: `Read a gene table, encode every gene with the PHROG annotation table,
orient genomes so the integrase leads, then write the full pool and the
dereplicated, filtered pool used for training.

Outputs:
  <prefix>_all_data.gob       every genome, oriented
  <prefix>_dereplicated.gob   unique category orders passing the filters`,
		Example: `  phynteny generate -i genes.tsv -p data
  phynteny generate -i genes.tsv.gz -a phrog_annot_v4.tsv -g 100 -c 3 --db results.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "input"); err != nil {
				return err
			}
			return runGenerate()
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "Gene table (tab-separated, optionally gzipped; '-' for stdin)")
	f.StringP("annotations", "a", "", "PHROG annotation table (default: downloaded table)")
	f.IntP("max-genes", "g", DefaultMaxGenes, "Drop genomes with more genes than this")
	f.IntP("min-categories", "c", 4, "Drop genomes with fewer distinct known categories than this")
	f.StringP("prefix", "p", "data", "Output file prefix")
	f.Bool("no-flip", false, "Keep genome orientation as given")
	f.Int("leading-window", genome.DefaultLeadingWindow, "Flip genomes whose first integrase is at or after this index")
	f.String("cache", "", "Directory caching the parsed gene table between runs")
	f.Bool("refresh-cache", false, "Discard the cached gene table and parse the input again")
	f.String("db", "", "DuckDB database receiving both pools")
	return cmd
}

func runGenerate() error {
	enc, annPath, err := loadEncoder()
	if err != nil {
		return err
	}
	logger.Info("loaded annotation table",
		zap.String("path", annPath),
		zap.Int("identifiers", enc.Len()),
		zap.Int("unmapped", enc.Unmapped()))

	input := viper.GetString("input")
	all, err := readGeneTable(input, annPath, enc)
	if err != nil {
		return err
	}
	logger.Info("read gene table", zap.String("path", input), zap.Int("genomes", len(all)))

	if !viper.GetBool("no-flip") {
		var flipped int
		all, flipped = genome.NormalizePool(all, viper.GetInt("leading-window"))
		logger.Info("oriented genomes", zap.Int("flipped", flipped))
	}

	out := pool.Outputs(viper.GetString("prefix"))
	if err := pool.Write(out.AllData(), all); err != nil {
		return err
	}

	derep, skips := genome.DedupAndFilter(all, genome.FilterOptions{
		MaxGenes:      viper.GetInt("max-genes"),
		MinCategories: viper.GetInt("min-categories"),
	})
	logSkips(skips)
	if err := pool.Write(out.Dereplicated(), derep); err != nil {
		return err
	}

	if dbPath := viper.GetString("db"); dbPath != "" {
		store, err := duckdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.WriteGenes("all_data", all); err != nil {
			return fmt.Errorf("export all data: %w", err)
		}
		if err := store.WriteGenes("dereplicated", derep); err != nil {
			return fmt.Errorf("export dereplicated pool: %w", err)
		}
	}

	logger.Info("training pools written",
		zap.String("all_data", out.AllData()),
		zap.String("dereplicated", out.Dereplicated()),
		zap.Int("genomes", len(all)),
		zap.Int("kept", len(derep)))
	return nil
}

// readGeneTable parses the gene table, going through the pool cache when
// --cache is set. Stdin is never cached.
func readGeneTable(input, annPath string, enc *category.Encoder) (genome.Pool, error) {
	cacheDir := viper.GetString("cache")
	if cacheDir == "" || input == "-" {
		return genetable.ReadPool(input, enc)
	}

	inFP, err := pool.StatFile(input)
	if err != nil {
		return nil, fmt.Errorf("stat gene table: %w", err)
	}
	annFP, err := pool.StatFile(annPath)
	if err != nil {
		return nil, fmt.Errorf("stat annotation table: %w", err)
	}

	c := pool.NewCache(cacheDir)
	if viper.GetBool("refresh-cache") {
		c.Clear()
	}
	if c.Valid(inFP, annFP) {
		p, err := c.Load()
		if err == nil {
			logger.Info("using cached gene table", zap.String("cache", cacheDir))
			return p, nil
		}
		logger.Warn("pool cache unreadable, rebuilding", zap.Error(err))
	}

	p, err := genetable.ReadPool(input, enc)
	if err != nil {
		return nil, err
	}
	if err := c.Write(p, inFP, annFP); err != nil {
		logger.Warn("could not write pool cache", zap.Error(err))
	}
	return p, nil
}

// logSkips reports every genome left out of a pool, then the count per reason.
func logSkips(skips []genome.Skip) {
	reasons := map[string]int{}
	for _, s := range skips {
		reasons[s.Reason]++
		logger.Warn("genome dropped", zap.String("genome", s.GenomeID), zap.String("reason", s.Reason))
	}
	for reason, n := range reasons {
		logger.Info("genomes dropped", zap.String("reason", reason), zap.Int("count", n))
	}
}
