package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lcfetch/pkg/catalog"
	"lcfetch/pkg/config"
	"lcfetch/pkg/download"
	"lcfetch/pkg/features"
	"lcfetch/pkg/ids"
	"lcfetch/pkg/impute"
	"lcfetch/pkg/logger"
	"lcfetch/pkg/storage"
)

var (
	// Fetch command flags
	fieldNumber   int
	ccdRangeFlag  string
	quadRangeFlag string
	limitPerQuery int
	maxSources    int
	catalogName   string
	wholeField    bool
	startIndex    int
	endIndex      int
	restart       bool
	writeResults  bool
	writeCSV      bool
	columns       []string
	suffix        string
	imputeMissing bool
	selfImpute    bool
	measureTime   bool
	sourceIDsFile string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download features for all sources in a field",
	Long: `Download precomputed light-curve features for every source in a
field, one CCD/quadrant region at a time.

Each region's identifier list is read from the ids directory, split into
chunks of at most --max-sources identifiers, and each chunk is fetched with
paged queries of at most --limit-per-query identifiers. With --write-results
every chunk is persisted as its own parquet segment; an interrupted run can
simply be re-run and picks up after the last complete segment.`,
	Example: `  # Download all of field 291, one segment per 100k sources
  lcfetch fetch --field 291 --write-results

  # One CCD/quadrant cell with verbose paging
  lcfetch fetch --field 291 --ccd-range 1 --quad-range 3 --write-results -v

  # Whole-field identifier list, custom catalog release
  lcfetch fetch --field 296 --whole-field --catalog ZTF_source_features_DR16

  # Only two columns, small test slice
  lcfetch fetch --field 291 --columns period,significance --start 0 --end 1000

  # Ignore existing segments and start over
  lcfetch fetch --field 291 --restart --write-results`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFetch(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&fieldNumber, "field", 291, "field number to process")
	fetchCmd.Flags().StringVar(&ccdRangeFlag, "ccd-range", "1-16", "CCDs to process, single value or inclusive range")
	fetchCmd.Flags().StringVar(&quadRangeFlag, "quad-range", "1-4", "quadrants to process, single value or inclusive range")
	fetchCmd.Flags().IntVar(&limitPerQuery, "limit-per-query", 1000, "max identifiers per catalog query page")
	fetchCmd.Flags().IntVar(&maxSources, "max-sources", 100000, "max identifiers per output segment")
	fetchCmd.Flags().StringVar(&catalogName, "catalog", "", "catalog collection to query (default from config)")
	fetchCmd.Flags().BoolVar(&wholeField, "whole-field", false, "use the single whole-field identifier list instead of per-quadrant lists")
	fetchCmd.Flags().IntVar(&startIndex, "start", 0, "skip identifiers before this index")
	fetchCmd.Flags().IntVar(&endIndex, "end", 0, "stop at this index (0 means end of list)")
	fetchCmd.Flags().BoolVar(&restart, "restart", false, "ignore existing segments and fetch everything again")
	fetchCmd.Flags().BoolVar(&writeResults, "write-results", false, "persist each chunk as a parquet segment")
	fetchCmd.Flags().BoolVar(&writeCSV, "write-csv", false, "also write a CSV duplicate of each segment")
	fetchCmd.Flags().StringSliceVar(&columns, "columns", nil, "restrict the projection to these feature columns")
	fetchCmd.Flags().StringVar(&suffix, "suffix", "", "extra filename suffix for output segments")
	fetchCmd.Flags().BoolVar(&imputeMissing, "impute-missing-features", false, "fill missing feature values")
	fetchCmd.Flags().BoolVar(&selfImpute, "self-impute", true, "derive fill values from the fetched rows themselves; --self-impute=false prefers the configured reference values")
	fetchCmd.Flags().BoolVar(&measureTime, "time", false, "report identifier file load times")
	fetchCmd.Flags().StringVar(&sourceIDsFile, "source-ids-file", "", "explicit identifier file, bypassing region lookup")
}

func runFetch(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "info" {
		cfg.Logging.Level = logLevel
	}

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()
	log.WithField("version", version).Info("lcfetch starting")

	ccdRange, err := ids.ParseRange(ccdRangeFlag)
	if err != nil {
		log.WithError(err).Fatal("invalid --ccd-range")
	}
	quadRange, err := ids.ParseRange(quadRangeFlag)
	if err != nil {
		log.WithError(err).Fatal("invalid --quad-range")
	}

	if catalogName == "" {
		catalogName = cfg.Catalog.FeaturesCollection
	}

	// Catalog connection
	set, err := catalog.NewSet(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to catalog instances")
	}
	log.WithField("instances", strings.Join(set.Instances(), ",")).Info("catalog instances connected")

	// Fetch pipeline
	imputer := impute.New(cfg.Features.ImputeStrategies(), cfg.Features.ReferenceValues(), log)
	fetcher := features.NewFetcher(set, &cfg.Features, imputer, log)

	storageManager, err := storage.NewManager(cfg.Paths.FeaturesDirectory, log)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare features directory")
	}

	downloader := download.New(fetcher, storageManager, cfg.Features.DTypes(), log)
	loader := ids.NewLoader(cfg.Paths.IDsDirectory, measureTime, log)

	projection := features.ProjectionFromColumns(columns)

	ctx := context.Background()

	regions := ids.Regions(fieldNumber, ccdRange, quadRange, wholeField || sourceIDsFile != "")
	for _, region := range regions {
		var idList []int64
		if sourceIDsFile != "" {
			idList, err = loader.LoadFile(sourceIDsFile)
		} else {
			idList, err = loader.Load(region)
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.WarnWithFields("no identifier file for region, skipping", map[string]interface{}{
					"region": region.Key(),
				})
				continue
			}
			log.WithError(err).WithField("region", region.Key()).Fatal("failed to load identifiers")
		}

		idList = ids.Slice(idList, startIndex, endIndex)
		log.InfoWithFields("processing region", map[string]interface{}{
			"region":  region.Key(),
			"sources": len(idList),
			"catalog": catalogName,
		})

		result, err := downloader.Run(ctx, download.Job{
			Region:        region,
			IDs:           idList,
			Catalog:       catalogName,
			PageSize:      limitPerQuery,
			ChunkSize:     maxSources,
			Projection:    projection,
			Suffix:        suffix,
			Restart:       restart,
			WriteResults:  writeResults,
			WriteCSV:      writeCSV,
			ImputeMissing: imputeMissing,
			SelfImpute:    selfImpute,
			Verbose:       verbose,
		})
		if err != nil {
			log.WithError(err).WithField("region", region.Key()).Fatal("download failed")
		}

		log.InfoWithFields("region complete", map[string]interface{}{
			"region":   region.Key(),
			"fetched":  result.Fetched,
			"segments": result.Segments,
		})
	}

	log.Info("all regions complete")
}
