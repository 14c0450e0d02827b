package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwcapital/COT-Monitor/api"
	"github.com/mwcapital/COT-Monitor/internal/analysis/cot"
	"github.com/mwcapital/COT-Monitor/internal/config"
	"github.com/mwcapital/COT-Monitor/internal/datasource"
	"github.com/mwcapital/COT-Monitor/internal/instruments"
	"github.com/mwcapital/COT-Monitor/pkg/models"
	"github.com/mwcapital/COT-Monitor/pkg/utils"
)

// Build-time variables, set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cotmonitor",
	Short: "Commitments of Traders positioning monitor",
	Long: `cotmonitor fetches CFTC Commitments of Traders data, derives
net-positioning metrics (weekly changes, rolling percentiles) and serves
them over a REST/WebSocket API or prints them at the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		var err error
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(instrumentsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cotmonitor %s (commit %s, built %s)\n", version, commit, date)
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and data-source status",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("═══════════════════════════════════════════")
		fmt.Println("  COT Monitor Status")
		fmt.Println("═══════════════════════════════════════════")
		fmt.Printf("  Version:        %s\n", version)
		fmt.Printf("  Dataset:        %s\n", cfg.Nasdaq.Dataset)
		fmt.Printf("  API address:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("  Latest report:  %s\n", utils.FormatDate(utils.LatestReleasedReportDate(utils.NowEastern())))
		fmt.Println("───────────────────────────────────────────")
		fmt.Println("  API Keys:")
		for _, ks := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if ks.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", ks.Source, ks.Masked)
			}
			fmt.Printf("  %-25s %s\n", ks.Name+":", status)
		}
		fmt.Println("═══════════════════════════════════════════")
	},
}

// --- instruments ---

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "Manage the tracked instrument list",
}

var instrumentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked instruments",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := instruments.Load(cfg.Instruments.Path)
		if err != nil {
			return err
		}
		list := store.List()
		fmt.Printf("%-28s %-10s %-12s %s\n", "NAME", "CODE", "ASSET CLASS", "EXCHANGE")
		for _, inst := range list {
			fmt.Printf("%-28s %-10s %-12s %s\n", inst.Name, inst.ContractCode, inst.AssetClass(), inst.Exchange)
		}
		return nil
	},
}

var instrumentsAddCmd = &cobra.Command{
	Use:   "add <name> <contract-code>",
	Short: "Add an instrument",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := instruments.Load(cfg.Instruments.Path)
		if err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")
		exchange, _ := cmd.Flags().GetString("exchange")
		inst := instruments.Instrument{
			Name:           args[0],
			ContractCode:   args[1],
			CommodityGroup: group,
			Exchange:       exchange,
		}
		if err := store.Add(inst); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", inst.Name, inst.ContractCode)
		return nil
	},
}

var instrumentsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an instrument",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := instruments.Load(cfg.Instruments.Path)
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

func init() {
	instrumentsAddCmd.Flags().String("group", "", "CFTC commodity group (drives asset class)")
	instrumentsAddCmd.Flags().String("exchange", "", "listing exchange")
	instrumentsCmd.AddCommand(instrumentsListCmd)
	instrumentsCmd.AddCommand(instrumentsAddCmd)
	instrumentsCmd.AddCommand(instrumentsRemoveCmd)
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <contract-code>",
	Short: "Fetch raw report data and print a per-category summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		typesFlag, _ := cmd.Flags().GetString("types")
		categories := splitColumns(typesFlag)
		for _, c := range categories {
			if err := cot.ValidateTypeCategory(c); err != nil {
				return err
			}
		}

		byCategory, err := datasource.FetchCategories(ctx, newSource(), args[0], categories)
		if err != nil {
			return err
		}
		if len(byCategory) == 0 {
			return fmt.Errorf("no data for contract %s", args[0])
		}

		for _, c := range categories {
			s, ok := byCategory[c]
			if !ok {
				fmt.Printf("%-12s no data\n", c)
				continue
			}
			fmt.Printf("%-12s %d records, %s to %s, %d columns\n",
				c, s.Len(), utils.FormatDate(s.StartDate()), utils.FormatDate(s.EndDate()), len(s.Columns))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("types", "F_L_ALL,F_L_ALL_CR,F_L_ALL_NT,F_L_ALL_OI", "type categories to fetch")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <contract-code>",
	Short: "Fetch a contract and print derived positioning metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		category, _ := cmd.Flags().GetString("type")
		if err := cot.ValidateTypeCategory(category); err != nil {
			return err
		}
		source := newSource()
		series, err := source.FetchSeries(ctx, args[0], category)
		if err != nil {
			return err
		}
		enriched, err := cot.DeriveMetrics(series)
		if err != nil {
			return err
		}

		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		if startStr != "" || endStr != "" {
			start := enriched.StartDate()
			end := enriched.EndDate()
			if startStr != "" {
				if start, err = utils.ParseDate(startStr); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}
			if endStr != "" {
				if end, err = utils.ParseDate(endStr); err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
			}
			if enriched, _, err = cot.Window(enriched, start, end); err != nil {
				return err
			}
		}

		csvPath, _ := cmd.Flags().GetString("csv")
		if csvPath != "" {
			f, err := os.Create(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := cot.ExportCSV(f, enriched, enriched.Columns); err != nil {
				return err
			}
			fmt.Printf("Wrote %d records to %s\n", enriched.Len(), csvPath)
			return nil
		}

		columnsFlag, _ := cmd.Flags().GetString("columns")
		columns := splitColumns(columnsFlag)
		if len(columns) == 0 {
			columns = presentNetColumns(enriched)
		}
		rows, _ := cmd.Flags().GetInt("rows")
		printSeries(enriched, columns, rows)

		if detail, _ := cmd.Flags().GetBool("stats"); detail {
			printStats(enriched, columns)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().String("type", "F_L_ALL", "report type category (e.g. F_L_ALL)")
	reportCmd.Flags().String("start", "", "window start date (YYYY-MM-DD)")
	reportCmd.Flags().String("end", "", "window end date (YYYY-MM-DD)")
	reportCmd.Flags().String("columns", "", "comma-separated columns to print")
	reportCmd.Flags().Int("rows", 12, "number of most recent rows to print")
	reportCmd.Flags().String("csv", "", "write full series to a CSV file instead of printing")
	reportCmd.Flags().Bool("stats", false, "print latest per-column change and percentile stats")
}

func splitColumns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func presentNetColumns(es *models.EnrichedSeries) []string {
	var out []string
	for _, m := range cot.Categories(es.Schema) {
		if es.HasColumn(m.NetColumn) {
			out = append(out, m.NetColumn)
		}
	}
	if len(out) == 0 {
		out = []string{"open_interest"}
	}
	return out
}

func printSeries(es *models.EnrichedSeries, columns []string, rows int) {
	obs := es.Observations
	if rows > 0 && len(obs) > rows {
		obs = obs[len(obs)-rows:]
	}
	fmt.Printf("%-12s", "DATE")
	for _, col := range columns {
		fmt.Printf(" %20s", truncateHeader(col))
	}
	fmt.Println()
	for _, o := range obs {
		fmt.Printf("%-12s", utils.FormatDate(o.Date))
		for _, col := range columns {
			if v, ok := o.Value(col); ok {
				fmt.Printf(" %20s", formatCell(v))
			} else {
				fmt.Printf(" %20s", "N/A")
			}
		}
		fmt.Println()
	}
}

// printStats prints the latest defined annotation for each column.
func printStats(es *models.EnrichedSeries, columns []string) {
	anns := cot.BuildAnnotations(es, columns)
	if len(anns) == 0 {
		fmt.Printf("\nStats suppressed: window exceeds %d periods\n", cot.AnnotationPeriodLimit)
		return
	}
	latest := map[string]models.Annotation{}
	for _, a := range anns {
		latest[a.Column] = a
	}
	fmt.Println()
	for _, col := range columns {
		a, ok := latest[col]
		if !ok {
			continue
		}
		fmt.Printf("%s as of %s: %s", a.Column, utils.FormatDate(a.Date), formatCell(a.Value))
		if a.Change.Valid {
			fmt.Printf(", change %+.0f", a.Change.Value)
			if a.ChangePct.Valid {
				fmt.Printf(" (%+.1f%%)", a.ChangePct.Value)
			}
		}
		if a.Pct1Yr.Valid {
			fmt.Printf(", 1y pct %.1f%%", a.Pct1Yr.Value)
		}
		if a.Pct5Yr.Valid {
			fmt.Printf(", 5y pct %.1f%%", a.Pct5Yr.Value)
		}
		fmt.Println()
	}
}

func truncateHeader(s string) string {
	if len(s) > 20 {
		return s[:20]
	}
	return s
}

func formatCell(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// --- releases ---

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Show recent CFTC press releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := datasource.NewReleases().Fetch(ctx, limit)
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Printf("%s  %s\n", it.Published.Format("2006-01-02"), it.Title)
			if it.URL != "" {
				fmt.Printf("            %s\n", it.URL)
			}
		}
		return nil
	},
}

func init() {
	releasesCmd.Flags().Int("limit", 10, "maximum number of releases to show")
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the upcoming report release schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		sched := datasource.NewSchedule()
		next, err := sched.NextRelease(ctx, utils.NowEastern())
		if err != nil {
			return err
		}
		fmt.Printf("Next release: %s (report dated %s)\n",
			utils.FormatDate(next.ReleaseDate), utils.FormatDate(next.ReportDate))

		all, _ := cmd.Flags().GetBool("all")
		if all {
			entries, err := sched.Fetch(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\n%-14s %s\n", "RELEASE", "REPORT DATE")
			for _, e := range entries {
				fmt.Printf("%-14s %s\n", utils.FormatDate(e.ReleaseDate), utils.FormatDate(e.ReportDate))
			}
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().Bool("all", false, "print the full published schedule")
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST/WebSocket API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := instruments.Load(cfg.Instruments.Path)
		if err != nil {
			return err
		}
		server := api.NewServer(cfg, store, newSource(), datasource.NewReleases())
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("cotmonitor %s listening on %s\n", version, addr)
		return server.ListenAndServe(addr)
	},
}

// newSource picks the richer Nasdaq datatable feed when a key is
// configured and falls back to the public Socrata endpoint otherwise.
func newSource() datasource.SeriesSource {
	ttl := time.Duration(cfg.Analysis.CacheTTL) * time.Second
	if cfg.Nasdaq.APIKey != "" {
		n := datasource.NewNasdaq(cfg.Nasdaq.APIKey, cfg.Nasdaq.Dataset)
		if ttl > 0 {
			n.SetCacheTTL(ttl)
		}
		if cfg.Analysis.ConcurrentFetches > 0 {
			n.Concurrency = cfg.Analysis.ConcurrentFetches
		}
		return n
	}
	s := datasource.NewSocrata(cfg.Socrata.AppToken)
	if ttl > 0 {
		s.SetCacheTTL(ttl)
	}
	return s
}
