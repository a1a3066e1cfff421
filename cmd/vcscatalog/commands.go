package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marvil07/versioncontrol/internal/constraint"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/export"
	"github.com/marvil07/versioncontrol/internal/models"
	"github.com/marvil07/versioncontrol/internal/service"
	"github.com/marvil07/versioncontrol/internal/storage"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check the database connection and report catalog size",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE:  runRepos,
	}
	reposCmd.Flags().StringSlice("vcs", nil, "only repositories of these backends")
	reposCmd.Flags().Bool("json", false, "print JSON")

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "List operations matching the given filters, newest first",
		Args:  cobra.NoArgs,
		RunE:  runLog,
	}
	addFilterFlags(logCmd)
	logCmd.Flags().Int("limit", 50, "maximum number of operations, 0 for all")
	logCmd.Flags().Int("offset", 0, "number of operations to skip")
	logCmd.Flags().Bool("json", false, "print JSON")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise operations matching the given filters",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	addFilterFlags(statsCmd)
	statsCmd.Flags().StringSlice("group-by", nil, "group columns, e.g. committer,label_name")
	statsCmd.Flags().StringSlice("order-by", nil, "order columns, prefix with - for descending")
	statsCmd.Flags().Bool("json", false, "print JSON")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Follow the lineage of an item revision",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().Int64("repo", 0, "repository id")
	historyCmd.Flags().String("path", "", "item path")
	historyCmd.Flags().String("revision", "", "item revision")
	historyCmd.Flags().Int("limit", -1, "steps to follow in each direction, defaults to query.history_limit")
	historyCmd.MarkFlagRequired("repo")
	historyCmd.MarkFlagRequired("path")
	historyCmd.MarkFlagRequired("revision")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write compressed catalog archives to the configured storage path",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	exportCmd.Flags().Int64Slice("repo", nil, "repository ids, all repositories when omitted")

	rootCmd.AddCommand(migrateCmd, statusCmd, reposCmd, logCmd, statsCmd, historyCmd, exportCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Slice("repo", nil, "repository ids")
	cmd.Flags().StringSlice("vcs", nil, "backend names")
	cmd.Flags().StringSlice("kind", nil, "operation kinds (commit, branch, tag)")
	cmd.Flags().StringSlice("branch", nil, "branch names")
	cmd.Flags().StringSlice("tag", nil, "tag names")
	cmd.Flags().StringSlice("committer", nil, "committer usernames")
	cmd.Flags().StringSlice("path", nil, "item paths, matching the path and everything below it")
	cmd.Flags().StringSlice("revision", nil, "operation revisions")
	cmd.Flags().StringSlice("message", nil, "words the log message must contain")
	cmd.Flags().String("since", "", "only operations at or after this date (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().String("until", "", "only operations at or before this date (RFC 3339 or YYYY-MM-DD)")
}

var operationKinds = map[string]models.OperationKind{
	"commit": models.OperationCommit,
	"branch": models.OperationBranch,
	"tag":    models.OperationTag,
}

// filterSet maps the filter flags onto a constraint set. Only flags given on
// the command line become constraints, so an explicitly empty flag still
// matches nothing.
func filterSet(cmd *cobra.Command) (constraint.Set, error) {
	set := constraint.Set{}
	flags := cmd.Flags()
	if flags.Changed("repo") {
		ids, _ := flags.GetInt64Slice("repo")
		set[constraint.KeyRepoIDs] = ids
	}
	for flag, key := range map[string]string{
		"vcs":       constraint.KeyVCS,
		"branch":    constraint.KeyBranches,
		"tag":       constraint.KeyTags,
		"committer": constraint.KeyUsernames,
		"path":      constraint.KeyPaths,
		"revision":  constraint.KeyRevisions,
		"message":   constraint.KeyMessage,
	} {
		if flags.Changed(flag) {
			values, _ := flags.GetStringSlice(flag)
			set[key] = values
		}
	}
	if flags.Changed("kind") {
		names, _ := flags.GetStringSlice("kind")
		kinds := make([]int64, 0, len(names))
		for _, n := range names {
			k, ok := operationKinds[strings.ToLower(strings.TrimSpace(n))]
			if !ok {
				return nil, fmt.Errorf("unknown operation kind %q", n)
			}
			kinds = append(kinds, int64(k))
		}
		set[constraint.KeyTypes] = kinds
	}
	for flag, key := range map[string]string{"since": constraint.KeyDateLower, "until": constraint.KeyDateUpper} {
		v, _ := flags.GetString(flag)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		set[key] = t
	}
	return set, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrations complete", "driver", cfg.Database.Driver)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	stats, err := db.CatalogStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("catalog status: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "driver\t%s\n", cfg.Database.Driver)
	fmt.Fprintf(tw, "repositories\t%d\n", stats.Repositories)
	fmt.Fprintf(tw, "operations\t%d\n", stats.Operations)
	fmt.Fprintf(tw, "labels\t%d\n", stats.Labels)
	fmt.Fprintf(tw, "item revisions\t%d\n", stats.ItemRevisions)
	fmt.Fprintf(tw, "lineage edges\t%d\n", stats.LineageEdges)
	fmt.Fprintf(tw, "accounts\t%d\n", stats.Accounts)
	fmt.Fprintf(tw, "open connections\t%d\n", stats.Pool.OpenConnections)
	return tw.Flush()
}

func runRepos(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var rc service.RepositoryConstraints
	if cmd.Flags().Changed("vcs") {
		rc.VCS, _ = cmd.Flags().GetStringSlice("vcs")
	}
	repos, err := a.catalog.Repositories.List(cmd.Context(), rc)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), repos)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVCS\tROOT")
	for _, r := range repos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.VCS, r.Root)
	}
	return tw.Flush()
}

func runLog(cmd *cobra.Command, _ []string) error {
	set, err := filterSet(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	page := constraint.All()
	if limit > 0 {
		page = constraint.Range(offset, limit)
	} else if offset > 0 {
		return fmt.Errorf("--offset requires --limit")
	}

	ctx := cmd.Context()
	ops, err := a.catalog.Operations.Query(ctx, set, page)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if ops == nil {
			ops = []models.Operation{}
		}
		return writeJSON(cmd.OutOrStdout(), ops)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREPO\tKIND\tREVISION\tDATE\tCOMMITTER\tLABELS\tMESSAGE")
	for _, op := range ops {
		revision := op.Revision
		if repo, err := a.catalog.Repositories.Get(ctx, op.RepoID); err == nil {
			revision = a.catalog.Repositories.FormatRevision(repo, op.Revision, "short")
		}
		labels := make([]string, len(op.Labels))
		for i, l := range op.Labels {
			labels[i] = l.Name
		}
		message, _, _ := strings.Cut(op.Message, "\n")
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.ID, op.RepoID, op.Kind, revision, op.Date.Format(time.RFC3339),
			op.Committer, strings.Join(labels, ","), message)
	}
	return tw.Flush()
}

func runStats(cmd *cobra.Command, _ []string) error {
	set, err := filterSet(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	asJSON, _ := cmd.Flags().GetBool("json")
	groupBy, _ := cmd.Flags().GetStringSlice("group-by")
	if len(groupBy) == 0 {
		stats, err := a.catalog.Operations.Statistics(ctx, set)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "operations: %d\nfirst: %s\nlast: %s\n",
			stats.Total, stats.FirstDate.Format(time.RFC3339), stats.LastDate.Format(time.RFC3339))
		return nil
	}

	opts := service.GroupOptions{GroupBy: groupBy}
	orderBy, _ := cmd.Flags().GetStringSlice("order-by")
	for _, col := range orderBy {
		desc := strings.HasPrefix(col, "-")
		opts.OrderBy = append(opts.OrderBy, service.Order{Column: strings.TrimPrefix(col, "-"), Descending: desc})
	}
	groups, err := a.catalog.Operations.GroupedStatistics(ctx, set, opts)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), groups)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tTOTAL\tFIRST\tLAST\n", strings.ToUpper(strings.Join(groupBy, "\t")))
	for _, g := range groups {
		cols := make([]string, len(groupBy))
		for i, col := range groupBy {
			cols[i] = g.Values[col]
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", strings.Join(cols, "\t"), g.Total,
			g.FirstDate.Format(time.RFC3339), g.LastDate.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	repoID, _ := cmd.Flags().GetInt64("repo")
	path, _ := cmd.Flags().GetString("path")
	revision, _ := cmd.Flags().GetString("revision")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		limit = a.cfg.Query.HistoryLimit
	}
	var limits service.HistoryLimits
	if limit > 0 {
		limits = service.HistoryLimits{Successors: service.Limit(limit), Sources: service.Limit(limit)}
	}

	ctx := cmd.Context()
	repo, err := a.catalog.Repositories.Get(ctx, repoID)
	if err != nil {
		return err
	}
	item := &models.Item{RepoID: repo.ID, Path: path, Revision: revision}
	history, err := a.catalog.Items.History(ctx, item, limits)
	if err != nil {
		return err
	}
	if history == nil {
		return fmt.Errorf("%s@%s: %w", path, revision, service.ErrNotFound)
	}
	if err := a.catalog.Items.AttachCommitOperations(ctx, repo, history); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REVISION\tPATH\tKIND\tACTION\tCOMMITTER\tDATE")
	for _, it := range history {
		committer, date := "", ""
		if op := it.CommitOperation; op != nil {
			committer, date = op.Committer, op.Date.Format(time.RFC3339)
		}
		marker := ""
		if it.Path == path && it.Revision == revision {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t%s\n",
			a.catalog.Repositories.FormatRevision(repo, it.Revision, "short"), marker,
			it.Path, it.Kind, it.Action, committer, date)
	}
	return tw.Flush()
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dst, err := storage.NewLocalBackend(a.cfg.Storage.Path)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var rc service.RepositoryConstraints
	if cmd.Flags().Changed("repo") {
		rc.IDs, _ = cmd.Flags().GetInt64Slice("repo")
	}
	repos, err := a.catalog.Repositories.List(ctx, rc)
	if err != nil {
		return err
	}
	for _, r := range repos {
		n, err := export.Repository(ctx, a.catalog, r.ID, dst)
		if err != nil {
			return fmt.Errorf("export repository %d: %w", r.ID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d operations\n", export.Key(r.ID), n)
	}
	return nil
}
