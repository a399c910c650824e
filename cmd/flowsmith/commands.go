package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/domain"
	"github.com/flowsmith/flowsmith/internal/issues"
	"github.com/flowsmith/flowsmith/internal/labels"
	"github.com/flowsmith/flowsmith/internal/lock"
	"github.com/flowsmith/flowsmith/internal/observer"
	"github.com/flowsmith/flowsmith/internal/reaper"
	"github.com/flowsmith/flowsmith/internal/runstore"
	"github.com/flowsmith/flowsmith/web/api"
)

var (
	repoFlag      string
	runTUI        bool
	queueLabel    string
	queueLimit    int
	queueSkip     []string
	runsLimit     int
	servePort     int
	lockService   string
	lockOperation string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository slug (owner/name)")

	runCmd := &cobra.Command{
		Use:   "run ISSUE",
		Short: "Run the pipeline for one issue",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show a live run viewer")
	rootCmd.AddCommand(runCmd)

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Run the pipeline for every candidate issue",
		RunE:  runQueue,
	}
	queueCmd.Flags().StringVar(&queueLabel, "label", "flowsmith", "candidate label")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 5, "maximum issues to process")
	queueCmd.Flags().StringSliceVar(&queueSkip, "skip-label", nil, "skip issues carrying this label")
	rootCmd.AddCommand(queueCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show aggregate run outcomes",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Operate the label-based run locks directly",
	}
	lockAcquireCmd := &cobra.Command{
		Use:   "acquire ISSUE",
		Short: "Acquire and hold the run lock for an issue",
		Args:  cobra.ExactArgs(1),
		RunE:  runLockAcquire,
	}
	lockAcquireCmd.Flags().StringVar(&lockService, "service", "", "service name for the acquire record")
	lockAcquireCmd.Flags().StringVar(&lockOperation, "operation", "", "operation name for the cooldown record")
	lockCmd.AddCommand(lockAcquireCmd)
	lockCmd.AddCommand(&cobra.Command{
		Use:   "release ISSUE",
		Short: "Force-release the run lock for an issue",
		Args:  cobra.ExactArgs(1),
		RunE:  runLockRelease,
	})
	lockCmd.AddCommand(&cobra.Command{
		Use:   "reap",
		Short: "Reclaim stale run locks once",
		RunE:  runLockReap,
	})
	rootCmd.AddCommand(lockCmd)

	reaperCmd := &cobra.Command{
		Use:   "reaper",
		Short: "Sweep stale run locks on the configured schedule",
		RunE:  runReaper,
	}
	rootCmd.AddCommand(reaperCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// resolveRepo picks the target repository: flag, then config, then the
// origin remote of the project root.
func resolveRepo(cfg *config.Config) (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}
	if cfg.General.Repo != "" {
		return cfg.General.Repo, nil
	}
	repo, err := inferRepo(cfg.General.ProjectRoot)
	if err != nil {
		return "", fmt.Errorf("no repository configured and none inferred: %w", err)
	}
	return repo, nil
}

var remoteSlugRe = regexp.MustCompile(`[:/]([^/:]+/[^/:]+?)(\.git)?$`)

func inferRepo(projectRoot string) (string, error) {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	if projectRoot != "" {
		cmd.Dir = projectRoot
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("reading origin remote: %w", err)
	}
	m := remoteSlugRe.FindStringSubmatch(strings.TrimSpace(string(out)))
	if m == nil {
		return "", fmt.Errorf("cannot parse remote url %q", strings.TrimSpace(string(out)))
	}
	return m[1], nil
}

// lockConfig converts the file-format lock settings into coordinator tuning
func lockConfig(lc config.LockConfig) lock.Config {
	return lock.Config{
		SentinelLabel:   lc.SentinelLabel,
		ClaimPrefix:     lc.ClaimLabelPrefix,
		ServicePrefix:   lc.ServiceLabelPrefix,
		OperationPrefix: lc.OperationLabelPrefix,
		MaxParallel:     lc.MaxParallelPerRepo,
		PollInterval:    seconds(lc.LockPollSeconds),
		AcquireTimeout:  minutes(lc.LockTimeoutMinutes),
		StaleAfter:      minutes(lc.LockStaleMinutes),
		Cooldown:        minutes(lc.OperationCooldownMinutes),
	}
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func runRun(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		return fmt.Errorf("invalid issue number %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := resolveRepo(cfg)
	if err != nil {
		return err
	}

	issue, err := issues.NewFetcher(repo).Fetch(number)
	if err != nil {
		return err
	}

	res, err := executeRun(cfg, repo, issue, runTUI)
	if err != nil {
		return err
	}

	fmt.Println(res.Summary())
	if !res.Outcome.Success() {
		os.Exit(1)
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := resolveRepo(cfg)
	if err != nil {
		return err
	}

	candidates, err := issues.NewFetcher(repo).ListCandidates(queueLabel, queueSkip...)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No candidate issues")
		return nil
	}
	if len(candidates) > queueLimit {
		candidates = candidates[:queueLimit]
	}

	fmt.Printf("Processing %d issues:\n", len(candidates))
	for _, issue := range candidates {
		fmt.Printf("  #%d: %s\n", issue.Number, issue.Title)
	}

	for _, issue := range candidates {
		res, err := executeRun(cfg, repo, issue, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue #%d: %v\n", issue.Number, err)
			continue
		}
		fmt.Println(res.Summary())
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tISSUE\tOUTCOME\tATTEMPTS\tPR")
	for _, r := range runs {
		pr := r.PRURL
		if pr == "" {
			pr = "-"
		}
		fmt.Fprintf(w, "%s\t#%d\t%s\t%d\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Issue.Number, r.Outcome, r.FinalAttempt, pr)
	}
	w.Flush()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(200)
	if err != nil {
		return err
	}

	counts := map[domain.Outcome]int{}
	for _, r := range runs {
		counts[r.Outcome]++
	}

	fmt.Printf("Runs: %d total | %d succeeded | %d exhausted | %d planner failed | %d fatal | %d lock timeout\n",
		len(runs),
		counts[domain.OutcomeSucceeded],
		counts[domain.OutcomeExhaustedRetries],
		counts[domain.OutcomePlannerFailed],
		counts[domain.OutcomeFatalError],
		counts[domain.OutcomeLockTimeout])
	return nil
}

func repoCoordinator() (*lock.LabelCoordinator, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	repo, err := resolveRepo(cfg)
	if err != nil {
		return nil, nil, err
	}
	return lock.New(labels.NewGHStore(repo), repo, lockConfig(cfg.Lock)), cfg, nil
}

func runLockAcquire(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		return fmt.Errorf("invalid issue number %q", args[0])
	}

	coordinator, cfg, err := repoCoordinator()
	if err != nil {
		return err
	}

	slot, err := coordinator.Acquire(context.Background(), lock.Request{
		Issue:     number,
		Service:   lockService,
		Operation: lockOperation,
	})
	if err != nil {
		return err
	}

	// The sentinel stays on the issue until "lock release" removes it.
	fmt.Printf("Acquired %s on #%d as %s at %s\n",
		cfg.Lock.SentinelLabel, slot.Issue, slot.Acquirer, slot.AcquiredAt.Format(time.RFC3339))
	return nil
}

func runLockRelease(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		return fmt.Errorf("invalid issue number %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := resolveRepo(cfg)
	if err != nil {
		return err
	}

	if err := labels.NewGHStore(repo).RemoveLabel(number, cfg.Lock.SentinelLabel); err != nil {
		return err
	}
	fmt.Printf("Released %s on #%d\n", cfg.Lock.SentinelLabel, number)
	return nil
}

func runLockReap(cmd *cobra.Command, args []string) error {
	coordinator, _, err := repoCoordinator()
	if err != nil {
		return err
	}
	n := coordinator.ReapStale(context.Background())
	fmt.Printf("Reclaimed %d stale locks\n", n)
	return nil
}

func runReaper(cmd *cobra.Command, args []string) error {
	coordinator, cfg, err := repoCoordinator()
	if err != nil {
		return err
	}

	r, err := reaper.New(coordinator, cfg.Reaper.Cron)
	if err != nil {
		return err
	}
	fmt.Printf("Reaper running on schedule %q, next sweep %s\n",
		cfg.Reaper.Cron, r.NextRun().Format(time.RFC3339))
	r.Start(context.Background())
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, observer.New(time.Hour), addr)

	fmt.Printf("Starting web UI at http://%s\n", addr)
	return server.Start()
}
