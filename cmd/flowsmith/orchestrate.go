package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flowsmith/flowsmith/internal/agent"
	"github.com/flowsmith/flowsmith/internal/config"
	"github.com/flowsmith/flowsmith/internal/domain"
	"github.com/flowsmith/flowsmith/internal/gates"
	"github.com/flowsmith/flowsmith/internal/gitops"
	"github.com/flowsmith/flowsmith/internal/issues"
	"github.com/flowsmith/flowsmith/internal/labels"
	"github.com/flowsmith/flowsmith/internal/lock"
	"github.com/flowsmith/flowsmith/internal/notify"
	"github.com/flowsmith/flowsmith/internal/observer"
	"github.com/flowsmith/flowsmith/internal/parser"
	"github.com/flowsmith/flowsmith/internal/pipeline"
	"github.com/flowsmith/flowsmith/internal/prbot"
	"github.com/flowsmith/flowsmith/internal/prompts"
	"github.com/flowsmith/flowsmith/internal/runstore"
	"github.com/flowsmith/flowsmith/tui"
)

// executeRun wires up and drives one full pipeline run: worktree, lock
// coordinator, agent steps, gates, persistence, then PR creation and
// notifications for successful outcomes.
func executeRun(cfg *config.Config, repo string, issue domain.Issue, useTUI bool) (*domain.RunResult, error) {
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	projectRoot := cfg.General.ProjectRoot
	if projectRoot == "" {
		projectRoot = "."
	}

	// The worktree is created before planning, so the branch is derived
	// from the issue title up front; a branch the planner proposes later
	// is recorded but the precomputed one is what gets pushed.
	branch := (&parser.PlanMeta{Title: issue.Title}).BranchName(issue.Number)

	worktrees := gitops.NewWorktreeManager(projectRoot, filepath.Join(cfg.Pipeline.RunDir, "worktrees"), cfg.Pipeline.BaseBranch)
	wtPath, err := worktrees.Create(branch)
	if err != nil {
		return nil, fmt.Errorf("creating worktree: %w", err)
	}
	defer func() {
		if err := worktrees.Remove(wtPath); err != nil {
			log.Printf("flowsmith: removing worktree: %v", err)
		}
	}()

	runner := &pipeline.Runner{
		Config:      cfg,
		Repo:        repo,
		Coordinator: lock.New(labels.NewGHStore(repo), repo, lockConfig(cfg.Lock)),
		Invoker: &agent.CommandInvoker{
			Commands: cfg.Commands,
			Dir:      filepath.Join(cfg.Pipeline.RunDir, "steps", fmt.Sprintf("issue-%d", issue.Number)),
			WorkDir:  wtPath,
			Timeout:  minutes(cfg.Pipeline.StepTimeoutMinutes),
		},
		Gates: &gates.Runner{
			Gates:   cfg.Gates,
			Dir:     wtPath,
			Timeout: minutes(cfg.Pipeline.GateTimeoutMinutes),
		},
		Prompts: prompts.DefaultLoader(projectRoot),
		Sinks: []pipeline.EventSink{
			&runstore.Sink{Store: store},
			pipeline.EventSinkFunc(func(ev domain.Event) {
				log.Printf("flowsmith: #%d %s %s", ev.Issue, ev.State, ev.Message)
			}),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := observer.NewStopWatcher(filepath.Join(cfg.Pipeline.RunDir, "control"), func(n int) {
		if n == observer.StopRequestAll || n == issue.Number {
			log.Printf("flowsmith: stop requested for #%d", issue.Number)
			cancel()
		}
	})
	if err != nil {
		log.Printf("flowsmith: stop watcher disabled: %v", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	var res *domain.RunResult
	if useTUI {
		res = runWithTUI(ctx, runner, cfg, issue)
	} else {
		res = runner.Run(ctx, issue)
	}
	res.Branch = branch

	if err := store.SaveRun(res); err != nil {
		log.Printf("flowsmith: saving run: %v", err)
	}

	if res.Outcome.Success() {
		if err := openPullRequest(cfg, repo, wtPath, branch, issue, res, runner.Prompts); err != nil {
			log.Printf("flowsmith: opening pull request: %v", err)
			res.ReviewNote = strings.TrimSpace(res.ReviewNote + "\npull request not opened: " + err.Error())
		}
		if err := store.SaveRun(res); err != nil {
			log.Printf("flowsmith: saving run: %v", err)
		}
	}

	fetcher := issues.NewFetcher(repo)
	if err := fetcher.PostComment(issue.Number, issues.BuildResultComment(res)); err != nil {
		log.Printf("flowsmith: posting result comment: %v", err)
	}

	if err := buildNotifier(cfg).Send(notify.FromResult(res)); err != nil {
		log.Printf("flowsmith: sending notification: %v", err)
	}

	return res, nil
}

func runWithTUI(ctx context.Context, runner *pipeline.Runner, cfg *config.Config, issue domain.Issue) *domain.RunResult {
	feed := tui.NewFeed()
	runner.Sinks = append(runner.Sinks, feed)

	done := make(chan *domain.RunResult, 1)
	go func() {
		res := runner.Run(ctx, issue)
		feed.Close()
		done <- res
	}()

	model := tui.NewModel(tui.ModelConfig{
		Issue:       issue,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Feed:        feed,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Printf("flowsmith: tui: %v", err)
	}

	return <-done
}

// openPullRequest commits and pushes the worktree, opens or updates the PR,
// and applies semantic labels from the diff.
func openPullRequest(cfg *config.Config, repo, wtPath, branch string, issue domain.Issue, res *domain.RunResult, loader *prompts.Loader) error {
	if _, err := gitops.CommitAll(wtPath, fmt.Sprintf("Fix #%d: %s", issue.Number, issue.Title)); err != nil {
		return err
	}
	if err := gitops.Push(wtPath, branch); err != nil {
		return err
	}

	meta, _, _ := parser.ParsePlan([]byte(res.Plan))
	title := issue.Title
	if meta != nil && meta.Title != "" {
		title = meta.Title
	}
	summary := ""
	if meta != nil {
		summary = meta.Summary
	}

	body, err := loader.BuildPRBody(prompts.PRBodyData{
		Issue:       issue,
		Summary:     summary,
		Review:      res.Review,
		Attempts:    res.FinalAttempt,
		GateSummary: gateSummaryLine(res),
	})
	if err != nil {
		return err
	}

	bot := prbot.NewPRBot(repo, wtPath)
	number, url, err := bot.CreateOrUpdate(branch, cfg.Pipeline.BaseBranch, fmt.Sprintf("Fix #%d: %s", issue.Number, title), body)
	if err != nil {
		return err
	}
	res.PRURL = url

	diff, err := gitops.Diff(wtPath, cfg.Pipeline.BaseBranch)
	if err != nil {
		log.Printf("flowsmith: reading diff for labels: %v", err)
		return nil
	}
	category := prbot.AnalyzeDiff(diff)
	if err := bot.AddLabels(number, prbot.GetLabels(category)); err != nil {
		log.Printf("flowsmith: labeling PR: %v", err)
	}
	return nil
}

func gateSummaryLine(res *domain.RunResult) string {
	if len(res.Attempts) == 0 {
		return "none"
	}
	last := res.Attempts[len(res.Attempts)-1]
	parts := make([]string, 0, len(last.Gates))
	for _, g := range last.Gates {
		mark := "✅"
		if !g.Passed {
			mark = "❌"
		}
		parts = append(parts, g.Name+" "+mark)
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}
