// Package lock grants and revokes the right to run an issue through the
// pipeline. The only shared state is mutable labels on issues, so every
// guarantee is enforced by an optimistic protocol: write a claim, re-read,
// resolve races by a deterministic tie-break, and reclaim stale sentinels
// left behind by crashed holders. It is best-effort by construction, not a
// true lock service.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowsmith/flowsmith/internal/labels"
)

// ErrAcquireTimeout is returned when a slot could not be granted before the
// configured deadline. Recoverable: the caller decides whether to requeue.
var ErrAcquireTimeout = errors.New("lock acquire timed out")

// Request asks for a run slot for one issue
type Request struct {
	Issue int

	// Repo is the repository slug the request is for. Defaults to the
	// coordinator's repository when empty.
	Repo string

	// Service and Operation override label detection when set. When empty
	// they are detected from the issue's labels by configured prefix.
	Service   string
	Operation string
}

// Slot represents "this issue is currently executing". Owned by the run that
// acquired it; released by the same run on every exit path.
type Slot struct {
	Issue      int
	Repo       string
	Acquirer   string
	Service    string
	Operation  string
	AcquiredAt time.Time

	released atomic.Bool
}

// Coordinator grants and revokes run slots. The label protocol lives behind
// this interface so a real lock service could replace it without touching
// the attempt state machine.
type Coordinator interface {
	Acquire(ctx context.Context, req Request) (*Slot, error)
	Release(slot *Slot)
	ReapStale(ctx context.Context) int
}

// Config holds coordinator tuning
type Config struct {
	SentinelLabel   string
	ClaimPrefix     string
	ServicePrefix   string
	OperationPrefix string
	MaxParallel     int
	PollInterval    time.Duration
	AcquireTimeout  time.Duration
	StaleAfter      time.Duration
	Cooldown        time.Duration

	// Acquirer identifies this coordinator instance in claim labels and
	// acquire records. Generated when empty. The claim tie-break sorts on
	// it, so it must be stable for the life of the instance.
	Acquirer string
}

// LabelCoordinator implements Coordinator on a labels.Store
type LabelCoordinator struct {
	store labels.Store
	cfg   Config
	repo  string

	// now is swappable for tests
	now func() time.Time
}

// New creates a coordinator for one repository
func New(store labels.Store, repo string, cfg Config) *LabelCoordinator {
	if cfg.Acquirer == "" {
		cfg.Acquirer = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	return &LabelCoordinator{
		store: store,
		cfg:   cfg,
		repo:  repo,
		now:   time.Now,
	}
}

// Acquire blocks until the issue is unlocked, the repository is below its
// parallelism ceiling, and any operation cooldown has elapsed, then writes
// the sentinel label and returns a slot. Simultaneous claimants are resolved
// by claim-label order: the lexicographically smallest claim wins, losers
// remove their claim and retry.
func (c *LabelCoordinator) Acquire(ctx context.Context, req Request) (*Slot, error) {
	if err := c.store.EnsureLabel(c.cfg.SentinelLabel); err != nil {
		log.Printf("lock: ensure sentinel label: %v", err)
	}

	claim := c.cfg.ClaimPrefix + c.cfg.Acquirer
	deadline := c.now().Add(c.cfg.AcquireTimeout)

	for {
		c.ReapStale(ctx)

		reason, slot, err := c.tryAcquire(req, claim)
		if err != nil {
			log.Printf("lock: acquire check for #%d: %v", req.Issue, err)
		} else if slot != nil {
			log.Printf("lock: acquired slot for %s#%d (acquirer=%s)", c.repo, req.Issue, c.cfg.Acquirer)
			return slot, nil
		}

		if !c.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s#%d: %s", ErrAcquireTimeout, c.repo, req.Issue, reason)
		}

		if reason != "" {
			log.Printf("lock: waiting for %s#%d: %s", c.repo, req.Issue, reason)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// tryAcquire runs one optimistic acquisition cycle. It returns a wait reason
// when the slot cannot be granted yet, or the granted slot.
func (c *LabelCoordinator) tryAcquire(req Request, claim string) (string, *Slot, error) {
	issueLabels, err := c.store.ListLabels(req.Issue)
	if err != nil {
		return "checking issue labels", nil, err
	}

	running, err := c.store.ListOpenIssuesWithLabel(c.cfg.SentinelLabel)
	if err != nil {
		return "counting running slots", nil, err
	}

	service := req.Service
	if service == "" {
		service = labelWithPrefix(issueLabels, c.cfg.ServicePrefix)
	}
	operation := req.Operation
	if operation == "" {
		operation = labelWithPrefix(issueLabels, c.cfg.OperationPrefix)
	}

	var reasons []string
	if contains(issueLabels, c.cfg.SentinelLabel) {
		reasons = append(reasons, fmt.Sprintf("issue is locked (%s)", c.cfg.SentinelLabel))
	}
	if len(running) >= c.cfg.MaxParallel {
		reasons = append(reasons, fmt.Sprintf("repo parallel limit reached (%d/%d)", len(running), c.cfg.MaxParallel))
	}
	if wait := c.cooldownWait(req.Issue, service, operation); wait > 0 {
		reasons = append(reasons, fmt.Sprintf("operation cooldown active (%s)", wait.Round(time.Second)))
	}
	if len(reasons) > 0 {
		return strings.Join(reasons, ", "), nil, nil
	}

	// Optimistic claim: write, re-read, tie-break.
	if err := c.store.AddLabel(req.Issue, claim); err != nil {
		return "writing claim", nil, err
	}

	after, err := c.store.ListLabels(req.Issue)
	if err != nil {
		c.removeClaim(req.Issue, claim)
		return "re-reading labels after claim", nil, err
	}

	if contains(after, c.cfg.SentinelLabel) {
		// Another holder promoted between our check and our claim.
		c.removeClaim(req.Issue, claim)
		return fmt.Sprintf("issue is locked (%s)", c.cfg.SentinelLabel), nil, nil
	}

	if winner := smallestWithPrefix(after, c.cfg.ClaimPrefix); winner != claim {
		// Lost the tie-break: release our write and retry.
		c.removeClaim(req.Issue, claim)
		return fmt.Sprintf("lost claim tie-break to %s", winner), nil, nil
	}

	if err := c.store.AddLabel(req.Issue, c.cfg.SentinelLabel); err != nil {
		c.removeClaim(req.Issue, claim)
		return "writing sentinel", nil, err
	}
	c.removeClaim(req.Issue, claim)

	acquiredAt := c.now()
	if err := c.store.PostComment(req.Issue, labels.FormatAcquiredMarker(c.cfg.Acquirer, acquiredAt)); err != nil {
		log.Printf("lock: record acquire on #%d: %v", req.Issue, err)
	}

	repo := req.Repo
	if repo == "" {
		repo = c.repo
	}
	return "", &Slot{
		Issue:      req.Issue,
		Repo:       repo,
		Acquirer:   c.cfg.Acquirer,
		Service:    service,
		Operation:  operation,
		AcquiredAt: acquiredAt,
	}, nil
}

// cooldownWait returns how long the (issue, service, operation) triple must
// still wait before a new run may start. Zero when no cooldown applies.
func (c *LabelCoordinator) cooldownWait(issue int, service, operation string) time.Duration {
	if c.cfg.Cooldown <= 0 || service == "" || operation == "" {
		return 0
	}
	comments, err := c.store.ListComments(issue)
	if err != nil {
		log.Printf("lock: read cooldown records on #%d: %v", issue, err)
		return 0
	}
	last := labels.LatestOperationTime(comments, service, operation)
	if last.IsZero() {
		return 0
	}
	remaining := last.Add(c.cfg.Cooldown).Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Release removes the sentinel and records the operation cooldown marker.
// Idempotent: a second call on the same slot is a no-op, and removing an
// already-removed sentinel (for example after a cross-process cleanup) never
// fails. Errors are logged, not propagated.
func (c *LabelCoordinator) Release(slot *Slot) {
	if slot == nil || !slot.released.CompareAndSwap(false, true) {
		return
	}

	if err := c.store.RemoveLabel(slot.Issue, c.cfg.SentinelLabel); err != nil {
		log.Printf("lock: release #%d: %v", slot.Issue, err)
	} else {
		log.Printf("lock: released slot for %s#%d", c.repo, slot.Issue)
	}

	if slot.Service != "" && slot.Operation != "" {
		body := labels.FormatOperationMarker(slot.Service, slot.Operation, c.now())
		if err := c.store.PostComment(slot.Issue, body); err != nil {
			log.Printf("lock: record operation cooldown on #%d: %v", slot.Issue, err)
		}
	}
}

// ReapStale removes sentinels whose acquire record (fallback: issue update
// time) is older than the staleness threshold, on the assumption the owning
// process died without releasing. Returns the number of reclaimed slots.
// Failures are logged, not propagated.
func (c *LabelCoordinator) ReapStale(ctx context.Context) int {
	if c.cfg.StaleAfter <= 0 {
		return 0
	}

	running, err := c.store.ListOpenIssuesWithLabel(c.cfg.SentinelLabel)
	if err != nil {
		log.Printf("lock: reap: list running slots: %v", err)
		return 0
	}

	reclaimed := 0
	for _, issue := range running {
		select {
		case <-ctx.Done():
			return reclaimed
		default:
		}

		heldSince := issue.UpdatedAt
		if comments, err := c.store.ListComments(issue.Number); err == nil {
			if t := labels.LatestAcquiredTime(comments); !t.IsZero() {
				heldSince = t
			}
		}
		if heldSince.IsZero() || c.now().Sub(heldSince) < c.cfg.StaleAfter {
			continue
		}

		if err := c.store.RemoveLabel(issue.Number, c.cfg.SentinelLabel); err != nil {
			log.Printf("lock: reap #%d: %v", issue.Number, err)
			continue
		}
		log.Printf("lock: reclaimed stale slot on %s#%d held since %s (prior crash assumed)",
			c.repo, issue.Number, heldSince.Format(time.RFC3339))
		reclaimed++
	}
	return reclaimed
}

func (c *LabelCoordinator) removeClaim(issue int, claim string) {
	if err := c.store.RemoveLabel(issue, claim); err != nil {
		log.Printf("lock: remove claim on #%d: %v", issue, err)
	}
}

func contains(ls []string, target string) bool {
	for _, l := range ls {
		if l == target {
			return true
		}
	}
	return false
}

func labelWithPrefix(ls []string, prefix string) string {
	found := ""
	for _, l := range ls {
		if strings.HasPrefix(l, prefix) && (found == "" || l < found) {
			found = l
		}
	}
	return found
}

func smallestWithPrefix(ls []string, prefix string) string {
	var claims []string
	for _, l := range ls {
		if strings.HasPrefix(l, prefix) {
			claims = append(claims, l)
		}
	}
	if len(claims) == 0 {
		return ""
	}
	sort.Strings(claims)
	return claims[0]
}
