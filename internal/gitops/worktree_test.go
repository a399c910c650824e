package gitops

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cmds := [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("%v failed: %s", args, out)
		}
	}

	// Create initial commit
	readme := filepath.Join(dir, "README.md")
	os.WriteFile(readme, []byte("# Test"), 0644)

	cmd := exec.Command("git", "add", ".")
	cmd.Dir = dir
	cmd.Run()

	cmd = exec.Command("git", "commit", "-m", "Initial commit")
	cmd.Dir = dir
	cmd.Run()

	return dir
}

func TestWorktreeManager_Create(t *testing.T) {
	repoDir := setupGitRepo(t)
	worktreeDir := t.TempDir()

	mgr := NewWorktreeManager(repoDir, worktreeDir, "main")

	wtPath, err := mgr.Create("flowsmith/issue-7-fix-it")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		t.Error("Worktree directory not created")
	}

	cmd := exec.Command("git", "branch", "--list", "flowsmith/issue-7-fix-it")
	cmd.Dir = repoDir
	out, _ := cmd.Output()
	if len(out) == 0 {
		t.Error("Branch flowsmith/issue-7-fix-it not created")
	}
}

func TestWorktreeManager_CreateReplacesExisting(t *testing.T) {
	repoDir := setupGitRepo(t)
	worktreeDir := t.TempDir()

	mgr := NewWorktreeManager(repoDir, worktreeDir, "main")

	first, err := mgr.Create("flowsmith/issue-7")
	if err != nil {
		t.Fatal(err)
	}
	second, err := mgr.Create("flowsmith/issue-7")
	if err != nil {
		t.Fatalf("second Create for the same branch: %v", err)
	}
	if first == second {
		t.Error("expected a fresh worktree path")
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Error("previous worktree not cleaned up")
	}
}

func TestWorktreeManager_Remove(t *testing.T) {
	repoDir := setupGitRepo(t)
	worktreeDir := t.TempDir()

	mgr := NewWorktreeManager(repoDir, worktreeDir, "main")
	wtPath, err := mgr.Create("flowsmith/issue-7")
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Remove(wtPath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Error("worktree directory still exists after Remove")
	}
}

func TestCommitAll(t *testing.T) {
	repoDir := setupGitRepo(t)
	worktreeDir := t.TempDir()

	mgr := NewWorktreeManager(repoDir, worktreeDir, "main")
	wtPath, err := mgr.Create("flowsmith/issue-7")
	if err != nil {
		t.Fatal(err)
	}

	// Nothing to commit yet
	committed, err := CommitAll(wtPath, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Error("CommitAll reported a commit on a clean worktree")
	}

	os.WriteFile(filepath.Join(wtPath, "new.go"), []byte("package x\n"), 0644)

	committed, err = CommitAll(wtPath, "add new.go")
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Error("CommitAll did not commit a dirty worktree")
	}

	dirty, err := HasChanges(wtPath)
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("worktree still dirty after CommitAll")
	}
}
