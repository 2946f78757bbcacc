// Package archive keeps every rendered revision of an owner's reports in a
// git repository, one repository per owner.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"workreport/api/internal/store"
)

// ErrNoHistory is returned when a report has never been archived.
var ErrNoHistory = errors.New("no archived revisions")

type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// Revision identifies one archived commit of a report file.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Archive struct {
	baseDir string
	logger  *zap.Logger
	lockMu  sync.Mutex
	locks   map[store.OwnerID]*sync.Mutex
}

func New(baseDir string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		baseDir: baseDir,
		logger:  logger,
		locks:   make(map[store.OwnerID]*sync.Mutex),
	}
}

// Path is the report's file inside the owner repository.
func Path(kind Kind, reportID string) string {
	return fmt.Sprintf("%s/%s.md", kind, reportID)
}

// Record commits rendered as the report's current text. An unchanged text
// produces no commit and returns the previous revision.
func (a *Archive) Record(owner store.OwnerID, kind Kind, reportID, rendered, author, message string) (Revision, error) {
	lock := a.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.openOrInit(owner)
	if err != nil {
		return Revision{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	rel := Path(kind, reportID)
	full := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Revision{}, fmt.Errorf("create report dir: %w", err)
	}
	if existing, err := os.ReadFile(full); err == nil && string(existing) == rendered {
		revisions, err := history(repo, rel, 1)
		if err == nil && len(revisions) == 1 {
			return revisions[0], nil
		}
	}
	if err := os.WriteFile(full, []byte(rendered), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return Revision{}, fmt.Errorf("git add %s: %w", rel, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@workreport.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit %s: %w", rel, err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	a.logger.Debug("report revision archived",
		zap.String("owner_id", string(owner)),
		zap.String("path", rel),
		zap.String("hash", hash.String()[:7]),
	)
	return toRevision(commitObj), nil
}

// History lists the report's revisions, newest first.
func (a *Archive) History(owner store.OwnerID, kind Kind, reportID string, limit int) ([]Revision, error) {
	lock := a.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(owner))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	revisions, err := history(repo, Path(kind, reportID), limit)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, ErrNoHistory
	}
	return revisions, nil
}

// Content returns the report text as of revision hash (short or full).
func (a *Archive) Content(owner store.OwnerID, kind Kind, reportID, hash string) (string, error) {
	lock := a.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(owner))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", ErrNoHistory
	}
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(Path(kind, reportID))
	if errors.Is(err, object.ErrFileNotFound) {
		return "", ErrNoHistory
	}
	if err != nil {
		return "", fmt.Errorf("load report from commit: %w", err)
	}
	return file.Contents()
}

func (a *Archive) repoPath(owner store.OwnerID) string {
	return filepath.Join(a.baseDir, string(owner))
}

func (a *Archive) ownerLock(owner store.OwnerID) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[owner]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[owner] = lock
	return lock
}

func (a *Archive) openOrInit(owner store.OwnerID) (*git.Repository, error) {
	path := a.repoPath(owner)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func history(repo *git.Repository, rel string, limit int) ([]Revision, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &rel})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
