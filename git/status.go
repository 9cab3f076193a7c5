package git

import (
	"context"
	"strconv"
	"strings"

	"github.com/grovetools/rulesync/pkg/models"
)

// Status returns the status of the repository. A directory that is not the
// top of a work tree yields IsRepo false and no files.
func (r *Repository) Status(ctx context.Context) (*models.GitStatus, error) {
	if !r.IsRepo(ctx) {
		return &models.GitStatus{IsRepo: false, Files: []models.FileStatus{}}, nil
	}

	// Use git status --porcelain=v2 --branch for a single, efficient call
	out, err := r.run(ctx, "status", "--porcelain=v2", "--branch", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	status := ParseStatus(out)
	return status, nil
}

// ParseStatus parses NUL-separated `git status --porcelain=v2 --branch`
// output.
func ParseStatus(out string) *models.GitStatus {
	status := &models.GitStatus{IsRepo: true, Files: []models.FileStatus{}}

	tokens := strings.Split(out, "\x00")
	for i := 0; i < len(tokens); i++ {
		line := tokens[i]
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			parseHeader(status, line)
		case '1':
			// 1 XY sub mH mI mW hH hI path
			parts := strings.SplitN(line, " ", 9)
			if len(parts) == 9 {
				status.Files = append(status.Files, fileStatus(parts[1], parts[8]))
			}
		case '2':
			// 2 XY sub mH mI mW hH hI Xscore path, then the original path
			parts := strings.SplitN(line, " ", 10)
			if len(parts) == 10 {
				status.Files = append(status.Files, fileStatus(parts[1], parts[9]))
			}
			i++
		case 'u':
			// u XY sub m1 m2 m3 mW h1 h2 h3 path
			parts := strings.SplitN(line, " ", 11)
			if len(parts) == 11 {
				status.Files = append(status.Files, models.FileStatus{
					Path:   parts[10],
					Status: models.StateConflict,
				})
			}
		case '?':
			status.Files = append(status.Files, models.FileStatus{
				Path:   strings.TrimPrefix(line, "? "),
				Status: models.StateUntracked,
			})
		}
	}
	return status
}

func parseHeader(status *models.GitStatus, line string) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return
	}
	switch parts[1] {
	case "branch.head":
		if parts[2] != "(detached)" {
			status.Branch = parts[2]
		}
	case "branch.ab":
		if len(parts) >= 4 {
			status.Ahead, _ = strconv.Atoi(strings.TrimPrefix(parts[2], "+"))
			status.Behind, _ = strconv.Atoi(strings.TrimPrefix(parts[3], "-"))
		}
	}
}

// fileStatus maps an XY code (X index, Y work tree) to a single state.
func fileStatus(xy, path string) models.FileStatus {
	x, y := xy[0], xy[1]
	fs := models.FileStatus{Path: path, Staged: x != '.'}
	switch {
	case x == 'D' || y == 'D':
		fs.Status = models.StateDeleted
	case x == 'A':
		fs.Status = models.StateAdded
	case x == 'R' || x == 'C':
		fs.Status = models.StateRenamed
	case y != '.':
		fs.Status = models.StateModified
	default:
		fs.Status = models.StateStaged
	}
	return fs
}

// Branches lists local and remote-tracking branches. The symbolic
// origin/HEAD ref is skipped.
func (r *Repository) Branches(ctx context.Context) ([]models.BranchInfo, error) {
	if !r.IsRepo(ctx) {
		return []models.BranchInfo{}, nil
	}
	out, err := r.run(ctx, "for-each-ref", "--format=%(refname) %(HEAD)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, err
	}
	branches := ParseBranches(out)

	// A repository without commits has no refs yet, only HEAD.
	if len(branches) == 0 {
		if current, _ := r.CurrentBranch(ctx); current != "" {
			branches = append(branches, models.BranchInfo{Name: current, Current: true})
		}
	}
	return branches, nil
}

// ParseBranches parses `git for-each-ref --format='%(refname) %(HEAD)'`.
func ParseBranches(out string) []models.BranchInfo {
	branches := []models.BranchInfo{}
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		ref := fields[0]
		if strings.HasSuffix(ref, "/HEAD") {
			continue
		}
		info := models.BranchInfo{Current: len(fields) > 1 && fields[1] == "*"}
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			info.Name = strings.TrimPrefix(ref, "refs/heads/")
		case strings.HasPrefix(ref, "refs/remotes/"):
			info.Name = strings.TrimPrefix(ref, "refs/remotes/")
			info.Remote = true
		default:
			continue
		}
		branches = append(branches, info)
	}
	return branches
}
