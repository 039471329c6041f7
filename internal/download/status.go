package download

import (
	"sort"

	"gend/pkg/types"
)

// Status returns the public view of one job.
func (m *Manager) Status(jobID string) (types.DownloadJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	if j == nil {
		return types.DownloadJob{}, false
	}
	return viewLocked(j), true
}

// List returns all known jobs, newest first.
func (m *Manager) List() []types.DownloadJob {
	m.mu.Lock()
	out := make([]types.DownloadJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, viewLocked(j))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt > out[k].CreatedAt })
	return out
}

// ActiveCount returns jobs not yet terminal.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.status == StatusQueued || j.status == StatusRunning {
			n++
		}
	}
	return n
}

func viewLocked(j *job) types.DownloadJob {
	return types.DownloadJob{
		ID:         j.id,
		ModelID:    j.modelID,
		SourceType: j.sourceType,
		SourceURI:  j.sourceURI,
		Status:     j.status,
		Progress:   j.progress,
		Error:      j.err,
		CreatedAt:  j.createdAt.Unix(),
	}
}
