package task

// ActionStats 是单个动作的任务计数。
type ActionStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// TaskStats 汇总过滤范围内的任务状态，Retrying 为已失败过但仍在排队的任务。
type TaskStats struct {
	Total           int                    `json:"total"`
	Pending         int                    `json:"pending"`
	Retrying        int                    `json:"retrying"`
	Running         int                    `json:"running"`
	Succeeded       int                    `json:"succeeded"`
	Failed          int                    `json:"failed"`
	ByAction        map[string]ActionStats `json:"by_action,omitempty"`
	OldestUpdatedAt int64                  `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64                  `json:"newest_updated_at,omitempty"`
}

// add 把一条任务计入统计。
func (s *TaskStats) add(task *Task) {
	s.Total++
	switch task.Status {
	case StatusPending:
		s.Pending++
		if task.Attempts > 0 {
			s.Retrying++
		}
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
	s.addAction(task.Action, task.Status, 1)
	if task.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = task.UpdatedAt
	}
	if s.OldestUpdatedAt == 0 || (task.UpdatedAt != 0 && task.UpdatedAt < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = task.UpdatedAt
	}
}

func (s *TaskStats) addAction(action string, status Status, n int) {
	if action == "" || n <= 0 {
		return
	}
	if s.ByAction == nil {
		s.ByAction = make(map[string]ActionStats)
	}
	entry := s.ByAction[action]
	entry.Total += n
	switch status {
	case StatusSucceeded:
		entry.Succeeded += n
	case StatusFailed:
		entry.Failed += n
	}
	s.ByAction[action] = entry
}
