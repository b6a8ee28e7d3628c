package continuity

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/continuum/internal/storage"
	"github.com/scrypster/continuum/pkg/types"
)

// taskMarkers are the lexical signals that a context item describes
// unfinished work. Checked in order; the first match wins.
var taskMarkers = []string{"todo", "pending", "next", "continue", "finish", "complete"}

// maxTaskDescription bounds how much of the matched text is carried into
// the task description.
const maxTaskDescription = 200

// detectPendingTasks scans the textual fields of the active context for
// unfinished work, up to max tasks.
func detectPendingTasks(items []storage.ContextItem, max int) []types.PendingTask {
	var tasks []types.PendingTask

	for _, item := range items {
		if len(tasks) >= max {
			break
		}

		text, marker := findTaskText(item.Data)
		if marker == "" {
			continue
		}

		priority := "normal"
		if item.Importance > 0.7 {
			priority = "high"
		}

		tasks = append(tasks, types.PendingTask{
			TaskID:         uuid.NewString(),
			Description:    truncate(text, maxTaskDescription),
			Context:        item.Key,
			Priority:       priority,
			Tags:           item.Tags,
			IdentifiedFrom: marker,
		})
	}
	return tasks
}

// findTaskText returns the first string value containing a task marker,
// with the marker that matched. Keys are walked in sorted order so
// detection is deterministic.
func findTaskText(data map[string]any) (string, string) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, ok := data[k].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, marker := range taskMarkers {
			if strings.Contains(lower, marker) {
				return s, marker
			}
		}
	}
	return "", ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
