package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adanyl0v/go-task-manager/internal/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	defaultSortColumn = "created_at"
)

// Only these columns may ever reach ORDER BY. Anything else is replaced
// with defaultSortColumn, so request input is never spliced into SQL.
var taskSortColumns = map[string]string{
	"created_at": "created_at",
	"due_date":   "due_date",
	"priority":   "priority",
	"status":     "status",
	"title":      "title",
}

const taskColumns = `id,
       user_id,
       title,
       description,
       status,
       priority,
       due_date,
       created_at,
       updated_at`

type listTasksQuery struct {
	conditions []string
	args       []any
	sortColumn string
	sortOrder  string
	page       int
	limit      int
}

// newListTasksQuery builds the owner scoped listing query. The owner
// condition is always the first one and binds $1.
func newListTasksQuery(ownerID string, filter TaskFilter, today time.Time) *listTasksQuery {
	q := &listTasksQuery{
		sortColumn: defaultSortColumn,
		sortOrder:  "DESC",
		page:       clampPage(filter.Page),
		limit:      clampLimit(filter.Limit),
	}

	q.where("user_id = " + q.bind(ownerID))

	if status := models.TaskStatus(filter.Status); status.Valid() {
		q.where("status = " + q.bind(string(status)))
	}
	if priority := models.TaskPriority(filter.Priority); priority.Valid() {
		q.where("priority = " + q.bind(string(priority)))
	}
	if filter.Overdue {
		q.where(fmt.Sprintf("status <> '%s' AND due_date < %s", models.StatusDone, q.bind(models.DateOf(today))))
	}

	if column, ok := taskSortColumns[filter.SortBy]; ok {
		q.sortColumn = column
	}
	if filter.Order == "asc" {
		q.sortOrder = "ASC"
	}
	return q
}

func (q *listTasksQuery) bind(arg any) string {
	q.args = append(q.args, arg)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *listTasksQuery) where(condition string) {
	q.conditions = append(q.conditions, condition)
}

func (q *listTasksQuery) offset() int {
	return (q.page - 1) * q.limit
}

func (q *listTasksQuery) whereClause() string {
	return strings.Join(q.conditions, "\n  AND ")
}

// selectSQL returns the page query. Every row carries the total number
// of matching rows in its last column.
func (q *listTasksQuery) selectSQL() (string, []any) {
	n := len(q.args)
	sql := fmt.Sprintf(`
SELECT %s,
       COUNT(*) OVER () AS total
FROM tasks
WHERE %s
ORDER BY %s %s, id %s
LIMIT $%d OFFSET $%d
`, taskColumns, q.whereClause(), q.sortColumn, q.sortOrder, q.sortOrder, n+1, n+2)

	args := make([]any, 0, n+2)
	args = append(args, q.args...)
	args = append(args, q.limit, q.offset())
	return sql, args
}

func (q *listTasksQuery) countSQL() (string, []any) {
	sql := fmt.Sprintf(`
SELECT COUNT(*)
FROM tasks
WHERE %s
`, q.whereClause())
	return sql, q.args
}

func (q *listTasksQuery) pagination(total int64) Pagination {
	return Pagination{
		Total:      total,
		Page:       q.page,
		Limit:      q.limit,
		TotalPages: int((total + int64(q.limit) - 1) / int64(q.limit)),
	}
}

func clampPage(page *int) int {
	if page == nil {
		return DefaultPage
	}
	return max(*page, 1)
}

func clampLimit(limit *int) int {
	if limit == nil {
		return DefaultLimit
	}
	return min(max(*limit, 1), MaxLimit)
}
