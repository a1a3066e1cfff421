package constraint

import "sort"

// Column is a statistics grouping column and the joins it needs.
type Column struct {
	Expr string
	Join func(*Builder)
}

var groupColumns = map[string]Column{
	"repo_id":    {Expr: "op.repo_id"},
	"type":       {Expr: "op.type"},
	"uid":        {Expr: "op.uid"},
	"committer":  {Expr: "op.committer"},
	"author":     {Expr: "op.author"},
	"revision":   {Expr: "op.revision"},
	"vcs":        {Expr: "r.vcs", Join: joinRepositories},
	"label_id":   {Expr: "label.label_id", Join: joinLabels},
	"label_name": {Expr: "label.name", Join: joinLabels},
	"label_type": {Expr: "label.type", Join: joinLabels},
}

// Calculated statistics columns usable for ordering grouped results.
const (
	TotalOperations    = "total_operations"
	FirstOperationDate = "first_operation_date"
	LastOperationDate  = "last_operation_date"
)

func GroupColumn(name string) (Column, bool) {
	c, ok := groupColumns[name]
	return c, ok
}

func GroupColumns() []string {
	names := make([]string, 0, len(groupColumns))
	for k := range groupColumns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsCalculated reports whether name is an aggregate column.
func IsCalculated(name string) bool {
	switch name {
	case TotalOperations, FirstOperationDate, LastOperationDate:
		return true
	}
	return false
}
