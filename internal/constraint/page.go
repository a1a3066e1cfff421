package constraint

// Page selects a window of a query's ordered results. The zero value is unrestricted.
type Page struct {
	Offset  int
	Limit   int
	limited bool
}

func All() Page { return Page{} }

// Range returns count results starting at from. Negative values clamp to 0.
func Range(from, count int) Page {
	return Page{Offset: max(from, 0), Limit: max(count, 0), limited: true}
}

// Pager returns the page-th block of perPage results, counting from 0.
func Pager(page, perPage int) Page {
	page, perPage = max(page, 0), max(perPage, 0)
	return Page{Offset: page * perPage, Limit: perPage, limited: true}
}

func (p Page) Limited() bool { return p.limited }
