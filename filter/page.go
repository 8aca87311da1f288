package filter

import (
	"fmt"
	"slices"
)

// DefaultPerPage and AllowedPerPage apply when no pagination config is given.
var (
	DefaultPerPage = 15
	AllowedPerPage = []int{10, 15, 25, 50, 100}
)

// Page selects one page of a listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Paging holds the allowed page sizes and the default one.
type Paging struct {
	Allowed []int
	Default int
}

// DefaultPaging returns the package-level defaults.
func DefaultPaging() Paging {
	return Paging{Allowed: append([]int(nil), AllowedPerPage...), Default: DefaultPerPage}
}

// Resolve clamps the page number to >= 1 and replaces sizes outside the
// allowed set with the default size.
func (p Paging) Resolve(in Page) Page {
	out := in
	if out.Number < 1 {
		out.Number = 1
	}
	if !p.AllowsSize(out.Size) {
		out.Size = p.Default
	}
	if out.Size < 1 {
		out.Size = DefaultPerPage
	}
	return out
}

func (p Paging) AllowsSize(size int) bool {
	if len(p.Allowed) == 0 {
		return size > 0
	}
	return slices.Contains(p.Allowed, size)
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

func (p Page) CacheKey() string {
	return fmt.Sprintf("page{%d/%d}", p.Number, p.Size)
}
