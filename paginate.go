package neograph

import (
	"context"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// DefaultPageName is the query parameter name reported by a Paginator.
const DefaultPageName = "page"

// Paginator is one page of a query result together with the total it was cut from.
type Paginator struct {
	Items       model.Collection
	Total       int64
	PerPage     int
	CurrentPage int
	PageName    string
}

// LastPage returns the number of the last page, at least 1.
func (p *Paginator) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	last := int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
	return max(last, 1)
}

func (p *Paginator) HasMorePages() bool {
	return p.CurrentPage < p.LastPage()
}

func (p *Paginator) OnFirstPage() bool {
	return p.CurrentPage <= 1
}

// PageName overrides the page query parameter name reported by Paginate.
func (b *Builder) PageName(name string) *Builder {
	b.pageName = name
	return b
}

func (b *Builder) resolvePageName() string {
	if b.pageName != "" {
		return b.pageName
	}
	if b.manager.pageName != "" {
		return b.manager.pageName
	}
	return DefaultPageName
}

// Paginate counts the matching entities, then fetches the requested page.
// perPage falls back to the schema default and page to 1.
func (b *Builder) Paginate(ctx context.Context, perPage, page int, columns ...string) (*Paginator, error) {
	if b.err != nil {
		return nil, b.err
	}
	if perPage <= 0 {
		perPage = b.perPage()
	}
	if page <= 0 {
		page = 1
	}

	total, err := b.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not count page total: %w", err)
	}

	items := model.Collection{}
	if total > int64((page-1)*perPage) {
		window := b.Clone()
		window.query.ForPage(page, perPage)
		items, err = window.Get(ctx, columns...)
		if err != nil {
			return nil, err
		}
	}

	return &Paginator{
		Items:       items,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		PageName:    b.resolvePageName(),
	}, nil
}
