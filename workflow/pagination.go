package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const maxPerPage = 1000

type Page struct {
	Page    int
	PerPage int
}

type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	Total   int  `json:"total"`
	PerPage int  `json:"per_page"`
	Prev    *int `json:"prev"`
	Next    *int `json:"next"`
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 10
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// paginate Count the rows matched by query and load one page of them into dest
func paginate(query *gorm.DB, page Page, dest interface{}) (Pagination, error) {
	page = page.normalized()

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Pagination{}, fmt.Errorf("failed to count rows: %w", err)
	}
	err := query.Session(&gorm.Session{}).
		Order("id").
		Offset((page.Page - 1) * page.PerPage).
		Limit(page.PerPage).
		Find(dest).Error
	if err != nil {
		return Pagination{}, fmt.Errorf("failed to load page: %w", err)
	}

	pages := int((total + int64(page.PerPage) - 1) / int64(page.PerPage))
	result := Pagination{Page: page.Page, Pages: pages, Total: int(total), PerPage: page.PerPage}
	if page.Page > 1 {
		prev := page.Page - 1
		result.Prev = &prev
	}
	if page.Page < pages {
		next := page.Page + 1
		result.Next = &next
	}
	return result, nil
}
