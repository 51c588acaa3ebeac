// Package paginator разбивает выборку постов на страницы по номеру страницы.
package paginator

import (
	"errors"
	"strconv"
)

// PostsPerPage - сколько постов показывается на одной странице.
const PostsPerPage = 10

// Page описывает одну страницу выборки из Total элементов.
type Page struct {
	Number   int
	NumPages int
	PerPage  int
	Total    int
}

// New возвращает страницу rawPage (значение параметра ?page=).
// Нечисловой номер дает первую страницу. Номер вне диапазона (меньше
// единицы, больше последнего или не влезающий в int) дает последнюю.
// Пустая выборка - одна пустая страница.
func New(total, perPage int, rawPage string) Page {
	if perPage <= 0 {
		perPage = PostsPerPage
	}
	numPages := (total + perPage - 1) / perPage
	if numPages == 0 {
		numPages = 1
	}
	number, err := strconv.Atoi(rawPage)
	switch {
	case errors.Is(err, strconv.ErrRange):
		number = numPages
	case err != nil:
		number = 1
	case number < 1 || number > numPages:
		number = numPages
	}
	return Page{Number: number, NumPages: numPages, PerPage: perPage, Total: total}
}

// Offset - индекс первого элемента страницы.
func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// Limit - максимальный размер страницы.
func (p Page) Limit() int { return p.PerPage }

func (p Page) HasNext() bool     { return p.Number < p.NumPages }
func (p Page) HasPrevious() bool { return p.Number > 1 }
func (p Page) HasOtherPages() bool {
	return p.HasNext() || p.HasPrevious()
}
func (p Page) NextNumber() int     { return p.Number + 1 }
func (p Page) PreviousNumber() int { return p.Number - 1 }

// Range возвращает номера всех страниц, для шаблона навигации.
func (p Page) Range() []int {
	out := make([]int, p.NumPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
