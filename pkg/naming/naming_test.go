package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Book", want: []string{"Book"}},
		{in: "BookAuthor", want: []string{"Book", "Author"}},
		{in: "publishedAt", want: []string{"published", "At"}},
		{in: "ISBNCode", want: []string{"ISBN", "Code"}},
		{in: "first_name", want: []string{"first", "name"}},
		{in: "address2Line", want: []string{"address2", "Line"}},
		{in: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Words(tt.in))
		})
	}
}

func TestSnake(t *testing.T) {
	assert.Equal(t, "book_author", Snake("BookAuthor"))
	assert.Equal(t, "author", Snake("author"))
	assert.Equal(t, "isbn_code", Snake("ISBNCode"))
	assert.Equal(t, "authors", Snake("Authors"))
}

func TestFriendly(t *testing.T) {
	assert.Equal(t, "Published At", Friendly("publishedAt"))
	assert.Equal(t, "Book Author", Friendly("BookAuthor"))
	assert.Equal(t, "ISBN Code", Friendly("ISBNCode"))
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"Author":     "Authors",
		"Book":       "Books",
		"Tag":        "Tags",
		"Category":   "Categories",
		"Day":        "Days",
		"Box":        "Boxes",
		"Address":    "Addresses",
		"Person":     "People",
		"BookPerson": "BookPeople",
		"Knife":      "Knives",
		"Leaf":       "Leaves",
		"Series":     "Series",
		"Status":     "Statuses",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Pluralize(in))
		})
	}
}
