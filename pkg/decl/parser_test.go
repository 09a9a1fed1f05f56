package decl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Declaration
	}{
		{
			name:  "bare type",
			input: "integer",
			want:  Declaration{Type: "integer"},
		},
		{
			name:  "sized required",
			input: "string(100)!",
			want:  Declaration{Type: "string", Size: intPtr(100), Required: true},
		},
		{
			name:  "leading required",
			input: "!string(100)",
			want:  Declaration{Type: "string", Size: intPtr(100), Required: true},
		},
		{
			name:  "generated",
			input: "integer+",
			want:  Declaration{Type: "integer", Generated: true},
		},
		{
			name:  "precision and scale",
			input: "decimal(10,2)",
			want:  Declaration{Type: "decimal", Size: intPtr(10), Size2: intPtr(2)},
		},
		{
			name:  "reference with reverse",
			input: "#Author.books",
			want:  Declaration{Type: "Author", Virtual: true, Reverse: "books"},
		},
		{
			name:  "multi-valued reference",
			input: "#Tag[]",
			want:  Declaration{Type: "Tag", Virtual: true, Multiple: true},
		},
		{
			name:  "multi-valued reference with reverse",
			input: "#Tag[].books",
			want:  Declaration{Type: "Tag", Virtual: true, Multiple: true, Reverse: "books"},
		},
		{
			name:  "multi-valued scalar",
			input: "string[](40)",
			want:  Declaration{Type: "string", Multiple: true, Size: intPtr(40)},
		},
		{
			name:  "flags before select",
			input: "string(255)!+ -> target.reverseProp",
			want: Declaration{
				Type: "string", Size: intPtr(255), Required: true, Generated: true,
				Select: "target.reverseProp",
			},
		},
		{
			name:  "reverse and select",
			input: "#Author.books->name",
			want:  Declaration{Type: "Author", Virtual: true, Reverse: "books", Select: "name"},
		},
		{
			name:  "comment",
			input: "text! // long description",
			want:  Declaration{Type: "text", Required: true, Comment: "long description"},
		},
		{
			name:  "single path segment",
			input: "#Country(Publisher.address->country)",
			want: Declaration{
				Type: "Country", Virtual: true,
				Path: []PathSegment{{Type: "Publisher", Property: "address", Forward: "country"}},
			},
		},
		{
			name:  "multi hop path",
			input: "#Author[](Chapter.book Book->author)",
			want: Declaration{
				Type: "Author", Virtual: true, Multiple: true,
				Path: []PathSegment{
					{Type: "Chapter", Property: "book"},
					{Type: "Book", Forward: "author"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantMsg   string
		wantToken string
	}{
		{name: "empty", input: "", wantMsg: "expected type name, got end of input"},
		{name: "unclosed size", input: "string(10", wantMsg: "unclosed '('"},
		{name: "unclosed path", input: "#A(B.c", wantMsg: "unclosed '('"},
		{name: "empty parens", input: "string()", wantMsg: "empty parentheses"},
		{name: "size2 without comma", input: "decimal(10 2)", wantMsg: "expected ')'", wantToken: "2"},
		{name: "zero size", input: "string(0)", wantMsg: "size must be positive"},
		{name: "duplicate bang", input: "string!!", wantMsg: "duplicate '!'"},
		{name: "duplicate plus", input: "integer++", wantMsg: "duplicate '+'"},
		{name: "trailing ident", input: "string extra", wantMsg: "unexpected IDENT", wantToken: "extra"},
		{name: "unterminated brackets", input: "#Tag[", wantMsg: "expected ']'"},
		{name: "double reverse", input: "#A.b.c", wantMsg: "unexpected '.'"},
		{name: "dangling arrow", input: "#A->", wantMsg: "expected select property"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			if tt.wantToken != "" {
				assert.Equal(t, tt.wantToken, perr.Token.Value)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("string(10) foo")
	require.Error(t, err)

	var derr Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 12, derr.Position().Column)
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{
		"string(255)!+ -> target.reverseProp",
		"#Author[](Chapter.book Book->author).fans",
		"decimal(12,4)! // price",
	}
	for _, in := range inputs {
		first, err := Parse(in)
		require.NoError(t, err)
		second, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, first, second, in)
	}
}

func TestDeclaration_StringRoundTrip(t *testing.T) {
	inputs := []string{
		"integer",
		"string(100)!",
		"decimal(10,2)+",
		"#Author.books",
		"#Tag[]",
		"#Author[](Chapter.book Book->author).fans->name!",
		"text // notes",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			d, err := Parse(in)
			require.NoError(t, err)

			again, err := Parse(d.String())
			require.NoError(t, err)
			assert.Equal(t, d, again)
		})
	}
}
