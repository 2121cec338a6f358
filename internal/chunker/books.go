package chunker

// BookTitles maps a book identifier to its title in the edition.
var BookTitles = map[string]string{
	"I":   "Histoire et généalogie",
	"II":  "Organisation administrative",
	"III": "Culte et Bienfaisance",
	"IV":  "Institutions scientifiques",
}

// BookTitle returns the title for book, or "" when the book is unknown.
func BookTitle(book string) string {
	return BookTitles[book]
}
