package mode

// Mode selects which relevance signals a query requests.
type Mode string

// Search mode constants.
const (
	// Hybrid requests both the lexical and the vector signal.
	Hybrid   Mode = "hybrid"
	Semantic Mode = "semantic"
	Keyword  Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Keyword
}

// WantsLexical reports whether the lexical signal is requested.
func (m Mode) WantsLexical() bool { return m != Semantic }

// WantsVector reports whether the vector signal is requested.
func (m Mode) WantsVector() bool { return m != Keyword }
