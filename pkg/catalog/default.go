package catalog

import "sync"

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// Default returns the built-in functions followed by the remote functions
// of the brewery application.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = New(Version, defaultEntries()...)
	})
	return defaultCatalog
}

func arg(name, desc string) Arg { return Arg{Name: name, Description: desc} }

func upTo(n int) *int { return &n }

var (
	argNumber = arg("number", "A number or an expression that evaluates to one")
	argPlaces = arg("places", "Decimal places, default 0")
	argValue  = arg("value", "Any value")
	argText   = arg("text", "A text value")
	argField  = arg("field", "A field name")
)

func defaultEntries() []Entry {
	return []Entry{
		// Math
		{Name: "ABS", MinArgs: 1, MaxArgs: upTo(1), Signature: "ABS(number)", Description: "Absolute value", Args: []Arg{argNumber}},
		{Name: "ROUND", MinArgs: 1, MaxArgs: upTo(2), Signature: "ROUND(number, [places])", Description: "Round half away from zero", Args: []Arg{argNumber, argPlaces}},
		{Name: "ROUNDUP", MinArgs: 1, MaxArgs: upTo(2), Signature: "ROUNDUP(number, [places])", Description: "Round away from zero", Args: []Arg{argNumber, argPlaces}},
		{Name: "ROUNDDOWN", MinArgs: 1, MaxArgs: upTo(2), Signature: "ROUNDDOWN(number, [places])", Description: "Round toward zero", Args: []Arg{argNumber, argPlaces}},
		{Name: "FLOOR", MinArgs: 1, MaxArgs: upTo(1), Signature: "FLOOR(number)", Description: "Largest integer not greater than number", Args: []Arg{argNumber}},
		{Name: "CEIL", MinArgs: 1, MaxArgs: upTo(1), Signature: "CEIL(number)", Description: "Smallest integer not less than number", Args: []Arg{argNumber}},
		{Name: "SQRT", MinArgs: 1, MaxArgs: upTo(1), Signature: "SQRT(number)", Description: "Square root", Args: []Arg{argNumber}},
		{Name: "POWER", MinArgs: 2, MaxArgs: upTo(2), Signature: "POWER(base, exponent)", Description: "base raised to exponent",
			Args: []Arg{arg("base", "The base"), arg("exponent", "The exponent")}},
		{Name: "MOD", MinArgs: 2, MaxArgs: upTo(2), Signature: "MOD(number, divisor)", Description: "Remainder with the sign of the divisor",
			Args: []Arg{argNumber, arg("divisor", "The divisor, not zero")}},
		{Name: "MIN", MinArgs: 1, Signature: "MIN(number, ...)", Description: "Smallest argument, blanks skipped", Args: []Arg{argNumber}},
		{Name: "MAX", MinArgs: 1, Signature: "MAX(number, ...)", Description: "Largest argument, blanks skipped", Args: []Arg{argNumber}},
		{Name: "SUM", MinArgs: 1, Signature: "SUM(number, ...)", Description: "Sum of the arguments, blanks skipped", Args: []Arg{argNumber}},
		{Name: "AVG", MinArgs: 1, Signature: "AVG(number, ...)", Description: "Mean of the arguments, blanks skipped", Args: []Arg{argNumber}},

		// Logic
		{Name: "IF", MinArgs: 2, MaxArgs: upTo(3), Signature: "IF(condition, then, [else])", Description: "then when condition is truthy, else otherwise",
			Args: []Arg{arg("condition", "Any value"), arg("then", "Result when truthy"), arg("else", "Result when falsy, default false")}},
		{Name: "AND", MinArgs: 1, Signature: "AND(value, ...)", Description: "True when every argument is truthy", Args: []Arg{argValue}},
		{Name: "OR", MinArgs: 1, Signature: "OR(value, ...)", Description: "True when any argument is truthy", Args: []Arg{argValue}},
		{Name: "NOT", MinArgs: 1, MaxArgs: upTo(1), Signature: "NOT(value)", Description: "Logical negation", Args: []Arg{argValue}},
		{Name: "COALESCE", MinArgs: 1, Signature: "COALESCE(value, ...)", Description: "First argument that is not blank", Args: []Arg{argValue}},
		{Name: "ISBLANK", MinArgs: 1, MaxArgs: upTo(1), Signature: "ISBLANK(value)", Description: "True for null, missing and empty text", Args: []Arg{argValue}},

		// Text
		{Name: "CONCAT", Signature: "CONCAT(value, ...)", Description: "Join the arguments as text", Args: []Arg{argValue}},
		{Name: "LEN", MinArgs: 1, MaxArgs: upTo(1), Signature: "LEN(text)", Description: "Number of characters", Args: []Arg{argText}},
		{Name: "UPPER", MinArgs: 1, MaxArgs: upTo(1), Signature: "UPPER(text)", Description: "Upper-case text", Args: []Arg{argText}},
		{Name: "LOWER", MinArgs: 1, MaxArgs: upTo(1), Signature: "LOWER(text)", Description: "Lower-case text", Args: []Arg{argText}},
		{Name: "TRIM", MinArgs: 1, MaxArgs: upTo(1), Signature: "TRIM(text)", Description: "Strip leading and trailing spaces", Args: []Arg{argText}},
		{Name: "LEFT", MinArgs: 1, MaxArgs: upTo(2), Signature: "LEFT(text, [count])", Description: "First characters of text",
			Args: []Arg{argText, arg("count", "Characters to take, default 1")}},
		{Name: "RIGHT", MinArgs: 1, MaxArgs: upTo(2), Signature: "RIGHT(text, [count])", Description: "Last characters of text",
			Args: []Arg{argText, arg("count", "Characters to take, default 1")}},
		{Name: "TEXT", MinArgs: 1, MaxArgs: upTo(2), Signature: "TEXT(value, [places])", Description: "Render as text, numbers with fixed decimals",
			Args: []Arg{argValue, argPlaces}},
		{Name: "NUMBER", MinArgs: 1, MaxArgs: upTo(1), Signature: "NUMBER(text)", Description: "Parse text as a number", Args: []Arg{argText}},

		// Row set
		{Name: "COLSUM", MinArgs: 1, MaxArgs: upTo(1), Signature: "COLSUM(field)", Description: "Sum of a field over all rows", Args: []Arg{argField}},
		{Name: "COLAVG", MinArgs: 1, MaxArgs: upTo(1), Signature: "COLAVG(field)", Description: "Mean of a field over all rows", Args: []Arg{argField}},
		{Name: "COLMIN", MinArgs: 1, MaxArgs: upTo(1), Signature: "COLMIN(field)", Description: "Smallest value of a field over all rows", Args: []Arg{argField}},
		{Name: "COLMAX", MinArgs: 1, MaxArgs: upTo(1), Signature: "COLMAX(field)", Description: "Largest value of a field over all rows", Args: []Arg{argField}},
		{Name: "COLCOUNT", MinArgs: 1, MaxArgs: upTo(1), Signature: "COLCOUNT(field)", Description: "Rows where the field is not blank", Args: []Arg{argField}},
		{Name: "ROWCOUNT", MaxArgs: upTo(0), Signature: "ROWCOUNT()", Description: "Number of rows in the grid"},
		{Name: "ROWINDEX", MaxArgs: upTo(0), Signature: "ROWINDEX()", Description: "Zero-based position of the current row, -1 if unknown"},

		// Remote
		{Name: "INVENTORY_ON_HAND", MinArgs: 1, MaxArgs: upTo(1), Signature: "INVENTORY_ON_HAND(ingredient_id)", Remote: true,
			Description: "Quantity of an ingredient currently in stock",
			Args:        []Arg{arg("ingredient_id", "Ingredient identifier")}},
		{Name: "EST_IBU", MinArgs: 1, MaxArgs: upTo(1), Signature: "EST_IBU(recipe_id)", Remote: true,
			Description: "Estimated bitterness of a recipe in IBU",
			Args:        []Arg{arg("recipe_id", "Recipe identifier")}},
		{Name: "EST_OG", MinArgs: 1, MaxArgs: upTo(1), Signature: "EST_OG(recipe_id)", Remote: true,
			Description: "Estimated original gravity of a recipe",
			Args:        []Arg{arg("recipe_id", "Recipe identifier")}},
	}
}
