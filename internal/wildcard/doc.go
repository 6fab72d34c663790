// Package wildcard loads tag -> candidate lists and expands bracketed tags in
// prompt templates.
//
// A template such as "a [STYLE] [TYPE] character" has each "[TAG]" replaced by
// a random line from the TAG list, and the chosen line is expanded again, up
// to a recursion depth. Unknown tags are left as written.
package wildcard
