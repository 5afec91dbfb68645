// Package grammar defines the token grammar shared by every clause parser.
//
// Clause syntax:
//
//	Clause  Between items        Within item              Example
//	------  -------------        -----------              -------
//	Filter  & (distinct keys)    , (value list)           status=active,pending
//	Select  ,                    ; or " as " (alias)      sum(price);total
//	Order   ,                    : (field:direction)      name:asc,created_at:desc
//	Group   ,                    -                        status,role
//
// Identifiers match ^[A-Za-z_][A-Za-z0-9_]*$ in full. There is no escaping:
// separator characters can never be part of an identifier, so input that
// would need one is a syntax error rather than a guess.
//
// The grammar knows nothing about models. It only decides whether text is
// well formed and hands back raw tokens; clause parsers validate them
// against a schema descriptor.
package grammar
