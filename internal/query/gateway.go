// Package query implements the restricted gateway in front of the execution
// engine. Every externally supplied statement passes through Validate before
// it may touch the store: only a single read-only SELECT is admitted, and the
// result size is always bounded by an explicit LIMIT/OFFSET clause.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"weather-query-service/pkg/metrics"
)

// RejectionKind classifies why the gateway refused a statement
type RejectionKind int

const (
	NotReadOnly RejectionKind = iota
	MultiStatement
	LimitOutOfRange
	OffsetOutOfRange
)

func (k RejectionKind) String() string {
	switch k {
	case NotReadOnly:
		return "not_read_only"
	case MultiStatement:
		return "multi_statement"
	case LimitOutOfRange:
		return "limit_out_of_range"
	case OffsetOutOfRange:
		return "offset_out_of_range"
	default:
		return "unknown"
	}
}

// RejectionError is returned when a statement is refused before execution
type RejectionError struct {
	Kind   RejectionKind
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// IsTransient returns false as rejections are deterministic
func (e *RejectionError) IsTransient() bool {
	return false
}

// Default and ceiling for the result-size bound
const (
	DefaultLimit = 200
	MaxLimit     = 10000
)

// forbidden keywords that are syntactically reachable from a SELECT on some
// engines but escape the read-only contract
var forbiddenKeywords = map[string]struct{}{
	"pragma": {},
	"attach": {},
	"detach": {},
	"vacuum": {},
}

// QuerySpec is a validated, canonical read request. Statement carries the
// normalized bound clause, so equal specs produce byte-equal statements.
type QuerySpec struct {
	Statement string
	Limit     int
	Offset    int
}

// Gateway validates and canonicalizes read-only statements. It is pure: the
// only side effect is audit logging of rejections, which records the
// statement's hash rather than its text.
type Gateway struct {
	logger       zerolog.Logger
	metrics      *metrics.Collector
	defaultLimit int
	maxLimit     int
}

// NewGateway creates a gateway with the given result-size bounds. Zero values
// fall back to the package defaults.
func NewGateway(logger zerolog.Logger, metricsCollector *metrics.Collector, defaultLimit, maxLimit int) *Gateway {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	return &Gateway{
		logger:       logger,
		metrics:      metricsCollector,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Validate checks a raw statement and returns its canonical QuerySpec.
// limit == 0 selects the default limit. The execution engine never receives a
// statement that did not come out of this function.
func (g *Gateway) Validate(raw string, limit, offset int) (*QuerySpec, error) {
	if limit == 0 {
		limit = g.defaultLimit
	}
	if limit < 1 || limit > g.maxLimit {
		return nil, g.reject(raw, LimitOutOfRange,
			fmt.Sprintf("limit must be between 1 and %d, got %d", g.maxLimit, limit))
	}
	if offset < 0 {
		return nil, g.reject(raw, OffsetOutOfRange,
			fmt.Sprintf("offset must be non-negative, got %d", offset))
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, g.reject(raw, NotReadOnly, "empty statement")
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, g.reject(raw, NotReadOnly, fmt.Sprintf("malformed statement: %v", err))
	}
	if len(tokens) == 0 {
		return nil, g.reject(raw, NotReadOnly, "statement contains no tokens")
	}

	first := tokens[0]
	if first.kind != tokenWord || first.fold() != "select" {
		return nil, g.reject(raw, NotReadOnly,
			"only read-only SELECT statements are allowed")
	}

	for _, t := range tokens {
		if t.kind == tokenPunct && t.text == ";" {
			return nil, g.reject(raw, MultiStatement,
				"statement separators are not allowed")
		}
		if t.kind == tokenWord {
			if _, bad := forbiddenKeywords[t.fold()]; bad {
				return nil, g.reject(raw, NotReadOnly,
					fmt.Sprintf("keyword %s is not allowed in read-only queries", strings.ToUpper(t.fold())))
			}
		}
	}

	body, declaredLimit, declaredOffset, err := splitBound(trimmed, tokens)
	if err != nil {
		return nil, g.reject(raw, NotReadOnly, err.Error())
	}

	// The gateway's bound is the authoritative minimum: a declared LIMIT may
	// tighten it, down to and including zero, but never widen it.
	effectiveLimit := limit
	if declaredLimit >= 0 && declaredLimit < effectiveLimit {
		effectiveLimit = declaredLimit
	}
	effectiveOffset := offset
	if effectiveOffset == 0 && declaredOffset > 0 {
		effectiveOffset = declaredOffset
	}

	spec := &QuerySpec{
		Statement: fmt.Sprintf("%s\nLIMIT %d OFFSET %d", body, effectiveLimit, effectiveOffset),
		Limit:     effectiveLimit,
		Offset:    effectiveOffset,
	}
	return spec, nil
}

// splitBound strips a trailing top-level "LIMIT n [OFFSET m]" clause from the
// statement and returns the remaining body plus the declared bounds
// (declaredLimit is -1 when the statement carries none). A LIMIT whose bound
// is not a plain integer literal is outside the supported grammar.
func splitBound(statement string, tokens []token) (body string, declaredLimit, declaredOffset int, err error) {
	declaredLimit = -1

	depth := 0
	limitIdx := -1
	for i, t := range tokens {
		switch {
		case t.kind == tokenPunct && t.text == "(":
			depth++
		case t.kind == tokenPunct && t.text == ")":
			depth--
		case t.kind == tokenWord && depth == 0 && t.fold() == "limit":
			limitIdx = i
		}
	}
	if limitIdx < 0 {
		return strings.TrimRight(statement, " \t\n\r"), -1, 0, nil
	}

	rest := tokens[limitIdx+1:]
	if len(rest) == 0 || rest[0].kind != tokenNumber {
		return "", 0, 0, fmt.Errorf("unsupported LIMIT clause: bound must be an integer literal")
	}
	declaredLimit, err = strconv.Atoi(rest[0].text)
	if err != nil {
		return "", 0, 0, fmt.Errorf("unsupported LIMIT clause: bound must be an integer literal")
	}

	switch {
	case len(rest) == 1:
		// LIMIT n
	case len(rest) == 3 && rest[1].kind == tokenWord && rest[1].fold() == "offset" && rest[2].kind == tokenNumber:
		declaredOffset, err = strconv.Atoi(rest[2].text)
		if err != nil || declaredOffset < 0 {
			return "", 0, 0, fmt.Errorf("unsupported OFFSET clause: bound must be a non-negative integer literal")
		}
	default:
		return "", 0, 0, fmt.Errorf("unsupported trailing clause after LIMIT")
	}

	if declaredLimit < 0 {
		return "", 0, 0, fmt.Errorf("unsupported LIMIT clause: bound must be non-negative")
	}

	body = strings.TrimRight(statement[:tokens[limitIdx].pos], " \t\n\r")
	return body, declaredLimit, declaredOffset, nil
}

// reject builds the error, counts it and logs the statement hash for audit.
// The raw text never reaches the log stream.
func (g *Gateway) reject(raw string, kind RejectionKind, reason string) *RejectionError {
	g.metrics.RecordRejection(kind.String())
	g.logger.Warn().
		Str("kind", kind.String()).
		Str("statement_sha256", StatementHash(raw)).
		Str("reason", reason).
		Msg("[GATEWAY_REJECT] Statement rejected")

	return &RejectionError{Kind: kind, Reason: reason}
}

// StatementHash returns the hex SHA-256 of a statement, used for audit
// logging without exposing query text.
func StatementHash(statement string) string {
	sum := sha256.Sum256([]byte(statement))
	return hex.EncodeToString(sum[:])
}
