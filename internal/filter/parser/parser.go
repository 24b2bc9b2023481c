package parser

import (
	"fmt"
	"strings"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	if e.Token.Type == TokenEOF {
		return fmt.Sprintf("parse error at position %d: %s (got end of input)", e.Position, e.Message)
	}
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses filter expressions into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a filter expression. Empty or whitespace-only input yields
// MatchAll. On failure the error is a *ParseError and no AST is returned.
func Parse(input string) (Expression, error) {
	return NewParser(input).ParseFilter()
}

// MustParse is like Parse but panics on error.
func MustParse(input string) Expression {
	expr, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return expr
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) *ParseError {
	msg := fmt.Sprintf(format, args...)
	if p.curTokenIs(TokenError) {
		msg = "invalid token: " + msg
	}
	return &ParseError{
		Message:  msg,
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// ParseFilter parses the whole input as one filter expression.
func (p *Parser) ParseFilter() (Expression, error) {
	if p.curTokenIs(TokenEOF) {
		return &MatchAll{}, nil
	}

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected token after expression")
	}
	return expr, nil
}

// Operator precedence levels
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precGroup   = 5
	precPrimary = 6
)

// getPrecedence returns the precedence of the current token.
func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	default:
		return precLowest
	}
}

// parseExpression parses an expression with operator precedence. Only AND
// and OR are infix at this level; comparisons are parsed as whole predicates.
func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for precedence < p.getPrecedence() {
		left, err = p.parseBinaryExpression(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

// parsePrefixExpression parses NOT, a parenthesized group or a predicate.
func (p *Parser) parsePrefixExpression() (Expression, error) {
	switch p.curToken.Type {
	case TokenNot:
		return p.parseNotExpression()
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenIdent, TokenNumber, TokenString, TokenTrue, TokenFalse:
		return p.parsePredicate()
	case TokenEOF:
		return nil, p.errorf("unexpected end of input")
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

// parseBinaryExpression parses the right operand of AND/OR. Passing the
// operator's own precedence makes both operators left-associative.
func (p *Parser) parseBinaryExpression(left Expression) (Expression, error) {
	tok := p.curToken
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	if tok.Type == TokenAnd {
		return &AndExpr{Left: left, Right: right}, nil
	}
	return &OrExpr{Left: left, Right: right}, nil
}

// parseNotExpression parses a NOT expression.
func (p *Parser) parseNotExpression() (Expression, error) {
	p.nextToken() // Skip NOT

	expr, err := p.parseExpression(precNot)
	if err != nil {
		return nil, err
	}

	return &NotExpr{Operand: expr}, nil
}

// parseGroupedExpression parses a parenthesized expression.
func (p *Parser) parseGroupedExpression() (Expression, error) {
	p.nextToken() // Skip (

	if p.curTokenIs(TokenRParen) {
		return nil, p.errorf("empty parentheses")
	}

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected )")
	}
	p.nextToken()

	return &GroupExpr{Inner: expr}, nil
}

// parsePredicate parses a comparison, IN or LIKE predicate. Exactly one side
// of a comparison must be an identifier.
func (p *Parser) parsePredicate() (Expression, error) {
	startTok := p.curToken
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch p.curToken.Type {
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		return p.parseComparison(startTok, left)
	case TokenIn:
		key, err := p.requireIdentifier(startTok, left, "IN")
		if err != nil {
			return nil, err
		}
		return p.parseInExpression(key, false)
	case TokenLike:
		key, err := p.requireIdentifier(startTok, left, "LIKE")
		if err != nil {
			return nil, err
		}
		return p.parseLikeExpression(key, false)
	case TokenNot:
		key, err := p.requireIdentifier(startTok, left, "NOT")
		if err != nil {
			return nil, err
		}
		return p.parseNotInfix(key)
	default:
		return nil, p.errorf("expected comparison operator, IN or LIKE")
	}
}

// parseOperand parses an identifier or a literal.
func (p *Parser) parseOperand() (Expression, error) {
	tok := p.curToken
	switch tok.Type {
	case TokenIdent:
		p.nextToken()
		return &Identifier{Name: tok.Literal}, nil
	case TokenNumber:
		p.nextToken()
		return numberLiteral(tok.Literal), nil
	case TokenString:
		p.nextToken()
		return NewString(tok.Literal), nil
	case TokenTrue:
		p.nextToken()
		return NewBool(true), nil
	case TokenFalse:
		p.nextToken()
		return NewBool(false), nil
	default:
		return nil, p.errorf("expected identifier or literal")
	}
}

// parseLiteral parses a literal, rejecting identifiers.
func (p *Parser) parseLiteral() (*Literal, error) {
	if p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected literal")
	}
	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return operand.(*Literal), nil
}

func numberLiteral(text string) *Literal {
	if strings.ContainsAny(text, ".eE") {
		return &Literal{Kind: LiteralDecimal, Text: text}
	}
	return &Literal{Kind: LiteralInteger, Text: text}
}

func compareOp(t TokenType) CompareOp {
	switch t {
	case TokenNe:
		return OpNe
	case TokenLt:
		return OpLt
	case TokenGt:
		return OpGt
	case TokenLe:
		return OpLe
	case TokenGe:
		return OpGe
	default:
		return OpEq
	}
}

// parseComparison parses the right side of a comparison and normalizes it so
// the identifier is on the left.
func (p *Parser) parseComparison(startTok Token, left Expression) (Expression, error) {
	op := compareOp(p.curToken.Type)
	p.nextToken()

	rightTok := p.curToken
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	leftID, leftIsID := left.(*Identifier)
	rightID, rightIsID := right.(*Identifier)
	switch {
	case leftIsID && rightIsID:
		return nil, &ParseError{Message: "comparison between two identifiers", Position: rightTok.Pos, Token: rightTok}
	case leftIsID:
		return &CompareExpr{Op: op, Key: leftID, Value: right.(*Literal)}, nil
	case rightIsID:
		return &CompareExpr{Op: op.Flip(), Key: rightID, Value: left.(*Literal)}, nil
	default:
		return nil, &ParseError{Message: "comparison between two literals", Position: startTok.Pos, Token: startTok}
	}
}

func (p *Parser) requireIdentifier(startTok Token, operand Expression, keyword string) (*Identifier, error) {
	id, ok := operand.(*Identifier)
	if !ok {
		return nil, &ParseError{
			Message:  fmt.Sprintf("left side of %s must be an identifier", keyword),
			Position: startTok.Pos,
			Token:    startTok,
		}
	}
	return id, nil
}

// parseInExpression parses an IN list.
func (p *Parser) parseInExpression(key *Identifier, not bool) (Expression, error) {
	p.nextToken() // Skip IN

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after IN")
	}
	p.nextToken()

	var values []*Literal
	for {
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after IN values")
	}
	p.nextToken()

	var expr Expression = &InExpr{Key: key, Values: values}
	if not {
		expr = &NotExpr{Operand: expr}
	}
	return expr, nil
}

// parseLikeExpression parses a LIKE pattern, which must be a string.
func (p *Parser) parseLikeExpression(key *Identifier, not bool) (Expression, error) {
	p.nextToken() // Skip LIKE

	if !p.curTokenIs(TokenString) {
		return nil, p.errorf("expected string pattern after LIKE")
	}
	pattern := NewString(p.curToken.Literal)
	p.nextToken()

	var expr Expression = &LikeExpr{Key: key, Pattern: pattern}
	if not {
		expr = &NotExpr{Operand: expr}
	}
	return expr, nil
}

// parseNotInfix parses NOT IN and NOT LIKE, which are shorthand for a
// negated IN or LIKE predicate.
func (p *Parser) parseNotInfix(key *Identifier) (Expression, error) {
	p.nextToken() // Skip NOT

	switch p.curToken.Type {
	case TokenIn:
		return p.parseInExpression(key, true)
	case TokenLike:
		return p.parseLikeExpression(key, true)
	default:
		return nil, p.errorf("expected IN or LIKE after NOT")
	}
}
