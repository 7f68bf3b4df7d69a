package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ipe-systems/ipe/internal/lang/lexer"
)

func kinds(tokens []lexer.Token) []lexer.Kind {
	out := make([]lexer.Kind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestEmptyInput(t *testing.T) {
	tokens := lexer.New("").Tokenize()
	assert.Len(t, tokens, 1)
	assert.Equal(t, lexer.KindEOF, tokens[0].Kind)
}

func TestKeywords(t *testing.T) {
	src := "policy triggers when requires denies with reason where metadata and or not in"
	tokens := lexer.New(src).Tokenize()

	expected := []lexer.Kind{
		lexer.KindPolicy, lexer.KindTriggers, lexer.KindWhen, lexer.KindRequires,
		lexer.KindDenies, lexer.KindWith, lexer.KindReason, lexer.KindWhere,
		lexer.KindMetadata, lexer.KindAnd, lexer.KindOr, lexer.KindNot, lexer.KindIn,
		lexer.KindEOF,
	}
	assert.Equal(t, expected, kinds(tokens))
}

func TestOperators(t *testing.T) {
	tokens := lexer.New("== != < > <= >=").Tokenize()
	expected := []lexer.Kind{
		lexer.KindEq, lexer.KindNeq, lexer.KindLt, lexer.KindGt, lexer.KindLtEq, lexer.KindGtEq,
		lexer.KindEOF,
	}
	assert.Equal(t, expected, kinds(tokens))
}

func TestStringEscapes(t *testing.T) {
	tokens := lexer.New(`"hello\nworld\t\"quoted\""`).Tokenize()
	assert.Equal(t, lexer.KindStringLit, tokens[0].Kind)
	assert.Equal(t, "hello\nworld\t\"quoted\"", tokens[0].StrVal)
}

func TestUnterminatedString(t *testing.T) {
	tokens := lexer.New("\"abc\ndef\"").Tokenize()
	assert.Equal(t, lexer.KindError, tokens[0].Kind)
}

func TestNumbers(t *testing.T) {
	tokens := lexer.New("42 3.14 -1").Tokenize()
	assert.Equal(t, lexer.KindIntLit, tokens[0].Kind)
	assert.Equal(t, int64(42), tokens[0].IntVal)
	assert.Equal(t, lexer.KindFloatLit, tokens[1].Kind)
	assert.InDelta(t, 3.14, tokens[1].FloatVal, 1e-9)
}

func TestIdentifierVsKeyword(t *testing.T) {
	tokens := lexer.New("policy_name policy").Tokenize()
	assert.Equal(t, lexer.KindIdent, tokens[0].Kind)
	assert.Equal(t, "policy_name", tokens[0].StrVal)
	assert.Equal(t, lexer.KindPolicy, tokens[1].Kind)
}

func TestCommentsSkipped(t *testing.T) {
	tokens := lexer.New("policy # a trailing comment\nwhen").Tokenize()
	assert.Equal(t, []lexer.Kind{lexer.KindPolicy, lexer.KindNewline, lexer.KindWhen, lexer.KindEOF}, kinds(tokens))
}

func TestPositionTracking(t *testing.T) {
	tokens := lexer.New("policy\n  when").Tokenize()
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)
	// "when" is on line 2, col 3 (two leading spaces)
	when := tokens[2]
	assert.Equal(t, lexer.KindWhen, when.Kind)
	assert.Equal(t, 2, when.Line)
	assert.Equal(t, 3, when.Column)
}

func TestUnexpectedCharacter(t *testing.T) {
	tokens := lexer.New("@").Tokenize()
	assert.Equal(t, lexer.KindError, tokens[0].Kind)
}
