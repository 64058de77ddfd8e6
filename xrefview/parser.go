package xrefview

import (
	"fmt"
	"io"
	"strconv"
)

// ReferenceResolver is an interface for resolving indirect references.
// This allows the parser to resolve indirect stream lengths when needed.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from an io.Reader using a Lexer for tokenization.
// It supports parsing all PDF object types including indirect objects and streams.
type Parser struct {
	lexer        *Lexer
	currentToken *Token // Current token being processed
	peekToken    *Token // Next token (lookahead)
	resolver     ReferenceResolver

	// streamDataPos/streamDataLen record the most recently parsed
	// stream's raw data range, relative to this Parser's own zero point
	// (wherever its underlying reader started); streamDataSet is false
	// until parseStream has run at least once.
	streamDataPos int64
	streamDataLen int64
	streamDataSet bool
}

// StreamDataRange reports the byte range (relative to this Parser's
// reader's starting position) of the most recently parsed stream's raw
// data, and whether any stream has been parsed yet. Callers that need an
// absolute file offset add their own base seek position to offset.
func (p *Parser) StreamDataRange() (offset, length int64, ok bool) {
	return p.streamDataPos, p.streamDataLen, p.streamDataSet
}

// SetReferenceResolver sets the reference resolver for the parser.
// This is needed to resolve indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// NewParser creates a new PDF parser for the given reader.
// It initializes the lexer and loads the first two tokens for lookahead.
func NewParser(r io.Reader) *Parser {
	p := &Parser{
		lexer: NewLexer(r),
	}
	// Load first two tokens
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances the parser to the next token by shifting the lookahead.
func (p *Parser) nextToken() error {
	p.currentToken = p.peekToken

	// If we just moved "stream" into currentToken, don't try to read the next token
	// because it's binary data that can't be tokenized normally.
	// The parseStream function will handle reading the binary data directly.
	if p.currentToken != nil &&
		p.currentToken.Type == TokenKeyword &&
		string(p.currentToken.Value) == "stream" {
		p.peekToken = nil
		return nil
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peekToken = token
	return nil
}

// skipComments skips over any consecutive comment tokens.
func (p *Parser) skipComments() error {
	for p.currentToken != nil && p.currentToken.Type == TokenComment {
		if err := p.nextToken(); err != nil {
			return err
		}
	}
	return nil
}

// atKeyword reports whether the current token is the keyword want,
// without consuming it.
func (p *Parser) atKeyword(want string) bool {
	return p.currentToken != nil && p.currentToken.Type == TokenKeyword && string(p.currentToken.Value) == want
}

// expectKeyword consumes the current token if it is the keyword want, or
// errors without advancing.
func (p *Parser) expectKeyword(want string) error {
	if !p.atKeyword(want) {
		return fmt.Errorf("expected %q keyword, got %v", want, p.currentToken)
	}
	return p.nextToken()
}

// parseInt reads the current token as a decimal integer, labeled what for
// error messages, and advances past it.
func (p *Parser) parseInt(what string) (int64, error) {
	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		return 0, fmt.Errorf("expected %s, got %v", what, p.currentToken)
	}
	n, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", what, err)
	}
	return n, p.nextToken()
}

// consume advances past the current token if it has type t, identifying
// the expected construct as context in any error.
func (p *Parser) consume(t TokenType, context string) error {
	if p.currentToken == nil || p.currentToken.Type != t {
		return fmt.Errorf("expected %s, got %v", context, p.currentToken)
	}
	return p.nextToken()
}

// ParseObject parses the next PDF object: null, boolean, number, string,
// name, array, dictionary, or indirect reference (ISO 32000-2 §7.3).
func (p *Parser) ParseObject() (Object, error) {
	if err := p.skipComments(); err != nil {
		return nil, err
	}
	if p.currentToken == nil {
		return nil, fmt.Errorf("unexpected end of input")
	}

	tok := p.currentToken
	switch tok.Type {
	case TokenEOF:
		return nil, io.EOF
	case TokenKeyword:
		return p.parseLiteralKeyword(string(tok.Value))
	case TokenInteger:
		return p.parseNumber()
	case TokenReal:
		return p.finishReal(tok)
	case TokenString:
		p.nextToken()
		return String(tok.Value), nil
	case TokenHexString:
		return p.finishHexString(tok)
	case TokenName:
		p.nextToken()
		return Name(tok.Value), nil
	case TokenArrayStart:
		return p.parseArray()
	case TokenDictStart:
		return p.parseDict()
	default:
		return nil, fmt.Errorf("unexpected token type: %v at position %d", tok.Type, tok.Pos)
	}
}

// parseLiteralKeyword resolves one of the three PDF keyword literals; any
// other bare keyword here is a syntax error (the ones that head a larger
// construct - obj, stream, endobj - are consumed by their own callers and
// never reach ParseObject).
func (p *Parser) parseLiteralKeyword(keyword string) (Object, error) {
	switch keyword {
	case "null":
		return Null{}, p.nextToken()
	case "true":
		return Bool(true), p.nextToken()
	case "false":
		return Bool(false), p.nextToken()
	default:
		return nil, fmt.Errorf("unexpected keyword: %s", keyword)
	}
}

func (p *Parser) finishReal(tok *Token) (Object, error) {
	val, err := strconv.ParseFloat(string(tok.Value), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid real number: %w", err)
	}
	return Real(val), p.nextToken()
}

// finishHexString decodes a "<...>" hex string token, per ISO 32000-2
// §7.3.4.3: an odd trailing digit is treated as if followed by a 0.
func (p *Parser) finishHexString(tok *Token) (Object, error) {
	hexStr := string(tok.Value)
	if len(hexStr)%2 != 0 {
		hexStr += "0"
	}
	result := make([]byte, len(hexStr)/2)
	for i := range result {
		b, err := strconv.ParseUint(hexStr[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex string: %w", err)
		}
		result[i] = byte(b)
	}
	return String(result), p.nextToken()
}

// parseNumber parses an integer, real, or indirect reference starting at
// an integer token: "num gen R" is an IndirectRef, anything else is Int.
func (p *Parser) parseNumber() (Object, error) {
	tok := p.currentToken
	n, err := strconv.ParseInt(string(tok.Value), 10, 64)
	if err != nil {
		return p.finishReal(tok)
	}
	if obj, ok, err := p.lookaheadIndirectRef(n); err != nil || ok {
		return obj, err
	}
	return Int(n), p.nextToken()
}

// lookaheadIndirectRef checks for "gen R" following an integer already in
// currentToken. On a match it consumes all three tokens and returns the
// reference with ok true. If a second integer is present but not followed
// by R, the parser is left positioned at that second integer (it is
// consumed once, not twice) and ok is still true, since Int(num) is
// already the object to return and the caller must not advance further.
func (p *Parser) lookaheadIndirectRef(num int64) (Object, bool, error) {
	if p.peekToken == nil || p.peekToken.Type != TokenInteger {
		return nil, false, nil
	}
	gen, err := strconv.ParseInt(string(p.peekToken.Value), 10, 64)
	if err != nil {
		return nil, false, nil
	}

	if err := p.nextToken(); err != nil { // now at the second integer
		return nil, false, err
	}
	if p.peekToken == nil || p.peekToken.Type != TokenIndirectRef {
		return Int(num), true, nil
	}
	if err := p.nextToken(); err != nil { // now at "R"
		return nil, false, err
	}
	if err := p.nextToken(); err != nil { // past "R"
		return nil, false, err
	}
	return IndirectRef{Number: int(num), Generation: int(gen)}, true, nil
}

// parseArray parses "[ obj obj ... ]" (ISO 32000-2 §7.3.6).
func (p *Parser) parseArray() (Object, error) {
	if err := p.consume(TokenArrayStart, "'['"); err != nil {
		return nil, err
	}

	var arr Array
	for {
		if err := p.skipComments(); err != nil {
			return nil, err
		}
		switch {
		case p.currentToken == nil:
			return nil, fmt.Errorf("unexpected end of input in array")
		case p.currentToken.Type == TokenArrayEnd:
			return arr, p.nextToken()
		case p.currentToken.Type == TokenEOF:
			return nil, fmt.Errorf("unexpected EOF in array")
		}

		obj, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("error parsing array element: %w", err)
		}
		arr = append(arr, obj)
	}
}

// parseDict parses "<< /Key value ... >>" (ISO 32000-2 §7.3.7).
func (p *Parser) parseDict() (Object, error) {
	if err := p.consume(TokenDictStart, "'<<'"); err != nil {
		return nil, err
	}

	dict := NewDict()
	for {
		if err := p.skipComments(); err != nil {
			return nil, err
		}
		switch {
		case p.currentToken == nil:
			return nil, fmt.Errorf("unexpected end of input in dictionary")
		case p.currentToken.Type == TokenDictEnd:
			return dict, p.nextToken()
		case p.currentToken.Type == TokenEOF:
			return nil, fmt.Errorf("unexpected EOF in dictionary")
		case p.currentToken.Type != TokenName:
			return nil, fmt.Errorf("expected name for dictionary key, got %v", p.currentToken.Type)
		}

		key := Name(p.currentToken.Value)
		if err := p.nextToken(); err != nil {
			return nil, err
		}

		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("error parsing dictionary value for key '%s': %w", key, err)
		}
		dict = dict.Set(key, value)
	}
}

// ParseIndirectObject parses "num gen obj <value> endobj", or
// "num gen obj <dict> stream ... endstream endobj" when the value is
// followed by a stream body (ISO 32000-2 §7.3.10, §7.3.8).
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	if err := p.skipComments(); err != nil {
		return nil, err
	}

	num, err := p.parseInt("object number")
	if err != nil {
		return nil, err
	}
	gen, err := p.parseInt("generation number")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("obj"); err != nil {
		return nil, err
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("error parsing indirect object value: %w", err)
	}

	if p.atKeyword("stream") {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, fmt.Errorf("stream must follow a dictionary")
		}
		stream, err := p.parseStream(dict)
		if err != nil {
			return nil, fmt.Errorf("error parsing stream: %w", err)
		}
		obj = stream
	}

	if err := p.expectKeyword("endobj"); err != nil {
		return nil, err
	}

	return &IndirectObject{
		Ref:    IndirectRef{Number: int(num), Generation: int(gen)},
		Object: obj,
	}, nil
}

// parseStream parses a stream body following the "stream" keyword,
// reading exactly the number of bytes its dictionary's /Length entry
// names (ISO 32000-2 §7.3.8.2).
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	if !p.atKeyword("stream") {
		return nil, fmt.Errorf("expected 'stream' keyword")
	}

	length, err := p.streamLength(dict)
	if err != nil {
		return nil, err
	}

	// nextToken stopped loading peekToken the moment "stream" became
	// currentToken, so the lexer sits right after the keyword; only the
	// mandatory EOL (§7.3.8.1) separates it from the raw data.
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, fmt.Errorf("failed to skip EOL after stream keyword: %w", err)
	}

	// Recorded before the eager read below so a caller can build a lazy,
	// input-backed data source instead of keeping these bytes resident.
	p.streamDataPos = p.lexer.pos
	p.streamDataLen = int64(length)
	p.streamDataSet = true

	data, err := p.lexer.ReadBytes(length)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream data: %w", err)
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		return nil, fmt.Errorf("failed to read token after stream data: %w", err)
	}
	if token.Type != TokenKeyword || string(token.Value) != "endstream" {
		return nil, fmt.Errorf("expected 'endstream' keyword, got %v (%s)", token.Type, string(token.Value))
	}

	// Reload lookahead so ParseIndirectObject's subsequent expectKeyword
	// call for "endobj" sees a normal token stream again.
	p.currentToken, p.peekToken = nil, nil
	p.nextToken()
	p.nextToken()

	return &Stream{Dict: dict, Source: BufferData{Bytes: data}}, nil
}

// streamLength resolves a stream dictionary's /Length entry to a byte
// count, following an indirect reference through the parser's resolver
// when the dictionary was written with the length as a forward reference.
func (p *Parser) streamLength(dict Dict) (int, error) {
	lengthObj := dict.Get("Length")
	if lengthObj == nil {
		return 0, fmt.Errorf("stream dictionary missing 'Length' entry")
	}

	var length int
	switch v := lengthObj.(type) {
	case Int:
		length = int(v)
	case IndirectRef:
		if p.resolver == nil {
			return 0, fmt.Errorf("indirect reference for stream length requires a reference resolver")
		}
		resolved, err := p.resolver.ResolveReference(v)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve stream length reference: %w", err)
		}
		resolvedInt, ok := resolved.(Int)
		if !ok {
			return 0, fmt.Errorf("stream length reference resolved to %T, expected Int", resolved)
		}
		length = int(resolvedInt)
	default:
		return 0, fmt.Errorf("invalid type for stream length: %T", lengthObj)
	}

	if length < 0 {
		return 0, fmt.Errorf("invalid stream length: %d", length)
	}
	return length, nil
}
