package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTokenDecoding  = errors.New("token bytes match no known category")
	ErrUnknownSymbol  = errors.New("symbol is not registered in the token catalog")
	ErrIntegerRange   = errors.New("integer is outside the encodable range -8192..8191")
	ErrDuplicateToken = errors.New("token or symbol is already registered")
)

// Token is the atomic DAIDE wire unit: exactly two bytes, stored here as
// the big-endian uint16 they spell on the wire.
type Token uint16

// Integer tokens occupy the whole space below the keyword categories.
const integerCategoryLimit = 0x40

// Keyword category bytes. Provinces span 0x50-0x57, one category byte per
// terrain kind so clients can classify a province without a map lookup.
const (
	CatBrackets   = 0x40
	CatPowers     = 0x41
	CatUnitTypes  = 0x42
	CatOrders     = 0x43
	CatOrderNotes = 0x44
	CatResults    = 0x45
	CatCoasts     = 0x46
	CatSeasons    = 0x47
	CatCommands   = 0x48
	CatParameters = 0x49
	CatPress      = 0x4A
	CatText       = 0x4B

	CatProvinceInlandNonSC  = 0x50
	CatProvinceInlandSC     = 0x51
	CatProvinceSeaNonSC     = 0x52
	CatProvinceSeaSC        = 0x53
	CatProvinceCoastalNonSC = 0x54
	CatProvinceCoastalSC    = 0x55
	CatProvinceBicoastNonSC = 0x56
	CatProvinceBicoastSC    = 0x57
)

const (
	// MinInteger and MaxInteger bound the values an integer token can carry.
	MinInteger = -8192
	MaxInteger = 8191

	integerBias = 16384
)

// FromInt encodes a signed integer as a token. Values outside
// [-8192, 8191] fail with ErrIntegerRange.
func FromInt(n int) (Token, error) {
	if n < MinInteger || n > MaxInteger {
		return 0, fmt.Errorf("cannot encode %d: %w", n, ErrIntegerRange)
	}

	if n < 0 {
		n += integerBias
	}

	return Token(n), nil
}

// Text encodes a single ASCII character as a token.
func Text(ch byte) Token {
	return Token(CatText)<<8 | Token(ch)
}

// FromSymbol encodes a registered keyword string. Unregistered strings
// fail with ErrUnknownSymbol.
func FromSymbol(s string) (Token, error) {
	t, ok := catalog.byName[s]
	if !ok {
		return 0, fmt.Errorf("cannot encode %q: %w", s, ErrUnknownSymbol)
	}

	return t, nil
}

// Decode converts a wire byte pair into a token. The pair must belong to
// one of the three encodings: integer, text or keyword. Keyword pairs are
// accepted whenever their category byte is a known namespace, even when
// the specific value is not in the catalog, so that tokens minted by newer
// peers still round-trip.
func Decode(hi, lo byte) (Token, error) {
	t := Token(hi)<<8 | Token(lo)

	switch {
	case hi < integerCategoryLimit:
		return t, nil
	case hi == CatText:
		return t, nil
	case hi >= CatBrackets && hi <= CatPress:
		return t, nil
	case hi >= CatProvinceInlandNonSC && hi <= CatProvinceBicoastSC:
		return t, nil
	default:
		return 0, fmt.Errorf("cannot decode 0x%02X 0x%02X: %w", hi, lo, ErrTokenDecoding)
	}
}

// Category returns the token's first wire byte.
func (t Token) Category() byte {
	return byte(t >> 8)
}

// Bytes returns the token's two wire bytes, high byte first.
func (t Token) Bytes() [2]byte {
	return [2]byte{byte(t >> 8), byte(t)}
}

// IsInteger reports whether the token carries a signed integer.
func (t Token) IsInteger() bool {
	return t.Category() < integerCategoryLimit
}

// IsText reports whether the token carries a single ASCII character.
func (t Token) IsText() bool {
	return t.Category() == CatText
}

// IsProvince reports whether the token is in one of the province
// namespaces.
func (t Token) IsProvince() bool {
	c := t.Category()
	return c >= CatProvinceInlandNonSC && c <= CatProvinceBicoastSC
}

// Int returns the integer value of an integer token.
func (t Token) Int() (int, bool) {
	if !t.IsInteger() {
		return 0, false
	}

	n := int(t)
	if n > MaxInteger {
		n -= integerBias
	}

	return n, true
}

// Char returns the character of a text token.
func (t Token) Char() (byte, bool) {
	if !t.IsText() {
		return 0, false
	}

	return byte(t), true
}

// String renders the token's human-readable form: keyword name, decimal
// integer, or single character. Keywords missing from the catalog render
// as their hex byte pair.
func (t Token) String() string {
	if n, ok := t.Int(); ok {
		return fmt.Sprintf("%d", n)
	}

	if ch, ok := t.Char(); ok {
		return string(ch)
	}

	if name, ok := catalog.byToken[t]; ok {
		return name
	}

	return fmt.Sprintf("0x%04X", uint16(t))
}

// TokensFromBytes decodes a whole Diplomacy payload into tokens. The
// payload must contain an even number of bytes.
func TokensFromBytes(data []byte) ([]Token, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not whole token pairs: %w",
			len(data), ErrMessageShorterThanExpected)
	}

	tokens := make([]Token, 0, len(data)/2)

	for i := 0; i < len(data); i += 2 {
		t, err := Decode(data[i], data[i+1])
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, t)
	}

	return tokens, nil
}

// BytesFromTokens renders a token sequence as a flat payload.
func BytesFromTokens(tokens []Token) []byte {
	data := make([]byte, 0, len(tokens)*2)

	for _, t := range tokens {
		data = append(data, byte(t>>8), byte(t))
	}

	return data
}

// TextTokens spells a free-text string out one character per token.
func TextTokens(s string) []Token {
	tokens := make([]Token, 0, len(s))

	for i := 0; i < len(s); i++ {
		tokens = append(tokens, Text(s[i]))
	}

	return tokens
}
