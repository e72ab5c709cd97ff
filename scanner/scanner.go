package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"pdflib/ir/raw"
	"pdflib/recovery"
)

type TokenType int

const (
	TokenDict       TokenType = iota // '<<'
	TokenDictEnd                     // '>>'
	TokenArray                       // '['
	TokenArrayEnd                    // ']'
	TokenProc                        // '{'
	TokenProcEnd                     // '}'
	TokenName                        // '/Name'
	TokenString                      // literal or hex string
	TokenNumber                      // numeric value
	TokenBoolean                     // true/false
	TokenNull                        // null
	TokenRef                         // indirect ref '5 0 R'
	TokenStream                      // 'stream' keyword plus payload
	TokenKeyword                     // obj, endobj, xref, trailer, startxref, ...
)

// Token carries the lexed value in typed fields; which fields are
// meaningful depends on Type.
type Token struct {
	Type  TokenType
	Pos   int64
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Str   string          // names and keywords
	Bytes []byte          // strings and stream payloads
	Hex   bool            // string came from <...> form
	Kind  raw.KeywordKind // classification for TokenKeyword
	Num   int             // ref object number
	Gen   int             // ref generation
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
}

var (
	ErrMalformedNumber = errors.New("malformed number")
	ErrKeywordTooLong  = errors.New("keyword too long")
	ErrStackBounds     = errors.New("nesting bound exceeded")
)

// maxKeywordLen bounds bare identifiers; longer runs lex as an invalid
// keyword with the excess consumed.
const maxKeywordLen = 255

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	MaxStreamScan   int64
	WindowSize      int64
	Recovery        recovery.Strategy
	Flags           *recovery.FlagSet
}

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// pdfScanner incrementally buffers data from a ReaderAt in fixed-size
// windows. The buffer only ever grows toward the end of the file, so a
// Seek backward is a position change, not a reload.
type pdfScanner struct {
	reader        ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	recLoc        recovery.Location
}

func New(r ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	if cfg.Flags == nil {
		cfg.Flags = &recovery.FlagSet{}
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{}, io.EOF
		}
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Kind: raw.KwOther, Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case '{':
		s.pos++
		return Token{Type: TokenProc, Pos: start}, nil
	case '}':
		s.pos++
		return Token{Type: TokenProcEnd, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	// lone delimiter byte with no structure meaning
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Kind: raw.KwOther, Pos: start}, nil
}

func (s *pdfScanner) skipWSAndComments() error {
	for {
		if s.pos >= int64(len(s.data)) {
			if err := s.ensure(s.pos); err != nil {
				return err
			}
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			// comment runs to EOL; %%EOF is just a comment too
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if s.pos >= int64(len(s.data)) {
					return io.EOF
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func isNumberStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}
func isRegular(c byte) bool { return !isDelimiter(c) }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' {
			a, aok := s.peekNibble(1)
			b, bok := s.peekNibble(2)
			if aok && bok {
				out.WriteByte((a << 4) | b)
				s.pos += 3
				continue
			}
			// bad escape: keep the '#' literally and record the defect
			s.cfg.Flags.Set(recovery.FlagInvalidNameEscape)
			if err := s.recover(errors.New("invalid #-escape in name"), "name"); err != nil {
				return Token{}, err
			}
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *pdfScanner) peekNibble(off int64) (byte, bool) {
	c := s.peekAhead(off)
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
				return Token{}, err
			}
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			// backslash-EOL is a line continuation and contributes nothing
			if esc == '\r' {
				s.pos++
				if s.peekAt(s.pos) == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2; k++ {
					if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
						return Token{}, err
					}
					if s.pos >= int64(len(s.data)) {
						break
					}
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
			buf.WriteByte(c)
			s.pos++
			continue
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
			buf.WriteByte(c)
			s.pos++
			continue
		}
		// a bare EOL inside a string reads as a single LF
		if c == '\r' {
			buf.WriteByte('\n')
			s.pos++
			if s.peekAt(s.pos) == '\n' {
				s.pos++
			}
			continue
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("literal string too long")
		}
	}
	if depth != 0 {
		s.cfg.Flags.Set(recovery.FlagUnbalancedString)
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *pdfScanner) peekAt(off int64) byte {
	if err := s.ensure(off); err != nil {
		return 0
	}
	if off >= int64(len(s.data)) {
		return 0
	}
	return s.data[off]
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		hexbuf = append(hexbuf, c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
			return Token{}, errors.New("hex string too long")
		}
	}
	if !closed {
		s.cfg.Flags.Set(recovery.FlagUnbalancedString)
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// odd count: the trailing nibble is the high half of the last byte
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, (fromHex(hexbuf[i])<<4)|fromHex(hexbuf[i+1]))
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		// includes \( \) \\ and any unknown escape, which yields the
		// escaped byte itself
		return c
	}
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	overlong := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if buf.Len() < maxKeywordLen {
			buf.WriteByte(c)
		} else {
			overlong = true
		}
		s.pos++
	}
	if overlong {
		s.cfg.Flags.Set(recovery.FlagKeywordTooLong)
		if err := s.recover(ErrKeywordTooLong, "keyword"); err != nil {
			return Token{}, err
		}
		return Token{Type: TokenKeyword, Str: buf.String(), Kind: raw.KwInvalid, Pos: start}, nil
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Kind: raw.ClassifyKeyword(kw), Pos: start}, nil
}

// scanNumberOrRef lexes one number and, when it opens an "N G R" run of
// two non-negative integers followed by R, collapses the run into a single
// reference token. Anything else backtracks to just after the first number.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, err := s.scanNumber()
	if err != nil {
		return Token{}, err
	}
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	afterFirst := s.pos
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			s.pos = afterFirst
			return tok, nil
		}
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) || !(s.data[s.pos] >= '0' && s.data[s.pos] <= '9') {
		s.pos = afterFirst
		return tok, nil
	}
	tok2, err := s.scanNumber()
	if err != nil || !tok2.IsInt || tok2.Int < 0 {
		s.pos = afterFirst
		return tok, err
	}
	if err := s.skipWSAndComments(); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' {
		next := s.peekAhead(1)
		if next == 0 || isDelimiter(next) {
			s.pos++
			return Token{Type: TokenRef, Num: int(tok.Int), Gen: int(tok2.Int), Pos: start}, nil
		}
	}
	s.pos = afterFirst
	return tok, nil
}

// scanNumber implements the tolerant numeric lexer: sign, digits, at most
// one dot. A structurally broken run such as 12.5.3 or 1-2 is consumed
// whole and yields integer zero with the malformed-number condition set.
// A non-numeric regular character ends the number and stays unread, with
// the missing-whitespace condition recorded.
func (s *pdfScanner) scanNumber() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	malformed := false
	seenDot := false
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			buf.WriteByte(c)
		case c == '.':
			if seenDot {
				malformed = true
			}
			seenDot = true
			buf.WriteByte(c)
		case c == '+' || c == '-':
			if buf.Len() != 0 {
				malformed = true
			}
			buf.WriteByte(c)
		case isDelimiter(c):
			goto done
		default:
			if !seenDigit && !seenDot {
				malformed = true
				buf.WriteByte(c)
				s.pos++
				continue
			}
			// run of digits glued to a keyword: end the number here
			s.cfg.Flags.Set(recovery.FlagMissingWhitespace)
			if err := s.recover(errors.New("missing whitespace after number"), "number"); err != nil {
				return Token{}, err
			}
			goto done
		}
		s.pos++
	}
done:
	if !seenDigit {
		malformed = true
	}
	if malformed {
		s.cfg.Flags.Set(recovery.FlagMalformedNumber)
		if err := s.recover(ErrMalformedNumber, "number"); err != nil {
			return Token{}, err
		}
		return Token{Type: TokenNumber, Int: 0, IsInt: true, Pos: start}, nil
	}
	text := buf.String()
	if !seenDot {
		i, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start}, nil
		}
		// overflow: fall through to float
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		s.cfg.Flags.Set(recovery.FlagMalformedNumber)
		if rerr := s.recover(ErrMalformedNumber, "number"); rerr != nil {
			return Token{}, rerr
		}
		return Token{Type: TokenNumber, Int: 0, IsInt: true, Pos: start}, nil
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

// scanStream consumes the stream payload. When the caller set a declared
// length, the payload is taken verbatim and the hint is checked against an
// endstream marker; a hint that does not land on endstream downgrades to a
// delimiter scan from the start of the data.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// one EOL separates the keyword from the data (7.3.8)
	if s.pos < int64(len(s.data)) {
		if s.data[s.pos] == '\r' {
			s.pos++
			if s.peekAt(s.pos) == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		}
	}
	dataStart := s.pos
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	if hint >= 0 {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		if err := s.ensure(dataStart + hint); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if dataStart+hint <= int64(len(s.data)) && s.endstreamAt(dataStart+hint) {
			payload := append([]byte(nil), s.data[dataStart:dataStart+hint]...)
			s.pos = s.skipEndstream(dataStart + hint)
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
		// declared length is wrong; fall back to scanning
		s.cfg.Flags.Set(recovery.FlagBadStreamLength)
		if err := s.recover(errors.New("stream Length does not reach endstream"), "stream"); err != nil {
			return Token{}, err
		}
	}
	return s.scanStreamByMarker(start, dataStart)
}

// endstreamAt reports whether an endstream keyword begins at or just after
// off, allowing the customary EOL between data and marker.
func (s *pdfScanner) endstreamAt(off int64) bool {
	i := off
	if s.peekAt(i) == '\r' {
		i++
		if s.peekAt(i) == '\n' {
			i++
		}
	} else if s.peekAt(i) == '\n' {
		i++
	}
	needle := []byte("endstream")
	if err := s.ensure(i + int64(len(needle))); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	if i+int64(len(needle)) > int64(len(s.data)) {
		return false
	}
	if !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
		return false
	}
	after := s.peekAt(i + int64(len(needle)))
	return after == 0 || isDelimiter(after)
}

func (s *pdfScanner) skipEndstream(off int64) int64 {
	i := off
	if s.peekAt(i) == '\r' {
		i++
		if s.peekAt(i) == '\n' {
			i++
		}
	} else if s.peekAt(i) == '\n' {
		i++
	}
	return i + int64(len("endstream"))
}

func (s *pdfScanner) scanStreamByMarker(start, dataStart int64) (Token, error) {
	needle := []byte("endstream")
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if i+int64(len(needle)) > int64(len(s.data)) {
			// ran off the end without a marker
			s.cfg.Flags.Set(recovery.FlagBadStreamLength)
			if err := s.recover(errors.New("endstream not found"), "stream"); err != nil {
				return Token{}, err
			}
			payload := append([]byte(nil), s.data[dataStart:]...)
			s.pos = int64(len(s.data))
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			return Token{}, errors.New("endstream not found within scan limit")
		}
		if s.data[i] != 'e' || !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
			continue
		}
		prevOK := i == dataStart || isWhitespace(s.data[i-1])
		after := s.peekAt(i + int64(len(needle)))
		followOK := after == 0 || isDelimiter(after)
		if !prevOK || !followOK {
			continue
		}
		end := i
		// the EOL before the marker belongs to the syntax, not the data
		if end > dataStart && s.data[end-1] == '\n' {
			end--
		}
		if end > dataStart && s.data[end-1] == '\r' {
			end--
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		s.pos = i + int64(len(needle))
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return nil
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	switch s.cfg.Recovery.OnError(nil, err, location) {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		return nil
	default:
		return err
	}
}
