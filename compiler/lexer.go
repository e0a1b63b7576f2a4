package compiler

import "strings"

// Lexer converts Defacto source text into a token stream. Single-pass, no
// backtracking — mirrors original_source/compiler/src/lexer.h's cur/pk/adv
// cursor discipline.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int

	diags *Diagnostics
}

// NewLexer creates a lexer over src. The cursor starts at (1, 0), matching
// the original C++ source exactly (line is 1-based, col is 0-based).
func NewLexer(src string, diags *Diagnostics) *Lexer {
	return &Lexer{src: src, line: 1, col: 0, diags: diags}
}

func (l *Lexer) cur() byte {
	if l.pos < len(l.src) {
		return l.src[l.pos]
	}
	return 0
}

func (l *Lexer) pk(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *Lexer) adv() {
	if l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		l.col++
		if c == '\n' {
			l.line++
			l.col = 0
		}
	}
}

func (l *Lexer) skipWS() {
	for l.cur() == ' ' || l.cur() == '\t' || l.cur() == '\r' {
		l.adv()
	}
}

func (l *Lexer) skipComment() {
	for l.cur() != '\n' && l.cur() != 0 {
		l.adv()
	}
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// readIdent reads [A-Za-z0-9_.]* starting at the current position.
func (l *Lexer) readIdent() string {
	var b strings.Builder
	for isAlnum(l.cur()) || l.cur() == '_' || l.cur() == '.' {
		b.WriteByte(l.cur())
		l.adv()
	}
	return b.String()
}

func (l *Lexer) readNum() string {
	var b strings.Builder
	for isDigit(l.cur()) {
		b.WriteByte(l.cur())
		l.adv()
	}
	return b.String()
}

func (l *Lexer) readString() string {
	l.adv() // opening quote
	var b strings.Builder
	for l.cur() != '"' && l.cur() != 0 {
		if l.cur() == '\\' {
			l.adv()
			switch l.cur() {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(l.cur())
			}
		} else {
			b.WriteByte(l.cur())
		}
		l.adv()
	}
	if l.cur() == '"' {
		l.adv()
	}
	return b.String()
}

// Tokenize runs the lexer to completion and returns the full token list,
// always terminated by exactly one EOF token.
func (l *Lexer) Tokenize() []Token {
	var out []Token
	for l.pos < len(l.src) {
		l.skipWS()
		if l.cur() == 0 {
			break
		}
		if l.cur() == '\n' {
			l.adv()
			continue
		}
		if l.cur() == '/' && l.pk(1) == '/' {
			l.skipComment()
			continue
		}

		ln, cl := l.line, l.col

		if l.cur() == '#' {
			out = append(out, l.lexSigil(ln, cl))
			continue
		}

		if l.cur() == '<' && l.pk(1) == 'd' && l.pk(2) == 'r' && l.pk(3) == 'v' && l.pk(4) == '.' {
			for i := 0; i < 5; i++ {
				l.adv()
			}
			out = append(out, Token{TokDrvOpen, "<drv.", ln, cl})
			continue
		}
		if l.cur() == '.' && l.pk(1) == 'd' && l.pk(2) == 'r' && l.pk(3) == '>' {
			for i := 0; i < 4; i++ {
				l.adv()
			}
			out = append(out, Token{TokDrvClose, ".dr>", ln, cl})
			continue
		}
		if l.cur() == '<' && l.pk(1) == '.' && l.pk(2) == 'd' && l.pk(3) == 'e' {
			for i := 0; i < 4; i++ {
				l.adv()
			}
			out = append(out, Token{TokSecOpen, "<.de", ln, cl})
			continue
		}
		if l.cur() == '.' && l.pk(1) == '>' {
			l.adv()
			l.adv()
			out = append(out, Token{TokSecClose, ".>", ln, cl})
			continue
		}

		if l.cur() == '"' {
			out = append(out, Token{TokString, l.readString(), ln, cl})
			continue
		}
		if isDigit(l.cur()) {
			out = append(out, Token{TokNumber, l.readNum(), ln, cl})
			continue
		}
		if isAlpha(l.cur()) || l.cur() == '_' {
			w := l.readIdent()
			if w == "static.pl" && l.cur() == '>' {
				l.adv()
				out = append(out, Token{TokStaticPl, "static.pl>", ln, cl})
				continue
			}
			kind := TokIdent
			if k, ok := keywords[w]; ok {
				kind = k
			}
			out = append(out, Token{kind, w, ln, cl})
			continue
		}

		if tok, ok := l.lexOperator(ln, cl); ok {
			out = append(out, tok)
		}
	}
	out = append(out, Token{TokEOF, "", l.line, l.col})
	return out
}

func (l *Lexer) lexSigil(ln, cl int) Token {
	l.adv() // consume '#'
	if l.cur() == '0' && (l.pk(1) == 'x' || l.pk(1) == 'X') {
		h := "0x"
		l.adv()
		l.adv()
		for isHexDigit(l.cur()) {
			h += string(l.cur())
			l.adv()
		}
		return Token{TokHex, h, ln, cl}
	}
	w := l.readIdent()
	switch {
	case w == "DRIVER":
		return Token{TokDriver, "#DRIVER", ln, cl}
	case w == "DRIVER.stop":
		return Token{TokDriverStop, "#DRIVER.stop", ln, cl}
	case driverTypeNames[w]:
		return Token{TokIdent, "#" + w, ln, cl}
	case w == "Mainprogramm.start":
		return Token{TokProgStart, w, ln, cl}
	case w == "Mainprogramm.end":
		return Token{TokProgEnd, w, ln, cl}
	case w == "NO_RUNTIME":
		return Token{TokNoRuntime, w, ln, cl}
	case w == "SAFE":
		return Token{TokSafe, w, ln, cl}
	case w == "INTERRUPT":
		return Token{TokInterrupt, w, ln, cl}
	case w == "MOV":
		return Token{TokMov, w, ln, cl}
	case w == "STATIC":
		return Token{TokRegStatic, w, ln, cl}
	case w == "STOP":
		return Token{TokRegStop, w, ln, cl}
	case len(w) > 1 && w[0] == 'R' && isDigit(w[1]):
		return Token{TokRegister, "#" + w, ln, cl}
	default:
		return Token{TokIdent, "#" + w, ln, cl}
	}
}

// lexOperator reads an operator or punctuation token. ok is false only for
// an unrecognised character, which is reported as a warning and skipped —
// the lexer's only non-fatal failure mode (spec.md §4.1, §7).
func (l *Lexer) lexOperator(ln, cl int) (Token, bool) {
	ch := l.cur()
	switch {
	case ch == '=' && l.pk(1) == '=':
		l.adv()
		l.adv()
		return Token{TokEqEq, "==", ln, cl}, true
	case ch == '!' && l.pk(1) == '=':
		l.adv()
		l.adv()
		return Token{TokNotEq, "!=", ln, cl}, true
	case ch == '<' && l.pk(1) == '=':
		l.adv()
		l.adv()
		return Token{TokLe, "<=", ln, cl}, true
	case ch == '>' && l.pk(1) == '=':
		l.adv()
		l.adv()
		return Token{TokGe, ">=", ln, cl}, true
	case ch == '&' && l.pk(1) == '&':
		l.adv()
		l.adv()
		return Token{TokAndAnd, "&&", ln, cl}, true
	case ch == '|' && l.pk(1) == '|':
		l.adv()
		l.adv()
		return Token{TokOrOr, "||", ln, cl}, true
	case ch == '<' && l.pk(1) == '<':
		l.adv()
		l.adv()
		return Token{TokDrvAssign, "<<", ln, cl}, true
	case ch == '-' && l.pk(1) == '>':
		l.adv()
		l.adv()
		return Token{TokLShift, "->", ln, cl}, true
	case ch == '>' && l.pk(1) == '>':
		l.adv()
		l.adv()
		return Token{TokRBrack2, ">>", ln, cl}, true
	}
	single := map[byte]TokenKind{
		'=': TokEq, '+': TokPlus, '-': TokMinus, '*': TokStar, '/': TokSlash,
		'(': TokLParen, ')': TokRParen, '{': TokLBrace, '}': TokRBrace,
		'[': TokLBrack, ']': TokRBrack, ':': TokColon, ';': TokSemicolon,
		',': TokComma, '.': TokDot, '<': TokLt, '>': TokGt, '&': TokAmp, '!': TokNot,
	}
	if kind, ok := single[ch]; ok {
		l.adv()
		return Token{kind, string(ch), ln, cl}, true
	}
	l.diags.Warn(ln, "unknown character '"+string(ch)+"'")
	l.adv()
	return Token{}, false
}
