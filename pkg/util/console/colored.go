// Package console renders legacy formatted text for terminals.
package console

import (
	"strings"

	"github.com/gookit/color"
	"go.minekube.com/common/minecraft/component/codec/legacy"
)

// AnsiFromLegacy converts text using § formatting codes to ANSI colored text.
func AnsiFromLegacy(s string) string {
	return AnsiFromLegacyChar(s, legacy.DefaultChar)
}

// AnsiFromLegacyChar converts text using formatting codes introduced by
// char, e.g. legacy.AmpersandChar, to ANSI colored text.
func AnsiFromLegacyChar(s string, char rune) string {
	b := new(strings.Builder)
	var code bool
	style := func(s string) string { return s }
	for _, r := range s {
		if r == char && !code {
			code = true
			continue
		}
		if code {
			code = false
			if r == 'r' {
				style = func(s string) string { return s }
				continue
			}
			wrap := style
			conv := convert(r)
			style = func(s string) string { return wrap(conv.Sprint(s)) }
			continue
		}
		b.WriteString(style(string(r)))
	}
	return b.String()
}

// StripLegacy removes formatting codes introduced by char.
func StripLegacy(s string, char rune) string {
	b := new(strings.Builder)
	var code bool
	for _, r := range s {
		switch {
		case r == char && !code:
			code = true
		case code:
			code = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func convert(r rune) color.Color {
	switch r {
	case 'a':
		return color.LightGreen
	case 'b':
		return color.LightBlue
	case 'c':
		return color.LightRed
	case 'd':
		return color.LightMagenta
	case 'e':
		return color.LightYellow
	case 'f':
		return color.LightWhite
	case 'k':
		return color.OpConcealed
	case 'l':
		return color.OpBold
	case 'm':
		return color.OpStrikethrough
	case 'n':
		return color.OpUnderscore
	case 'o':
		return color.OpItalic
	case '0':
		return color.Black
	case '1':
		return color.Blue
	case '2':
		return color.Green
	case '3':
		return color.Cyan
	case '4':
		return color.Red
	case '5':
		return color.Magenta
	case '6':
		return color.Yellow
	case '7':
		return color.White
	case '8':
		return color.Gray
	case '9':
		return color.LightCyan
	default:
		return color.OpReset
	}
}
