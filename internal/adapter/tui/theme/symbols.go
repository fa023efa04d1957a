package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the glyphs the chat draws, so a terminal without Unicode
// can switch to plain ASCII.
type SymbolSet struct {
	Success  string
	Error    string
	Spinner  string
	ArrowR   string
	Bullet   string
	Ellipsis string
	Private  string
	User     string
	Bot      string
}

var unicodeSymbols = SymbolSet{
	Success:  "✓",
	Error:    "✗",
	Spinner:  "⏳",
	ArrowR:   "→",
	Bullet:   "•",
	Ellipsis: "…",
	Private:  "◆",
	User:     "You",
	Bot:      "repochat",
}

var asciiSymbols = SymbolSet{
	Success:  "[OK]",
	Error:    "[ERR]",
	Spinner:  "[...]",
	ArrowR:   "->",
	Bullet:   "*",
	Ellipsis: "...",
	Private:  "#",
	User:     "You",
	Bot:      "repochat",
}

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// REPOCHAT_ASCII_SYMBOLS forces ASCII. A dumb terminal, or a locale that is
// set but not UTF-8, also selects ASCII; an unset locale assumes Unicode.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("REPOCHAT_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}

	// The first set variable wins, matching setlocale precedence.
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

// InitSymbols sets the package-level Symbol* variables from the detected
// terminal. It runs at init and again from tests that change the environment.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}

	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolSpinner = set.Spinner
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
	SymbolEllipsis = set.Ellipsis
	SymbolPrivate = set.Private
	SymbolUser = set.User
	SymbolBot = set.Bot
}

func init() {
	InitSymbols()
}
