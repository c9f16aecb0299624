package entity

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeKey normaliza códigos y nombres para comparar identidad:
// recorta espacios y aplica case folding Unicode.
func NormalizeKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
