// Пакет filename - нормализация имён загружаемых файлов и определение
// MIME-типа по расширению.
//
// Санитизированное имя безопасно для использования в пути на диске и
// в заголовке Content-Disposition: только буквы, цифры и подчёркивания,
// плюс исходное расширение (регистр расширения сохраняется).
package filename

import (
	"mime"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxBaseLength - максимальная длина имени без расширения (в символах).
	MaxBaseLength = 50
	// MaxBaseBytes - то же в байтах UTF-8. Вместе с maxExtBytes держит
	// stored_path (uuid + "_" + имя) и временное имя записи в пределах
	// NAME_MAX (255 байт).
	MaxBaseBytes = 150
	// maxExtLength - максимальная длина расширения без точки.
	maxExtLength = 16
	maxExtBytes  = 32
	// fallbackName - имя, если после очистки ничего не осталось.
	fallbackName = "file"
	// DefaultContentType - MIME-тип по умолчанию.
	DefaultContentType = "application/octet-stream"
)

// Sanitize детерминированно нормализует имя файла:
//  1. отбрасывает путь (всё до последнего / или \)
//  2. NFKD + удаление диакритики
//  3. удаляет всё, кроме букв, цифр, _, пробелов и дефисов
//  4. схлопывает серии пробелов/дефисов в одно подчёркивание
//  5. обрезает до 50 символов (и 150 байт) и возвращает расширение
//
// Функция идемпотентна: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	name = baseName(name)

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	base = slug(stripMarks(base))
	if base == "" {
		base = fallbackName
	}

	ext = cleanExt(stripMarks(ext))
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ResolveContentType выбирает MIME-тип: значение клиента, затем
// угадывание по расширению имени, затем application/octet-stream.
func ResolveContentType(supplied, name string) string {
	if supplied = strings.TrimSpace(supplied); supplied != "" {
		return supplied
	}
	if ext := filepath.Ext(name); ext != "" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			return guessed
		}
	}
	return DefaultContentType
}

// Format возвращает расширение в нижнем регистре без точки или "unknown".
func Format(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "unknown"
	}
	return strings.ToLower(ext)
}

// baseName отбрасывает компоненты пути в любом из двух стилей разделителей.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

// stripMarks раскладывает строку (NFKD), удаляет combining marks
// и собирает обратно (NFC).
func stripMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isSeparator(r rune) bool {
	return r == '-' || unicode.IsSpace(r)
}

// slug оставляет word-символы, а серии пробелов и дефисов заменяет на "_".
func slug(s string) string {
	var kept strings.Builder
	for _, r := range s {
		if isWordRune(r) || isSeparator(r) {
			kept.WriteRune(r)
		}
	}

	trimmed := strings.TrimFunc(kept.String(), isSeparator)

	var out strings.Builder
	inSep := false
	for _, r := range trimmed {
		if isSeparator(r) {
			if !inSep {
				out.WriteByte('_')
			}
			inSep = true
			continue
		}
		inSep = false
		out.WriteRune(r)
	}

	return truncate(out.String(), MaxBaseLength, MaxBaseBytes)
}

// cleanExt оставляет в расширении только буквы и цифры.
func cleanExt(ext string) string {
	var b strings.Builder
	for _, r := range ext {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return truncate(b.String(), maxExtLength, maxExtBytes)
}

// truncate обрезает s по границе символа так, чтобы уложиться
// и в maxRunes символов, и в maxBytes байт.
func truncate(s string, maxRunes, maxBytes int) string {
	n := 0
	for i, r := range s {
		if n == maxRunes || i+utf8.RuneLen(r) > maxBytes {
			return s[:i]
		}
		n++
	}
	return s
}
