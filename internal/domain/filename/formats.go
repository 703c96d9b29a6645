package filename

// knownFormats - расширения, которые сервис считает стандартными.
// Файлы с другими расширениями принимаются, но логируются с предупреждением.
var knownFormats = map[string]struct{}{
	// Изображения
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "webp": {}, "ico": {}, "svg": {}, "tiff": {}, "tif": {},
	// Документы
	"pdf": {}, "txt": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {}, "odt": {}, "ods": {}, "odp": {},
	// Web
	"html": {}, "htm": {}, "css": {}, "js": {}, "json": {}, "xml": {},
	// Текстовые
	"csv": {}, "md": {}, "rtf": {}, "tex": {},
	// Архивы
	"zip": {}, "rar": {}, "7z": {}, "tar": {}, "gz": {},
	// Видео
	"mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {}, "webm": {}, "mkv": {}, "m4v": {},
	// Аудио
	"mp3": {}, "wav": {}, "flac": {}, "aac": {}, "ogg": {}, "wma": {}, "m4a": {},
	// Прочее
	"exe": {}, "dmg": {}, "apk": {}, "deb": {}, "rpm": {},
}

// IsKnownFormat сообщает, входит ли формат (результат Format) в список стандартных.
func IsKnownFormat(format string) bool {
	_, ok := knownFormats[format]
	return ok
}

// KnownFormatsCount - количество стандартных форматов (для /status).
func KnownFormatsCount() int {
	return len(knownFormats)
}
