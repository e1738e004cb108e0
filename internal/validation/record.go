package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iudanet/recordsync/internal/client/storage"
	"github.com/iudanet/recordsync/internal/jsonpath"
)

// whitespacePattern пробельные символы недопустимы в именах записей
var whitespacePattern = regexp.MustCompile(`\s`)

const (
	// MaxRecordNameLen максимальная длина имени записи в байтах
	MaxRecordNameLen = 512
	// MinPassphraseLen минимальная длина парольной фразы хранилища
	MinPassphraseLen = 12
)

// ValidateRecordName проверяет имя записи.
// Имя не пустое, без пробельных символов, не длиннее 512 байт
// и не начинается со служебного префикса.
func ValidateRecordName(name string) error {
	if name == "" {
		return fmt.Errorf("record name cannot be empty")
	}

	if len(name) > MaxRecordNameLen {
		return fmt.Errorf("record name must not exceed %d bytes", MaxRecordNameLen)
	}

	if whitespacePattern.MatchString(name) {
		return fmt.Errorf("record name %q must not contain whitespace", name)
	}

	if storage.IsReserved(name) {
		return fmt.Errorf("record name %q uses reserved prefix %q", name, storage.ReservedPrefix)
	}

	return nil
}

// ValidatePath проверяет путь внутри записи. Пустой путь означает весь документ.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, " \t\r\n") {
		return fmt.Errorf("path %q must not contain whitespace", path)
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return fmt.Errorf("path %q must not start or end with a dot", path)
	}
	return jsonpath.Validate(path)
}

// ValidatePassphrase проверяет минимальные требования к парольной фразе хранилища
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}

	if len(passphrase) < MinPassphraseLen {
		return fmt.Errorf("passphrase must be at least %d characters long", MinPassphraseLen)
	}

	return nil
}
