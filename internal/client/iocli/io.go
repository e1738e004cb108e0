// Package iocli изолирует консольный ввод-вывод команд recordctl.
package iocli

//go:generate moq -out io_mock.go . IO

// IO консольный ввод-вывод
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	// ReadPassword читает секрет без эха, если ввод идёт с терминала
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
