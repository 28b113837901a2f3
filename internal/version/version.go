// Package version хранит сведения о сборке сервиса отмен,
// подставляемые через -ldflags при сборке релиза.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// String возвращает строку сборки для health-эндпоинтов и логов запуска.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
