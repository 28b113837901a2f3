package domain

import "time"

// AuditRecord — одна попытка выполнения команды отмены.
// Добавляется ровно один раз на попытку (успех или исчерпанный retry),
// только в память, живёт до конца процесса.
type AuditRecord struct {
	CommandType     string
	Provider        Provider
	ExecutionTimeMs int64
	Timestamp       time.Time
	CorrelationID   string
	Success         bool
	ErrorMessage    string
}
