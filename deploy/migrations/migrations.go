package migrations

import "embed"

// Files 内嵌 turn_transcripts 与 turn_jobs 的建表脚本，供 storage/mysql.Migrate 使用。
//
//go:embed *.sql
var Files embed.FS
