package realtime

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadArchive потоково читает CSV и держит в памяти только последние limit строк
// (скользящее окно, старые вытесняются). Результат - от новых к старым.
// Отсутствующий файл - не ошибка, а пустая лента.
func ReadArchive(path string, limit int) ([]map[string]any, error) {
	if limit <= 0 || path == "" {
		return []map[string]any{}, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: failed to read header of %s: %w", path, err)
	}
	header = uniqueHeader(header)

	window := make([][]string, limit)
	seen := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue // битая строка не должна ронять всю ленту
			}
			return nil, fmt.Errorf("archive: failed to read %s: %w", path, err)
		}
		window[seen%limit] = rec
		seen++
	}

	n := min(seen, limit)
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		rec := window[(seen-i)%limit]
		row := make(map[string]any, len(header))
		for j, name := range header {
			if j < len(rec) {
				row[name] = rec[j]
			} else {
				row[name] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// uniqueHeader убирает BOM и переименовывает повторы: Account, Account.1, ...
// Суффикс подбирается, пока имя не свободно: в заголовке уже может быть Account.1.
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	next := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.TrimSpace(name)
		candidate := name
		for taken[candidate] {
			next[name]++
			candidate = name + "." + strconv.Itoa(next[name])
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}
