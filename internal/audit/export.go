package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"occurred_at", "kind", "username", "user_id", "remote_addr"}

// WriteCSV encodes rows with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		userID := ""
		if row.UserID > 0 {
			userID = strconv.FormatInt(row.UserID, 10)
		}
		record := []string{row.At.UTC().Format(time.RFC3339), row.Kind, row.Username, userID, row.RemoteAddr}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
