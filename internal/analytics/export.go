package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

var csvHeader = []string{
	"Date", "Stage", "Messages Sent", "Messages Received",
	"Response Rate", "Media Count", "Unique Contacts", "Errors",
}

// WriteCSV writes a metrics history as CSV, one row per day.
func WriteCSV(w io.Writer, history []warmup.DailyMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range history {
		row := []string{
			m.Date,
			strconv.Itoa(m.Stage),
			strconv.Itoa(m.MessagesSent),
			strconv.Itoa(m.MessagesReceived),
			strconv.FormatFloat(m.ResponseRate, 'f', 3, 64),
			strconv.Itoa(m.MediaCount),
			strconv.Itoa(m.UniqueContacts),
			strconv.Itoa(m.Errors),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", m.Date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export is the JSON export of an instance's history.
type Export struct {
	InstanceName string                `json:"instanceName"`
	Metrics      []warmup.DailyMetrics `json:"metrics"`
	ExportedAt   time.Time             `json:"exportedAt"`
}

// Export returns the instance's full history for export.
func (e *Engine) Export(name string) (Export, error) {
	if _, err := e.src.Config(name); err != nil {
		return Export{}, err
	}
	metrics := e.src.Metrics(name)
	if metrics == nil {
		metrics = []warmup.DailyMetrics{}
	}
	return Export{InstanceName: name, Metrics: metrics, ExportedAt: e.src.Now().UTC()}, nil
}
