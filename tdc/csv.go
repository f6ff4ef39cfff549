package tdc

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// EncodeCSV writes events as a CSV file with columns time, pattern and
// channels.  Times are converted to unit.
func EncodeCSV(w io.Writer, events []Event, unit string) error {
	times, err := ConvertUnits(Times(events), unit)
	if err != nil {
		return err
	}
	wr := csv.NewWriter(w)
	err = wr.Write([]string{"time (" + unit + ")", "pattern", "channels"})
	if err != nil {
		return err
	}
	for i, e := range events {
		row := []string{
			strconv.FormatFloat(times[i], 'g', -1, 64),
			e.Pattern.String(),
			strings.Join(e.Pattern.Channels(), " "),
		}
		if err = wr.Write(row); err != nil {
			return err
		}
	}
	wr.Flush()
	return wr.Error()
}
