package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

var (
	analysisHeader = []string{"Date", "Symbol", "Company_Name", "News_Count", "Average_Sentiment", "News_Text"}
	summaryHeader  = []string{"Symbol", "Company_Name", "Total_News_Count", "Average_Sentiment", "Positive_Count", "Negative_Count", "Neutral_Count"}
	pendingHeader  = []string{"Date", "Symbol", "Company_Name"}
)

// WriteAnalysisCSV writes one row per company/day. A missing average is an
// empty cell.
func WriteAnalysisCSV(w io.Writer, days []models.CompanyDaySummary) error {
	rows := make([][]string, 0, len(days)+1)
	rows = append(rows, analysisHeader)
	for _, d := range days {
		rows = append(rows, []string{
			d.Date,
			d.CompanyID,
			d.CompanyName,
			strconv.Itoa(d.NewsCount),
			utils.FormatOptionalScore(d.AverageSentiment),
			d.NewsText,
		})
	}
	return writeAll(w, rows)
}

// WriteSummaryCSV writes one row per company over the whole range.
func WriteSummaryCSV(w io.Writer, companies []models.CompanySummary) error {
	rows := make([][]string, 0, len(companies)+1)
	rows = append(rows, summaryHeader)
	for _, c := range companies {
		rows = append(rows, []string{
			c.CompanyID,
			c.CompanyName,
			strconv.Itoa(c.TotalNewsCount),
			utils.FormatOptionalScore(c.AverageSentiment),
			strconv.Itoa(c.PositiveCount),
			strconv.Itoa(c.NegativeCount),
			strconv.Itoa(c.NeutralCount),
		})
	}
	return writeAll(w, rows)
}

// WritePendingCSV lists the items a run never attempted.
func WritePendingCSV(w io.Writer, items []models.WorkItem) error {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, pendingHeader)
	for _, it := range items {
		rows = append(rows, []string{it.Day(), it.CompanyID, it.CompanyName})
	}
	return writeAll(w, rows)
}

func writeAll(w io.Writer, rows [][]string) error {
	return csv.NewWriter(w).WriteAll(rows)
}
