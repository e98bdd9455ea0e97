package aggregate

import (
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Stats is the run-wide overview written to analysis_summary.json.
type Stats struct {
	TotalDays           int                `json:"total_days"`
	TotalCompanies      int                `json:"total_companies"`
	TotalAnalysisPoints int                `json:"total_analysis_points"` // company-days
	NoDataPoints        int                `json:"no_data_points"`        // company-days without a score
	TotalNews           int                `json:"total_news"`
	FailedScores        int                `json:"failed_scores"`
	PositiveRatio       float64            `json:"positive_sentiment_ratio"`
	NegativeRatio       float64            `json:"negative_sentiment_ratio"`
	NeutralRatio        float64            `json:"neutral_sentiment_ratio"` // includes no-data points
	MeanByCompany       map[string]float64 `json:"mean_sentiment_by_company"`
	MeanByDate          map[string]float64 `json:"mean_sentiment_by_date"`
}

// Summarize computes Stats from company/day summaries. Points are
// classified by the sign of their average; a point without one counts as
// neutral. Per company and per date means cover scored points only.
func Summarize(days []models.CompanyDaySummary) Stats {
	st := Stats{
		MeanByCompany: make(map[string]float64),
		MeanByDate:    make(map[string]float64),
	}
	companies := make(map[string][]float64)
	dates := make(map[string][]float64)
	seenCompany := make(map[string]bool)
	seenDate := make(map[string]bool)

	var pos, neg int
	for _, d := range days {
		st.TotalAnalysisPoints++
		st.TotalNews += d.NewsCount
		st.FailedScores += d.FailedCount
		seenCompany[d.CompanyID] = true
		seenDate[d.Date] = true

		if d.AverageSentiment == nil {
			st.NoDataPoints++
			continue
		}
		v := *d.AverageSentiment
		switch models.LabelFor(v) {
		case models.LabelPositive:
			pos++
		case models.LabelNegative:
			neg++
		}
		companies[d.CompanyID] = append(companies[d.CompanyID], v)
		dates[d.Date] = append(dates[d.Date], v)
	}
	st.TotalCompanies = len(seenCompany)
	st.TotalDays = len(seenDate)

	if st.TotalAnalysisPoints > 0 {
		n := float64(st.TotalAnalysisPoints)
		st.PositiveRatio = float64(pos) / n
		st.NegativeRatio = float64(neg) / n
		st.NeutralRatio = float64(st.TotalAnalysisPoints-pos-neg) / n
	}
	for id, xs := range companies {
		st.MeanByCompany[id] = *Mean(xs)
	}
	for d, xs := range dates {
		st.MeanByDate[d] = *Mean(xs)
	}
	return st
}
