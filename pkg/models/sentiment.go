package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in keys, CSV rows and the checkpoint.
const DateLayout = "2006-01-02"

// Company is one member of the analysed roster.
type Company struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name"   yaml:"name"`
}

// ItemKey identifies a WorkItem as "YYYY-MM-DD/SYMBOL".
type ItemKey string

// WorkItem is the unit of work: one company on one business day.
type WorkItem struct {
	CompanyID   string    `json:"company_id"`
	CompanyName string    `json:"company_name"`
	TargetDate  time.Time `json:"target_date"` // midnight UTC
}

// Key returns the identity of the item, (company_id, target_date).
func (w WorkItem) Key() ItemKey {
	return ItemKey(w.Day() + "/" + w.CompanyID)
}

// Day returns the target date formatted as YYYY-MM-DD.
func (w WorkItem) Day() string {
	return w.TargetDate.Format(DateLayout)
}

func (w WorkItem) String() string {
	return fmt.Sprintf("%s@%s", w.CompanyID, w.Day())
}

// NewsItem is one article returned by a news source for a WorkItem.
type NewsItem struct {
	CompanyID   string    `json:"company_id"`
	TargetDate  time.Time `json:"target_date"`
	Headline    string    `json:"headline"`
	Body        string    `json:"body,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Text joins headline and body into the text sent to the scorer, with
// whitespace runs collapsed.
func (n NewsItem) Text() string {
	parts := make([]string, 0, 2)
	if h := strings.TrimSpace(n.Headline); h != "" {
		parts = append(parts, h)
	}
	if b := strings.TrimSpace(n.Body); b != "" {
		parts = append(parts, b)
	}
	return strings.Join(strings.Fields(strings.Join(parts, ". ")), " ")
}

// Label is the categorical sentiment of a scored article.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// LabelFor derives the label from the sign of a score.
func LabelFor(score float64) Label {
	switch {
	case score > 0:
		return LabelPositive
	case score < 0:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// SentimentResult is the outcome of scoring one NewsItem. Exactly one exists
// for every NewsItem attempted; a failed call carries Err and no score.
type SentimentResult struct {
	NewsIndex int     `json:"news_index"`
	Headline  string  `json:"headline"`
	Label     Label   `json:"label,omitempty"`
	Score     float64 `json:"score"`
	Err       string  `json:"error,omitempty"`
}

// OK reports whether the scoring call succeeded.
func (r SentimentResult) OK() bool { return r.Err == "" }

// CompanyDaySummary aggregates the results of one WorkItem.
type CompanyDaySummary struct {
	CompanyID        string   `json:"company_id"`
	CompanyName      string   `json:"company_name"`
	Date             string   `json:"date"`
	NewsCount        int      `json:"news_count"`
	AverageSentiment *float64 `json:"average_sentiment"` // nil when nothing was scored
	PositiveCount    int      `json:"positive_count"`
	NeutralCount     int      `json:"neutral_count"`
	NegativeCount    int      `json:"negative_count"`
	FailedCount      int      `json:"failed_count"`
	NewsText         string   `json:"news_text,omitempty"`
}

// CompanySummary rolls a company up over the whole date range.
type CompanySummary struct {
	CompanyID        string   `json:"company_id"`
	CompanyName      string   `json:"company_name"`
	TotalNewsCount   int      `json:"total_news_count"`
	AverageSentiment *float64 `json:"average_sentiment"`
	PositiveCount    int      `json:"positive_count"`
	NeutralCount     int      `json:"neutral_count"`
	NegativeCount    int      `json:"negative_count"`
	DaysCovered      int      `json:"days_covered"`
}
