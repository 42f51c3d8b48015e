package queries

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"
	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
)

type ExportFormat string

const (
	ExportJSON  ExportFormat = "json"
	ExportCSV   ExportFormat = "csv"
	ExportTable ExportFormat = "table"
)

var ErrUnsupportedExportFormat = fmt.Errorf("%w: unsupported export format", domainerrors.ErrInvalidOption)

func ParseExportFormat(raw string) (ExportFormat, error) {
	switch format := ExportFormat(strings.ToLower(strings.TrimSpace(raw))); format {
	case ExportJSON, ExportCSV, ExportTable:
		return format, nil
	case "":
		return ExportJSON, nil
	default:
		return "", ErrUnsupportedExportFormat
	}
}

type exportedOption struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Votes      uint64  `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type exportedPoll struct {
	ID          uint64           `json:"id"`
	Question    string           `json:"question"`
	Description string           `json:"description"`
	Creator     string           `json:"creator"`
	Status      string           `json:"status"`
	Type        string           `json:"poll_type"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
	CreatedAt   time.Time        `json:"created_at"`
	EndTime     time.Time        `json:"end_time"`
	TotalVotes  uint64           `json:"total_votes"`
	TotalWeight uint64           `json:"total_weight"`
	Options     []exportedOption `json:"options"`
}

// ExportPoll renders a poll and its results as json, csv or an aligned table.
func (uc QueryUseCase) ExportPoll(ctx context.Context, pollID uint64, format ExportFormat) ([]byte, error) {
	if format == "" {
		format = ExportJSON
	}
	if _, err := ParseExportFormat(string(format)); err != nil {
		return nil, err
	}
	poll, err := uc.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	doc := buildExport(poll)
	switch format {
	case ExportCSV:
		return exportCSV(doc)
	case ExportTable:
		return exportTable(doc)
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
}

func buildExport(poll entities.Poll) exportedPoll {
	var counted uint64
	for _, votes := range poll.Votes {
		counted += votes
	}
	options := make([]exportedOption, 0, len(poll.Options))
	for idx, label := range poll.Options {
		option := exportedOption{Index: idx, Label: label, Votes: poll.Votes[idx]}
		if counted > 0 {
			option.Percentage = float64(poll.Votes[idx]) * 100 / float64(counted)
		}
		options = append(options, option)
	}
	return exportedPoll{
		ID:          poll.ID,
		Question:    poll.Question,
		Description: poll.Description,
		Creator:     poll.Creator,
		Status:      string(poll.Status),
		Type:        string(poll.Type),
		Category:    string(poll.Category),
		Tags:        append([]string{}, poll.Tags...),
		CreatedAt:   poll.CreatedAt,
		EndTime:     poll.EndTime,
		TotalVotes:  poll.TotalVotes,
		TotalWeight: poll.TotalWeight,
		Options:     options,
	}
}

func exportCSV(doc exportedPoll) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	rows := [][]string{{"poll_id", "question", "option_index", "option", "votes", "percentage"}}
	for _, option := range doc.Options {
		rows = append(rows, []string{
			strconv.FormatUint(doc.ID, 10),
			doc.Question,
			strconv.Itoa(option.Index),
			option.Label,
			strconv.FormatUint(option.Votes, 10),
			strconv.FormatFloat(option.Percentage, 'f', 2, 64),
		})
	}
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportTable(doc exportedPoll) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Poll #%d: %s\n", doc.ID, doc.Question)
	fmt.Fprintf(&buf, "Status: %s  Type: %s  Category: %s\n", doc.Status, doc.Type, doc.Category)
	fmt.Fprintf(&buf, "Total votes: %d  Total weight: %d\n\n", doc.TotalVotes, doc.TotalWeight)
	writer := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tOPTION\tVOTES\tSHARE")
	for _, option := range doc.Options {
		fmt.Fprintf(writer, "%d\t%s\t%d\t%.2f%%\n", option.Index, option.Label, option.Votes, option.Percentage)
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
