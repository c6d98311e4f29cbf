/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders generated plans as iCal feeds and printable sheets,
// and imports busy calendars as date exclusions.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/schedule"
)

// Service handles plan import/export.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates an export service.
func New(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// ICalResult contains rendered iCal data.
type ICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// PlanICal renders the group's persisted plan entries as an iCal feed.
// Entries the packer could not place on a clock window become all-day events.
func (s *Service) PlanICal(ctx context.Context, group *models.PlanGroup) (*ICalResult, error) {
	entries, err := s.loadEntries(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//StudyForge//Plan Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICalText(group.Name)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	now := time.Now()
	for _, entry := range entries {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@studyforge\r\n", entry.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", now.UTC().Format("20060102T150405Z")))

		if entry.StartTime != "" && entry.EndTime != "" {
			// Study clock times are wall times; export them floating so they
			// survive the student's device timezone.
			buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalLocal(entry.Date, entry.StartTime)))
			buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalLocal(entry.Date, entry.EndTime)))
		} else {
			buf.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", entry.Date.Format("20060102")))
			buf.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", entry.Date.AddDate(0, 0, 1).Format("20060102")))
		}

		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(entrySummary(entry))))
		if entry.Content != nil && entry.Content.SubjectCategory != "" {
			buf.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", escapeICalText(entry.Content.SubjectCategory)))
		}
		buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(entryDescription(entry))))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	filename := fmt.Sprintf("%s-plan-%s-to-%s.ics",
		slugify(group.Name),
		group.PeriodStart.Format(schedule.DateKeyFormat),
		group.PeriodEnd.Format(schedule.DateKeyFormat))

	return &ICalResult{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

// ImportResult contains the outcome of a busy-calendar import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportBusyICal reads an iCal feed of busy events and records each event
// date inside the plan period as a personal date exclusion. Dates outside
// the period or already excluded are skipped.
func (s *Service) ImportBusyICal(ctx context.Context, group *models.PlanGroup, data io.Reader) (*ImportResult, error) {
	result := &ImportResult{}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(data); err != nil {
		return nil, fmt.Errorf("read ical data: %w", err)
	}

	periodEnd := group.PeriodEnd
	if group.AdditionalEnd != nil {
		periodEnd = *group.AdditionalEnd
	}

	for _, event := range parseICalEvents(buf.String()) {
		if event.Start.IsZero() {
			result.Skipped++
			continue
		}
		date := schedule.DateOf(event.Start)
		if date.Before(schedule.DateOf(group.PeriodStart)) || date.After(schedule.DateOf(periodEnd)) {
			result.Skipped++
			continue
		}

		var existing int64
		s.db.WithContext(ctx).Model(&models.DateExclusion{}).
			Where("plan_group_id = ? AND date = ?", group.ID, date).
			Count(&existing)
		if existing > 0 {
			result.Skipped++
			continue
		}

		exclusion := models.DateExclusion{
			ID:          uuid.NewString(),
			PlanGroupID: group.ID,
			Date:        date,
			Kind:        string(schedule.ExclusionPersonal),
			Reason:      event.Summary,
		}
		if err := s.db.WithContext(ctx).Create(&exclusion).Error; err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("exclusion for %s: %v", schedule.DateKey(date), err))
			continue
		}
		result.Imported++
	}

	s.logger.Info().
		Str("plan_group", group.ID).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("busy calendar import completed")

	return result, nil
}

// PlanSheet renders the plan as printable HTML, one table per study date.
func (s *Service) PlanSheet(ctx context.Context, group *models.PlanGroup) ([]byte, error) {
	entries, err := s.loadEntries(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]models.PlanEntry)
	for _, entry := range entries {
		key := schedule.DateKey(entry.Date)
		byDate[key] = append(byDate[key], entry)
	}
	days := make([]string, 0, len(byDate))
	for day := range byDate {
		days = append(days, day)
	}
	sort.Strings(days)

	var buf bytes.Buffer
	buf.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>` + html.EscapeString(group.Name) + `</title>
    <style>
        @page { margin: 1cm; }
        body { font-family: Arial, sans-serif; font-size: 11pt; line-height: 1.4; }
        h1 { font-size: 18pt; margin-bottom: 5mm; border-bottom: 2px solid #333; padding-bottom: 3mm; }
        h2 { font-size: 14pt; margin-top: 5mm; margin-bottom: 3mm; color: #444; }
        .day { page-break-inside: avoid; margin-bottom: 5mm; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 2mm 3mm; text-align: left; border-bottom: 1px solid #ddd; }
        th { background: #f5f5f5; font-weight: bold; }
        .time { width: 20%; white-space: nowrap; }
        .content { width: 55%; }
        .units { width: 25%; color: #666; }
        .review { color: #2a6; font-weight: bold; }
        .footer { margin-top: 10mm; font-size: 9pt; color: #666; text-align: center; }
    </style>
</head>
<body>
    <h1>` + html.EscapeString(group.Name) + `</h1>
    <p>` + group.PeriodStart.Format("January 2, 2006") + ` - ` + group.PeriodEnd.Format("January 2, 2006") + `</p>
`)

	for _, day := range days {
		dayTime, _ := schedule.ParseDate(day)
		buf.WriteString(`    <div class="day">
        <h2>` + dayTime.Format("Monday, January 2") + `</h2>
        <table>
            <tr><th class="time">Time</th><th class="content">Content</th><th class="units">Units</th></tr>
`)
		for _, entry := range byDate[day] {
			window := "unscheduled"
			if entry.StartTime != "" && entry.EndTime != "" {
				window = entry.StartTime + " - " + entry.EndTime
			}
			title := "Unknown"
			if entry.Content != nil {
				title = entry.Content.Title
			}
			if entry.IsReview {
				title = `<span class="review">Review</span> ` + html.EscapeString(title)
			} else {
				title = html.EscapeString(title)
			}
			buf.WriteString(fmt.Sprintf(`            <tr>
                <td class="time">%s</td>
                <td class="content">%s</td>
                <td class="units">%s</td>
            </tr>
`, window, title, unitRange(entry)))
		}
		buf.WriteString(`        </table>
    </div>
`)
	}

	buf.WriteString(`    <div class="footer">
        Generated by StudyForge on ` + time.Now().Format("January 2, 2006 at 3:04 PM") + `
    </div>
</body>
</html>`)

	return buf.Bytes(), nil
}

func (s *Service) loadEntries(ctx context.Context, planGroupID string) ([]models.PlanEntry, error) {
	var entries []models.PlanEntry
	err := s.db.WithContext(ctx).
		Where("plan_group_id = ?", planGroupID).
		Preload("Content").
		Order("date ASC, start_time ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load plan entries: %w", err)
	}
	return entries, nil
}

func entrySummary(entry models.PlanEntry) string {
	title := "Study"
	if entry.Content != nil {
		title = entry.Content.Title
	}
	if entry.IsReview {
		return "Review: " + title
	}
	return title
}

func entryDescription(entry models.PlanEntry) string {
	desc := unitRange(entry)
	if entry.IsContinued {
		desc += " (continued)"
	}
	if entry.IsPartial {
		desc += " (partial)"
	}
	return desc
}

func unitRange(entry models.PlanEntry) string {
	unit := "units"
	if entry.Content != nil {
		switch entry.Content.ContentType {
		case string(schedule.ContentBook):
			unit = "pages"
		case string(schedule.ContentLecture):
			unit = "episodes"
		}
	}
	if entry.UnitStart == entry.UnitEnd {
		return fmt.Sprintf("%s %d", unit, entry.UnitStart)
	}
	return fmt.Sprintf("%s %d-%d", unit, entry.UnitStart, entry.UnitEnd)
}

// ICalEvent is one parsed VEVENT.
type ICalEvent struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
}

func parseICalEvents(content string) []ICalEvent {
	var events []ICalEvent
	var current *ICalEvent

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), "\r")

		switch {
		case line == "BEGIN:VEVENT":
			current = &ICalEvent{}
		case line == "END:VEVENT" && current != nil:
			events = append(events, *current)
			current = nil
		case current == nil:
		case strings.HasPrefix(line, "UID:"):
			current.UID = strings.TrimPrefix(line, "UID:")
		case strings.HasPrefix(line, "SUMMARY:"):
			current.Summary = unescapeICalText(strings.TrimPrefix(line, "SUMMARY:"))
		case strings.HasPrefix(line, "DTSTART"):
			current.Start = parseICalTime(line)
		case strings.HasPrefix(line, "DTEND"):
			current.End = parseICalTime(line)
		}
	}

	return events
}

// parseICalTime parses the value of a DTSTART/DTEND property line, tolerating
// TZID and VALUE=DATE parameters.
func parseICalTime(line string) time.Time {
	value := line
	if idx := strings.LastIndex(line, ":"); idx >= 0 {
		value = line[idx+1:]
	}

	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatICalLocal(date time.Time, clock string) string {
	m, err := schedule.ParseClock(clock)
	if err != nil {
		return date.Format("20060102T000000")
	}
	return date.Add(time.Duration(m) * time.Minute).Format("20060102T150405")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, " ", "-"))
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "plan"
	}
	return result.String()
}
